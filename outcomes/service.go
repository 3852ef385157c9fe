package outcomes

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/coursebridge/launchgate/rate"
	"github.com/coursebridge/launchgate/runtimeauth"
	"github.com/coursebridge/launchgate/scopes"
	"github.com/coursebridge/launchgate/token"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Operation names, used for rate-limit keys and usage counters.
const (
	OpWriteProgress  = "progress.write"
	OpSubmitAttempt  = "attempt.submit"
	OpEmitEvent      = "event.emit"
	OpSaveCheckpoint = "checkpoint.save"
	OpAssetURL       = "asset.url"
)

// ErrInvalidInput indicates a payload outside the operation's contract.
var ErrInvalidInput = errors.New("invalid input")

// ErrRateLimited is matched by errors.Is against RateLimitedError.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitedError carries the retry-after hint for the caller. No write was
// performed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// Service records outcomes from embedded content. Every operation checks the
// claims' grant for the scope it needs, consults the rate limiter, performs
// its single write, and counts usage on success only. Persistence errors are
// reported to the caller without retry: at-most-once from the protocol's
// point of view, with idempotent resends left to content that supplies a
// runtime attempt id.
type Service struct {
	store       Store
	limiter     rate.Limiter
	usage       UsageRecorder
	assetSecret []byte
	assetTTL    time.Duration
	nowFunc     func() time.Time
	logger      zerolog.Logger
}

// ServiceOption modifies a Service.
type ServiceOption func(*Service)

// WithAssetURLSigning configures minting of short-lived signed asset URLs.
func WithAssetURLSigning(secret string, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.assetSecret = []byte(secret)
		s.assetTTL = ttl
	}
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) { s.nowFunc = now }
}

// WithLogger sets the component logger.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService wires the ingestion surface.
func NewService(store Store, limiter rate.Limiter, usage UsageRecorder, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("[NewService] store is required")
	}
	if limiter == nil {
		return nil, errors.New("[NewService] limiter is required")
	}
	if usage == nil {
		usage = NopUsage{}
	}

	s := &Service{
		store:    store,
		limiter:  limiter,
		usage:    usage,
		assetTTL: 5 * time.Minute,
		nowFunc:  time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// WriteProgress upserts the progress record for the claims' subject and
// course. Requires progress.write. Last write wins; there is no ordering
// guarantee across topics.
func (s *Service) WriteProgress(ctx context.Context, claims *token.RuntimeClaims, pct float64, topic string) error {
	if !claims.ScopeSet().Contains(scopes.ProgressWrite) {
		return runtimeauth.ErrForbidden
	}
	if pct < 0 || pct > 100 {
		return errors.Wrapf(ErrInvalidInput, "pct %v outside [0,100]", pct)
	}
	if err := s.allow(ctx, claims, OpWriteProgress); err != nil {
		return err
	}

	err := s.store.UpsertProgress(ctx, &ProgressRecord{
		CourseID:  claims.CourseID,
		SubjectID: claims.SubjectID(),
		Topic:     topic,
		Pct:       pct,
		UpdatedAt: s.nowFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "[Service.WriteProgress] store")
	}
	s.usage.Incr(OpWriteProgress)
	return nil
}

// SubmitAttempt records a completed attempt. Requires attempts.write.
// Idempotent on (course, subject, runtimeAttemptID) when the id is supplied;
// without it every call creates a new record.
func (s *Service) SubmitAttempt(ctx context.Context, claims *token.RuntimeClaims, score, max float64, passed bool, runtimeAttemptID string) error {
	if !claims.ScopeSet().Contains(scopes.AttemptsWrite) {
		return runtimeauth.ErrForbidden
	}
	if max <= 0 || score < 0 || score > max {
		return errors.Wrapf(ErrInvalidInput, "score %v outside [0,%v]", score, max)
	}
	if err := s.allow(ctx, claims, OpSubmitAttempt); err != nil {
		return err
	}

	err := s.store.SaveAttempt(ctx, &AttemptRecord{
		ID:               uuid.New().String(),
		CourseID:         claims.CourseID,
		SubjectID:        claims.SubjectID(),
		RuntimeAttemptID: runtimeAttemptID,
		Score:            score,
		MaxScore:         max,
		Passed:           passed,
		SubmittedAt:      s.nowFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "[Service.SubmitAttempt] store")
	}
	s.usage.Incr(OpSubmitAttempt)
	return nil
}

// EmitEvent appends an audit/analytics event. Requires only a valid runtime
// token; unknown types are recorded as-is to stay forward-compatible.
func (s *Service) EmitEvent(ctx context.Context, claims *token.RuntimeClaims, eventType string, payload json.RawMessage) error {
	if eventType == "" {
		return errors.Wrap(ErrInvalidInput, "event type is required")
	}
	if err := s.allow(ctx, claims, OpEmitEvent); err != nil {
		return err
	}

	err := s.store.InsertEvent(ctx, &EventRecord{
		ID:         uuid.New().String(),
		CourseID:   claims.CourseID,
		SubjectID:  claims.SubjectID(),
		Type:       eventType,
		Payload:    payload,
		RecordedAt: s.nowFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "[Service.EmitEvent] store")
	}
	s.usage.Incr(OpEmitEvent)
	return nil
}

// SaveCheckpoint stores the content's checkpoint state for later resume.
// Requires progress.write.
func (s *Service) SaveCheckpoint(ctx context.Context, claims *token.RuntimeClaims, state json.RawMessage) error {
	if !claims.ScopeSet().Contains(scopes.ProgressWrite) {
		return runtimeauth.ErrForbidden
	}
	if len(state) == 0 {
		return errors.Wrap(ErrInvalidInput, "checkpoint state is required")
	}
	if err := s.allow(ctx, claims, OpSaveCheckpoint); err != nil {
		return err
	}

	err := s.store.UpsertCheckpoint(ctx, &CheckpointRecord{
		CourseID:  claims.CourseID,
		SubjectID: claims.SubjectID(),
		State:     state,
		SavedAt:   s.nowFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "[Service.SaveCheckpoint] store")
	}
	s.usage.Incr(OpSaveCheckpoint)
	return nil
}

// LoadCheckpoint returns the stored checkpoint for the claims' subject and
// course, or nil when none has been saved. Requires progress.read.
func (s *Service) LoadCheckpoint(ctx context.Context, claims *token.RuntimeClaims) (*CheckpointRecord, error) {
	if !claims.ScopeSet().Contains(scopes.ProgressRead) {
		return nil, runtimeauth.ErrForbidden
	}
	rec, err := s.store.LoadCheckpoint(ctx, claims.CourseID, claims.SubjectID())
	if err != nil {
		return nil, errors.Wrap(err, "[Service.LoadCheckpoint] store")
	}
	return rec, nil
}

// AssetURL mints a short-lived signed URL for a course asset. Requires
// files.read. Only the URL is minted here; serving the file belongs to the
// storage collaborator.
func (s *Service) AssetURL(ctx context.Context, claims *token.RuntimeClaims, assetPath string) (string, error) {
	if !claims.ScopeSet().Contains(scopes.FilesRead) {
		return "", runtimeauth.ErrForbidden
	}
	if len(s.assetSecret) == 0 {
		return "", errors.New("[Service.AssetURL] asset signing not configured")
	}
	if assetPath == "" || assetPath[0] != '/' {
		return "", errors.Wrap(ErrInvalidInput, "asset path must be absolute")
	}
	if err := s.allow(ctx, claims, OpAssetURL); err != nil {
		return "", err
	}

	exp := s.nowFunc().Add(s.assetTTL).Unix()
	sig := s.assetSignature(claims.CourseID, assetPath, exp)
	q := url.Values{}
	q.Set("exp", strconv.FormatInt(exp, 10))
	q.Set("sig", sig)
	s.usage.Incr(OpAssetURL)
	return assetPath + "?" + q.Encode(), nil
}

// VerifyAssetURL checks a minted asset URL's signature and expiry.
func (s *Service) VerifyAssetURL(courseID, assetPath string, exp int64, sig string) bool {
	if s.nowFunc().Unix() > exp {
		return false
	}
	expected := s.assetSignature(courseID, assetPath, exp)
	return hmac.Equal([]byte(expected), []byte(sig))
}

func (s *Service) assetSignature(courseID, assetPath string, exp int64) string {
	mac := hmac.New(sha256.New, s.assetSecret)
	fmt.Fprintf(mac, "%s\n%s\n%d", courseID, assetPath, exp)
	return hex.EncodeToString(mac.Sum(nil))
}

// allow consults the rate limiter before any write. On limit exceeded the
// operation performs no write and reports the retry-after hint.
func (s *Service) allow(ctx context.Context, claims *token.RuntimeClaims, operation string) error {
	res, err := s.limiter.Allow(ctx, rate.Key(claims.SubjectID(), claims.CourseID, operation))
	if err != nil {
		return errors.Wrap(err, "[Service.allow] limiter")
	}
	if !res.Allowed {
		s.logger.Warn().
			Str("subject_id", claims.SubjectID()).
			Str("course_id", claims.CourseID).
			Str("operation", operation).
			Msg("rate limited")
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}
	return nil
}
