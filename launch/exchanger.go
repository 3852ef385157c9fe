// Package launch implements the exchange boundary: the single call an
// embedded content page makes at startup to trade its launch token for a
// short-lived scoped runtime token.
package launch

import (
	"context"
	"time"

	"github.com/coursebridge/launchgate/nonce"
	"github.com/coursebridge/launchgate/providers"
	"github.com/coursebridge/launchgate/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const minNonceLength = 8

var (
	// ErrInvalidToken covers malformed structure, bad signatures, and
	// unavailable provider keys (which must fail closed, never skip).
	ErrInvalidToken = errors.New("invalid launch token")
	// ErrExpired is returned for a structurally valid token past its expiry.
	ErrExpired = errors.New("launch token expired")
	// ErrAudienceMismatch is returned when the redeeming origin is not the
	// one registered for the course's provider.
	ErrAudienceMismatch = errors.New("request origin not registered for this launch")
	// ErrReplayed is returned when the launch nonce was already consumed.
	ErrReplayed = errors.New("launch token already exchanged")
)

// Result is the successful outcome of an exchange.
type Result struct {
	RuntimeToken string
	ExpiresAt    time.Time
	Claims       *token.RuntimeClaims
}

// Exchanger verifies launch tokens and issues runtime tokens. Safe for
// concurrent use; the only shared mutable state it touches is the nonce
// registry, whose claim is atomic.
type Exchanger struct {
	directory     providers.Directory
	registry      nonce.Registry
	launchSigner  token.Signer
	runtimeSigner token.Signer
	remote        providers.SignatureVerifier
	allowOrigins  map[string]struct{}
	issuer        string
	runtimeTTL    time.Duration
	skew          time.Duration
	nowFunc       func() time.Time
	logger        zerolog.Logger
}

// ExchangerOption modifies an Exchanger.
type ExchangerOption func(*Exchanger)

// WithRuntimeTTL sets the runtime token lifetime. It is independent of (and
// usually longer than) the launch token's.
func WithRuntimeTTL(ttl time.Duration) ExchangerOption {
	return func(e *Exchanger) { e.runtimeTTL = ttl }
}

// WithClockSkew sets the allowance applied to expiry checks.
func WithClockSkew(skew time.Duration) ExchangerOption {
	return func(e *Exchanger) { e.skew = skew }
}

// WithOriginAllowList configures the fallback origins accepted for courses
// that have no registered provider.
func WithOriginAllowList(origins []string) ExchangerOption {
	return func(e *Exchanger) {
		e.allowOrigins = make(map[string]struct{}, len(origins))
		for _, o := range origins {
			if n := providers.NormalizeOrigin(o); n != "" {
				e.allowOrigins[n] = struct{}{}
			}
		}
	}
}

// WithRemoteKeys wires the remote key set verifier used for launch tokens
// signed by externally hosted providers.
func WithRemoteKeys(remote providers.SignatureVerifier) ExchangerOption {
	return func(e *Exchanger) { e.remote = remote }
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) ExchangerOption {
	return func(e *Exchanger) { e.nowFunc = now }
}

// WithLogger sets the component logger.
func WithLogger(logger zerolog.Logger) ExchangerOption {
	return func(e *Exchanger) { e.logger = logger }
}

// NewExchanger wires the exchange boundary. launchSigner verifies natively
// issued launch tokens; runtimeSigner signs the runtime tokens it mints and
// must use an independent key.
func NewExchanger(directory providers.Directory, registry nonce.Registry, launchSigner, runtimeSigner token.Signer, issuerName string, options ...ExchangerOption) (*Exchanger, error) {
	if directory == nil {
		return nil, errors.New("[NewExchanger] directory is required")
	}
	if registry == nil {
		return nil, errors.New("[NewExchanger] nonce registry is required")
	}
	if launchSigner == nil || runtimeSigner == nil {
		return nil, errors.New("[NewExchanger] launch and runtime signers are required")
	}

	e := &Exchanger{
		directory:     directory,
		registry:      registry,
		launchSigner:  launchSigner,
		runtimeSigner: runtimeSigner,
		issuer:        issuerName,
		runtimeTTL:    10 * time.Minute,
		skew:          30 * time.Second,
		nowFunc:       time.Now,
		logger:        zerolog.Nop(),
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Exchange runs the launch redemption algorithm. requestOrigin must be
// derived from the transport (the Origin header), never from a
// client-supplied body field. Each step short-circuits to its own error; the
// only side effect is one nonce registry record, created before the runtime
// token is signed, so a failure after that point still consumes the launch.
func (e *Exchanger) Exchange(ctx context.Context, rawToken, requestOrigin string) (*Result, error) {
	// Step 1: verify signature and decode claims. The provider is resolved
	// from the unverified payload only to pick the verification key; nothing
	// from the token is trusted until a signature checks out.
	unverified, err := token.UnverifiedLaunch(rawToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	provider, err := e.directory.ForCourse(ctx, unverified.CourseID)
	switch {
	case errors.Is(err, providers.ErrNotFound):
		provider = nil
	case err != nil:
		return nil, errors.Wrap(err, "[Exchanger.Exchange] provider lookup")
	}

	claims, err := e.verifySignature(ctx, rawToken, provider)
	if err != nil {
		e.logger.Debug().Err(err).Str("course_id", unverified.CourseID).Msg("launch verification failed")
		return nil, ErrInvalidToken
	}

	// Step 2: expiry, within the skew allowance.
	now := e.nowFunc()
	if !claims.Live(now, e.skew) {
		return nil, ErrExpired
	}

	// Step 3: bind the token to the page allowed to redeem it.
	if !e.originAllowed(provider, requestOrigin) {
		return nil, ErrAudienceMismatch
	}

	// Step 4: atomically consume the nonce. Exactly one caller can pass
	// this point for a given issuance, even under races and retries.
	if len(claims.Nonce) < minNonceLength {
		return nil, ErrInvalidToken
	}
	key := nonce.Key(claims.SubjectID(), claims.CourseID, claims.Nonce)
	ttl := claims.ExpiresAt.Sub(now) + e.skew
	if err := e.registry.Claim(ctx, key, ttl); err != nil {
		if errors.Is(err, nonce.ErrAlreadyClaimed) {
			return nil, ErrReplayed
		}
		return nil, errors.Wrap(err, "[Exchanger.Exchange] nonce claim")
	}

	// Step 5: monotonic narrowing. The runtime grant is the intersection of
	// what the launch carried and what the provider is configured for.
	granted := claims.ScopeSet()
	if provider != nil {
		granted = granted.Intersect(provider.Scopes)
	}

	// Step 6: mint the runtime token. A failure here leaves the nonce
	// consumed by design: the user restarts the launch flow rather than
	// retrying a token of unknown state.
	expiresAt := now.Add(e.runtimeTTL)
	runtimeClaims := &token.RuntimeClaims{
		CourseID: claims.CourseID,
		Role:     claims.Role,
		Scopes:   granted.Strings(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    e.issuer,
			Subject:   claims.SubjectID(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}
	signed, err := e.runtimeSigner.Sign(runtimeClaims)
	if err != nil {
		return nil, errors.Wrap(err, "[Exchanger.Exchange] sign runtime token")
	}

	e.logger.Info().
		Str("subject_id", claims.SubjectID()).
		Str("course_id", claims.CourseID).
		Str("scopes", granted.String()).
		Msg("launch exchanged")

	return &Result{RuntimeToken: signed, ExpiresAt: expiresAt, Claims: runtimeClaims}, nil
}

// verifySignature accepts launch tokens signed by either source: the
// platform's native launch key, or the course provider's own key (shared
// secret or published JWKS). A remote key fetch failure fails closed.
func (e *Exchanger) verifySignature(ctx context.Context, rawToken string, provider *providers.Provider) (*token.LaunchClaims, error) {
	claims, err := token.ParseLaunch(rawToken, e.launchSigner)
	if err == nil {
		return claims, nil
	}
	if errors.Is(err, token.ErrMalformed) {
		return nil, err
	}
	if provider == nil {
		return nil, err
	}

	if provider.SharedSecret != "" {
		return token.ParseLaunch(rawToken, token.NewHMACSigner(provider.SharedSecret))
	}

	if provider.JWKSURL != "" && e.remote != nil {
		payload, err := e.remote.VerifySignature(ctx, provider.JWKSURL, rawToken)
		if err != nil {
			return nil, err
		}
		return token.DecodeLaunchPayload(payload)
	}

	return nil, token.ErrInvalidSignature
}

func (e *Exchanger) originAllowed(provider *providers.Provider, requestOrigin string) bool {
	if provider != nil {
		return provider.MatchesOrigin(requestOrigin)
	}
	_, ok := e.allowOrigins[providers.NormalizeOrigin(requestOrigin)]
	return ok
}
