package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/coursebridge/launchgate/providers"
	"github.com/coursebridge/launchgate/scopes"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const nonceBytes = 16 // 128 bits, well above the 8-char floor

// Issuer mints launch tokens when the platform opens embedded content for a
// user. Issuance always clamps the requested scopes to the provider's
// configured grant; a launch token can never carry more capability than the
// course's provider was registered with.
type Issuer struct {
	directory providers.Directory
	signer    Signer
	issuer    string
	ttl       time.Duration
	nowFunc   func() time.Time
}

// IssuerOption modifies an Issuer.
type IssuerOption func(*Issuer)

// WithLaunchTTL overrides the launch token lifetime. The window only needs
// to cover the time between rendering the embed link and the page opening.
func WithLaunchTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.ttl = ttl }
}

// WithIssuerNowFunc sets the clock (primarily for testing).
func WithIssuerNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.nowFunc = now }
}

// NewIssuer creates a launch token issuer signing with the platform's native
// launch signer. Externally-signed launch tokens are the provider's own
// business; the exchanger verifies either kind.
func NewIssuer(directory providers.Directory, signer Signer, issuerName string, options ...IssuerOption) (*Issuer, error) {
	if directory == nil {
		return nil, errors.New("[NewIssuer] directory is required")
	}
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}

	i := &Issuer{
		directory: directory,
		signer:    signer,
		issuer:    issuerName,
		ttl:       5 * time.Minute,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i, nil
}

// Issue mints a launch token for the given subject opening the given course.
// Requested scopes are clamped to the provider's configured grant and a
// fresh single-use nonce is generated. Returns the claims alongside the
// signed compact token.
func (i *Issuer) Issue(ctx context.Context, subjectID, courseID string, role Role, requested scopes.Set, callbackURL string) (*LaunchClaims, string, error) {
	if subjectID == "" || courseID == "" {
		return nil, "", errors.New("[Issuer.Issue] subject and course are required")
	}
	if !role.IsValid() {
		return nil, "", errors.Errorf("[Issuer.Issue] unknown role %q", role)
	}

	provider, err := i.directory.ForCourse(ctx, courseID)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Issuer.Issue] resolve provider")
	}

	granted := requested.Intersect(provider.Scopes)

	nonce, err := newNonce()
	if err != nil {
		return nil, "", errors.Wrap(err, "[Issuer.Issue] nonce")
	}

	now := i.nowFunc()
	claims := &LaunchClaims{
		CourseID:    courseID,
		Role:        role,
		Scopes:      granted.Strings(),
		Nonce:       nonce,
		CallbackURL: callbackURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return nil, "", errors.Wrap(err, "[Issuer.Issue] sign")
	}
	return claims, signed, nil
}

func newNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
