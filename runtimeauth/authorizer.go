// Package runtimeauth validates runtime tokens on every protected call and
// enforces the scope each operation requires.
package runtimeauth

import (
	"time"

	"github.com/coursebridge/launchgate/scopes"
	"github.com/coursebridge/launchgate/token"
	"github.com/pkg/errors"
)

var (
	// ErrUnauthenticated covers missing, malformed, badly signed, and
	// expired runtime tokens: no trusted identity at all.
	ErrUnauthenticated = errors.New("runtime token invalid or expired")
	// ErrForbidden means the token is valid but its grant does not include
	// the required scope. Distinct from ErrUnauthenticated so callers can
	// tell "who are you" failures from "you may not" failures.
	ErrForbidden = errors.New("runtime token lacks required scope")
)

// Authorizer checks runtime tokens statelessly: validity is re-derived from
// signature and expiry on each call. Runtime tokens are not single-use, so
// the nonce registry is never consulted here.
type Authorizer struct {
	signer  token.Signer
	skew    time.Duration
	nowFunc func() time.Time
}

// AuthorizerOption modifies an Authorizer.
type AuthorizerOption func(*Authorizer)

// WithClockSkew sets the allowance applied to expiry checks.
func WithClockSkew(skew time.Duration) AuthorizerOption {
	return func(a *Authorizer) { a.skew = skew }
}

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) AuthorizerOption {
	return func(a *Authorizer) { a.nowFunc = now }
}

// NewAuthorizer creates an Authorizer verifying with the runtime signing key.
func NewAuthorizer(signer token.Signer, options ...AuthorizerOption) (*Authorizer, error) {
	if signer == nil {
		return nil, errors.New("[NewAuthorizer] signer is required")
	}
	a := &Authorizer{
		signer:  signer,
		skew:    30 * time.Second,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(a)
	}
	return a, nil
}

// Authorize verifies the bearer token and checks that its grant contains the
// required scope. Claims are returned as an ordinary value; they are never
// stashed in shared state.
func (a *Authorizer) Authorize(bearerToken string, required scopes.Scope) (*token.RuntimeClaims, error) {
	claims, err := token.ParseRuntime(bearerToken, a.signer)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if !claims.Live(a.nowFunc(), a.skew) {
		return nil, ErrUnauthenticated
	}
	if !claims.ScopeSet().Contains(required) {
		return nil, ErrForbidden
	}
	return claims, nil
}

// AuthorizeAny verifies the bearer token without requiring a specific scope.
// Used by operations gated only on holding a valid runtime token.
func (a *Authorizer) AuthorizeAny(bearerToken string) (*token.RuntimeClaims, error) {
	claims, err := token.ParseRuntime(bearerToken, a.signer)
	if err != nil {
		return nil, ErrUnauthenticated
	}
	if !claims.Live(a.nowFunc(), a.skew) {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}
