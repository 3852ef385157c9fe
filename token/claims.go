package token

import (
	"time"

	"github.com/coursebridge/launchgate/scopes"
	"github.com/golang-jwt/jwt/v5"
)

// Role identifies the kind of platform subject a token was issued for. The
// set is closed; resolve the role once at the boundary instead of comparing
// strings downstream.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// IsValid returns true if r belongs to the closed role set.
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleParent, RoleAdmin:
		return true
	}
	return false
}

// LaunchClaims is the payload of a launch token: the single-use credential
// minted when a user opens embedded content. It lives only long enough to be
// exchanged; nothing but its nonce registry entry is ever persisted.
type LaunchClaims struct {
	CourseID    string   `json:"course_id"`
	Role        Role     `json:"role"`
	Scopes      []string `json:"scopes"`
	Nonce       string   `json:"nonce"`
	CallbackURL string   `json:"callback_url"`
	jwt.RegisteredClaims
}

// ScopeSet returns the granted scopes as a validated set.
func (c *LaunchClaims) ScopeSet() scopes.Set {
	return scopes.FromStrings(c.Scopes)
}

// SubjectID returns the user the launch was minted for.
func (c *LaunchClaims) SubjectID() string { return c.Subject }

// RuntimeClaims is the payload of a runtime token: the short-lived credential
// embedded content presents on every protected call. Stateless; validity is
// re-derived from signature and expiry on each use.
type RuntimeClaims struct {
	CourseID string   `json:"course_id"`
	Role     Role     `json:"role"`
	Scopes   []string `json:"scopes"`
	jwt.RegisteredClaims
}

// ScopeSet returns the granted scopes as a validated set.
func (c *RuntimeClaims) ScopeSet() scopes.Set {
	return scopes.FromStrings(c.Scopes)
}

// SubjectID returns the user the token was exchanged for.
func (c *RuntimeClaims) SubjectID() string { return c.Subject }

// Claims without an expiry never pass the liveness check.
func expiresAfter(exp *jwt.NumericDate, now time.Time, skew time.Duration) bool {
	if exp == nil {
		return false
	}
	return exp.After(now.Add(-skew))
}

// Live reports whether the launch token is unexpired at now, allowing skew.
func (c *LaunchClaims) Live(now time.Time, skew time.Duration) bool {
	return expiresAfter(c.ExpiresAt, now, skew)
}

// Live reports whether the runtime token is unexpired at now, allowing skew.
func (c *RuntimeClaims) Live(now time.Time, skew time.Duration) bool {
	return expiresAfter(c.ExpiresAt, now, skew)
}
