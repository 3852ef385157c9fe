package runtimeauth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coursebridge/launchgate/runtimeauth"
	"github.com/coursebridge/launchgate/scopes"
	"github.com/coursebridge/launchgate/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const runtimeSecret = "runtime-secret"

func mintRuntime(t *testing.T, ss []string, expiresIn time.Duration) string {
	t.Helper()
	raw, err := token.NewHMACSigner(runtimeSecret).Sign(&token.RuntimeClaims{
		CourseID: "c1",
		Role:     token.RoleStudent,
		Scopes:   ss,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	require.NoError(t, err)
	return raw
}

func newAuthorizer(t *testing.T) *runtimeauth.Authorizer {
	t.Helper()
	a, err := runtimeauth.NewAuthorizer(token.NewHMACSigner(runtimeSecret))
	require.NoError(t, err)
	return a
}

func TestAuthorize(t *testing.T) {
	a := newAuthorizer(t)

	t.Run("valid token with scope", func(t *testing.T) {
		raw := mintRuntime(t, []string{"progress.write"}, time.Minute)
		claims, err := a.Authorize(raw, scopes.ProgressWrite)
		require.NoError(t, err)
		require.Equal(t, "u1", claims.SubjectID())
		require.Equal(t, "c1", claims.CourseID)
	})

	t.Run("missing scope is forbidden not unauthenticated", func(t *testing.T) {
		raw := mintRuntime(t, []string{"progress.write"}, time.Minute)
		_, err := a.Authorize(raw, scopes.AttemptsWrite)
		require.ErrorIs(t, err, runtimeauth.ErrForbidden)
	})

	t.Run("expired token is unauthenticated", func(t *testing.T) {
		raw := mintRuntime(t, []string{"progress.write"}, -time.Hour)
		_, err := a.Authorize(raw, scopes.ProgressWrite)
		require.ErrorIs(t, err, runtimeauth.ErrUnauthenticated)
	})

	t.Run("wrong key is unauthenticated", func(t *testing.T) {
		raw, err := token.NewHMACSigner("other").Sign(&token.RuntimeClaims{
			Scopes: []string{"progress.write"},
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		})
		require.NoError(t, err)
		_, err = a.Authorize(raw, scopes.ProgressWrite)
		require.ErrorIs(t, err, runtimeauth.ErrUnauthenticated)
	})

	t.Run("garbage is unauthenticated", func(t *testing.T) {
		_, err := a.Authorize("garbage", scopes.ProgressWrite)
		require.ErrorIs(t, err, runtimeauth.ErrUnauthenticated)
	})
}

func TestAuthorizeAny(t *testing.T) {
	a := newAuthorizer(t)

	// No scopes at all is still a valid runtime identity.
	raw := mintRuntime(t, nil, time.Minute)
	claims, err := a.AuthorizeAny(raw)
	require.NoError(t, err)
	require.Empty(t, claims.ScopeSet())

	_, err = a.AuthorizeAny(mintRuntime(t, nil, -time.Minute))
	require.ErrorIs(t, err, runtimeauth.ErrUnauthenticated)
}

func TestRequireMiddleware(t *testing.T) {
	a := newAuthorizer(t)

	writeErr := func(w http.ResponseWriter, _ *http.Request, err error) {
		if err == runtimeauth.ErrForbidden {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}

	var seen *token.RuntimeClaims
	handler := a.Require(scopes.ProgressWrite, writeErr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = runtimeauth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("authorized request reaches handler with claims", func(t *testing.T) {
		seen = nil
		req := httptest.NewRequest(http.MethodPost, "/v1/progress", nil)
		req.Header.Set("Authorization", "Bearer "+mintRuntime(t, []string{"progress.write"}, time.Minute))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, seen)
		require.Equal(t, "u1", seen.SubjectID())
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/progress", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/progress", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("insufficient scope", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/progress", nil)
		req.Header.Set("Authorization", "Bearer "+mintRuntime(t, []string{"files.read"}, time.Minute))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}
