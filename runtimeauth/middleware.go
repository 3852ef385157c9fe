package runtimeauth

import (
	"context"
	"net/http"
	"strings"

	"github.com/coursebridge/launchgate/scopes"
	"github.com/coursebridge/launchgate/token"
)

// contextKey is a private type so no other package can collide with or forge
// the claims entry.
type contextKey struct{}

var claimsKey contextKey

// FromContext returns the runtime claims the middleware attached to the
// request, if any.
func FromContext(ctx context.Context) (*token.RuntimeClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.RuntimeClaims)
	return claims, ok
}

// ErrorWriter renders an authorization failure onto the response. Wired by
// the HTTP layer so the middleware stays free of response formatting.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Require returns middleware enforcing the given scope on every request. The
// verified claims ride the request context for the handler.
func (a *Authorizer) Require(required scopes.Scope, writeError ErrorWriter) func(http.Handler) http.Handler {
	return a.middleware(func(bearer string) (*token.RuntimeClaims, error) {
		return a.Authorize(bearer, required)
	}, writeError)
}

// RequireToken returns middleware that only demands a valid runtime token,
// with no extra scope.
func (a *Authorizer) RequireToken(writeError ErrorWriter) func(http.Handler) http.Handler {
	return a.middleware(a.AuthorizeAny, writeError)
}

func (a *Authorizer) middleware(authorize func(string) (*token.RuntimeClaims, error), writeError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, ok := bearerToken(r)
			if !ok {
				writeError(w, r, ErrUnauthenticated)
				return
			}
			claims, err := authorize(bearer)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
