package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coursebridge/launchgate/launch"
	"github.com/coursebridge/launchgate/outcomes"
	"github.com/coursebridge/launchgate/runtimeauth"
	"github.com/pkg/errors"
)

// Error codes returned to API callers.
const (
	CodeInvalidToken     = "INVALID_TOKEN"
	CodeExpired          = "EXPIRED"
	CodeAudienceMismatch = "AUDIENCE_MISMATCH"
	CodeReplayed         = "REPLAYED"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeForbidden        = "FORBIDDEN"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInternal         = "INTERNAL"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps protocol errors onto the structured {code, message} body.
// Unrecognized errors become an opaque 500; their detail stays in the logs.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := CodeInternal
	message := "internal error"

	var rateLimited *outcomes.RateLimitedError

	switch {
	case errors.Is(err, launch.ErrReplayed):
		status, code, message = http.StatusConflict, CodeReplayed, "launch token already redeemed"
	case errors.Is(err, launch.ErrExpired):
		status, code, message = http.StatusUnauthorized, CodeExpired, "token expired"
	case errors.Is(err, launch.ErrAudienceMismatch):
		status, code, message = http.StatusForbidden, CodeAudienceMismatch, "request origin does not match the provider"
	case errors.Is(err, launch.ErrInvalidToken):
		status, code, message = http.StatusUnauthorized, CodeInvalidToken, "invalid launch token"
	case errors.Is(err, runtimeauth.ErrUnauthenticated):
		status, code, message = http.StatusUnauthorized, CodeUnauthenticated, "missing, invalid or expired runtime token"
	case errors.Is(err, runtimeauth.ErrForbidden):
		status, code, message = http.StatusForbidden, CodeForbidden, "runtime token does not grant the required scope"
	case errors.As(err, &rateLimited):
		status, code, message = http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded"
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(rateLimited)))
	case errors.Is(err, outcomes.ErrInvalidInput):
		status, code, message = http.StatusBadRequest, CodeInvalidRequest, "invalid request payload"
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func retryAfterSeconds(err *outcomes.RateLimitedError) int {
	secs := int(err.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
