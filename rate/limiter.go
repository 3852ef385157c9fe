// Package rate provides the fixed-window rate limiter collaborator. Counters
// are independent per key, so there is no cross-key contention.
package rate

import (
	"context"
	"strings"
	"time"
)

// Result reports the outcome of one limiter check.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter answers whether one more action is allowed for the key within the
// current window. Increments must be atomic per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Key builds the canonical limiter key for a protected write operation.
func Key(subjectID, courseID, operation string) string {
	return strings.Join([]string{subjectID, courseID, operation}, ":")
}
