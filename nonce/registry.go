// Package nonce records consumed single-use launch identifiers. A key may be
// claimed exactly once for its lifetime; concurrent claims for the same key
// resolve to a single winner.
package nonce

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
)

// ErrAlreadyClaimed is returned when a key has already been consumed.
var ErrAlreadyClaimed = errors.New("nonce already claimed")

// Registry is the single shared mutable resource of the exchange protocol.
// Claim must be an atomic check-and-set: of any number of concurrent callers
// presenting the same key, exactly one may observe success.
type Registry interface {
	// Claim inserts the key if absent and returns ErrAlreadyClaimed if a
	// live record exists. The record expires after ttl, bounding memory to
	// the launch token lifetime.
	Claim(ctx context.Context, key string, ttl time.Duration) error
}

// Key derives the registry key for a launch token issuance.
func Key(subjectID, courseID, nonce string) string {
	h := sha256.New()
	h.Write([]byte(subjectID))
	h.Write([]byte{0})
	h.Write([]byte(courseID))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil))
}
