package nonce

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryRegistry is a single-process registry for development and tests. In a
// multi-instance deployment the registry must be backed by a shared store;
// use RedisRegistry there.
type MemoryRegistry struct {
	c *gocache.Cache
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an in-process registry. Expired records are swept
// every minute; a sweep never removes an unexpired key.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *MemoryRegistry) Claim(_ context.Context, key string, ttl time.Duration) error {
	// gocache.Add inserts only if no live entry exists, under the cache
	// mutex, which gives the required check-and-set atomicity.
	if err := m.c.Add(key, struct{}{}, ttl); err != nil {
		return ErrAlreadyClaimed
	}
	return nil
}
