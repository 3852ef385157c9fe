package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter is a single-process fixed-window limiter for development and
// tests, sharing the window algorithm of the Redis backend.
type MemoryLimiter struct {
	mu     sync.Mutex
	c      *gocache.Cache
	Max    int64
	Window time.Duration
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		c:      gocache.New(window, time.Minute),
		Max:    int64(max),
		Window: window,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	winStart := time.Now().UTC().Truncate(l.Window)
	windowKey := fmt.Sprintf("%s:%d", key, winStart.Unix())

	// go-cache increments are atomic per entry but Add+Increment is not one
	// operation, so the window rollover is guarded here.
	l.mu.Lock()
	if _, ok := l.c.Get(windowKey); !ok {
		l.c.Set(windowKey, int64(0), l.Window)
	}
	hits, err := l.c.IncrementInt64(windowKey, 1)
	l.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	allowed := hits <= l.Max
	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
	}
	if !allowed {
		res.RetryAfter = time.Until(winStart.Add(l.Window))
		if res.RetryAfter < 0 {
			res.RetryAfter = l.Window
		}
	}
	return res, nil
}
