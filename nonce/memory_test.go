package nonce_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coursebridge/launchgate/nonce"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k1 := nonce.Key("u1", "c1", "abcdefgh")
	k2 := nonce.Key("u1", "c1", "abcdefgh")
	require.Equal(t, k1, k2)
	require.Len(t, k1, 64)

	// Component boundaries matter: ("ab","c") must not collide with ("a","bc").
	require.NotEqual(t, nonce.Key("ab", "c", "n"), nonce.Key("a", "bc", "n"))
	require.NotEqual(t, k1, nonce.Key("u1", "c1", "other-nonce"))
}

func TestMemoryRegistry_ClaimOnce(t *testing.T) {
	reg := nonce.NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Claim(ctx, "k1", time.Minute))
	require.ErrorIs(t, reg.Claim(ctx, "k1", time.Minute), nonce.ErrAlreadyClaimed)

	// Independent keys do not contend.
	require.NoError(t, reg.Claim(ctx, "k2", time.Minute))
}

func TestMemoryRegistry_ConcurrentClaim(t *testing.T) {
	reg := nonce.NewMemoryRegistry()
	ctx := context.Background()

	const callers = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)
	start := make(chan struct{})

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := reg.Claim(ctx, "contested", time.Minute); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	close(start)
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	require.Equal(t, 1, count, "exactly one concurrent claim may succeed")
}

func TestMemoryRegistry_ExpiryReleasesKey(t *testing.T) {
	reg := nonce.NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Claim(ctx, "short", 10*time.Millisecond))
	require.ErrorIs(t, reg.Claim(ctx, "short", 10*time.Millisecond), nonce.ErrAlreadyClaimed)

	time.Sleep(25 * time.Millisecond)

	// After the originating token would have expired the record may be
	// collected; a fresh claim for the same key is then valid again.
	require.NoError(t, reg.Claim(ctx, "short", time.Minute))
}
