package providers

import (
	"context"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
)

// SignatureVerifier checks a compact token's signature against a provider's
// published key set and returns the raw payload on success.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, jwksURL, rawToken string) ([]byte, error)
}

// RemoteKeys verifies signatures against providers' remote JWKS endpoints.
// Key sets are cached per URL and refreshed by the underlying oidc client on
// unknown key IDs. A fetch failure is surfaced as ErrKeyUnavailable and must
// be treated as a verification failure, never as a skip.
type RemoteKeys struct {
	mu   sync.Mutex
	sets map[string]*oidc.RemoteKeySet
}

var _ SignatureVerifier = (*RemoteKeys)(nil)

func NewRemoteKeys() *RemoteKeys {
	return &RemoteKeys{sets: make(map[string]*oidc.RemoteKeySet)}
}

func (r *RemoteKeys) VerifySignature(ctx context.Context, jwksURL, rawToken string) ([]byte, error) {
	r.mu.Lock()
	set, ok := r.sets[jwksURL]
	if !ok {
		// The key set keeps fetching with this context for its lifetime,
		// so cache it detached from the request context.
		set = oidc.NewRemoteKeySet(context.Background(), jwksURL)
		r.sets[jwksURL] = set
	}
	r.mu.Unlock()

	payload, err := set.VerifySignature(ctx, rawToken)
	if err != nil {
		return nil, errors.Wrap(ErrKeyUnavailable, err.Error())
	}
	return payload, nil
}
