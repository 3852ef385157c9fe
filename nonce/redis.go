package nonce

import (
	"context"
	"time"

	"github.com/pkg/errors"
	rdb "github.com/redis/go-redis/v9"
)

// RedisRegistry backs the registry with a shared Redis instance so that
// claims stay single-winner across processes. This is the production
// deployment contract.
type RedisRegistry struct {
	client *rdb.Client
	prefix string
}

var _ Registry = (*RedisRegistry)(nil)

func NewRedisRegistry(client *rdb.Client, prefix string) *RedisRegistry {
	if prefix == "" {
		prefix = "nonce:"
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

func (r *RedisRegistry) Claim(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, r.prefix+key, 1, ttl).Result()
	if err != nil {
		return errors.Wrap(err, "[RedisRegistry.Claim] SetNX")
	}
	if !ok {
		return ErrAlreadyClaimed
	}
	return nil
}
