package config

type StorageConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetPostgresDSN() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

// GetRedisAddr selects the shared nonce registry and rate limiter backend.
// Empty means single-process in-memory mode, a development simplification
// only.
func (Storage) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Storage) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

// GetPostgresDSN selects the durable outcome store. Empty means in-memory.
func (Storage) GetPostgresDSN() string {
	return GetEnv("POSTGRES_DSN", "")
}
