// Package config reads the externally supplied runtime configuration. Every
// tunable has a development default so a bare process starts, but secrets
// must always come from the environment.
package config

type Config interface {
	EnvConfig
	TokenConfig
	RateLimitConfig
	StorageConfig
}

type mainConfig struct {
	EnvVars
	Tokens
	RateLimits
	Storage
}

func New() Config {
	return mainConfig{}
}
