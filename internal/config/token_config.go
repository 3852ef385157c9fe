package config

import "time"

type TokenConfig interface {
	GetLaunchTokenTTL() time.Duration
	GetRuntimeTokenTTL() time.Duration
	GetClockSkew() time.Duration
	GetLaunchSecret() string
	GetRuntimeSecret() string
	GetAssetSecret() string
	GetAssetURLTTL() time.Duration
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

func (Tokens) GetLaunchTokenTTL() time.Duration {
	return getDuration("LAUNCH_TOKEN_TTL", 5*time.Minute)
}

func (Tokens) GetRuntimeTokenTTL() time.Duration {
	return getDuration("RUNTIME_TOKEN_TTL", 10*time.Minute)
}

func (Tokens) GetClockSkew() time.Duration {
	return getDuration("CLOCK_SKEW", 30*time.Second)
}

// GetLaunchSecret signs launch tokens. No default; an empty value must stop
// startup.
func (Tokens) GetLaunchSecret() string {
	return GetEnv("LAUNCH_TOKEN_SECRET", "")
}

// GetRuntimeSecret signs runtime tokens. Deliberately independent from the
// launch secret so one credential class never verifies as the other.
func (Tokens) GetRuntimeSecret() string {
	return GetEnv("RUNTIME_TOKEN_SECRET", "")
}

func (Tokens) GetAssetSecret() string {
	return GetEnv("ASSET_URL_SECRET", "")
}

func (Tokens) GetAssetURLTTL() time.Duration {
	return getDuration("ASSET_URL_TTL", 5*time.Minute)
}
