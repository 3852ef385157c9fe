package config

import "time"

type RateLimitConfig interface {
	GetRateLimitMax() int
	GetRateLimitWindow() time.Duration
}

type RateLimits struct{}

var _ RateLimitConfig = RateLimits{}

func (RateLimits) GetRateLimitMax() int {
	return getInt("RATE_LIMIT_MAX", 120)
}

func (RateLimits) GetRateLimitWindow() time.Duration {
	return getDuration("RATE_LIMIT_WINDOW", time.Minute)
}
