package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig drives the Redis token bucket in front of the login and
// token endpoints.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"20"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"3s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables and clamps nonsensical
// values.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var c RateLimitConfig
	if err := envconfig.Process("", &c); err != nil {
		return c, fmt.Errorf("rate limit config: %w", err)
	}
	return c.normalize(), nil
}

func (c RateLimitConfig) normalize() RateLimitConfig {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	// A bucket must outlive several refill periods or it resets to full.
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
	return c
}
