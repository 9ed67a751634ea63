package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig defines settings for the public GET response cache on the
// resource server. Caching is off when Enabled is false or Redis is
// unavailable.
type CacheConfig struct {
	Enabled      bool          `envconfig:"CACHE_ENABLED" default:"true"`
	Methods      []string      `envconfig:"CACHE_METHODS" default:"GET"`
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	Prefix       string        `envconfig:"CACHE_PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"CACHE_MAX_BODY_BYTES" default:"1048576"`
}

// LoadCacheConfig reads CACHE_* variables.
func LoadCacheConfig() (CacheConfig, error) {
	var c CacheConfig
	if err := envconfig.Process("", &c); err != nil {
		return c, fmt.Errorf("cache config: %w", err)
	}
	return c, nil
}

// MethodSet returns the upper-cased cacheable methods.
func (c CacheConfig) MethodSet() map[string]bool {
	m := make(map[string]bool, len(c.Methods))
	for _, p := range c.Methods {
		if p = strings.TrimSpace(strings.ToUpper(p)); p != "" {
			m[p] = true
		}
	}
	return m
}
