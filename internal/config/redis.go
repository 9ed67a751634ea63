package config

// Redis backs rate limiting, response caching, authorization codes and
// client sessions. When the server cannot be reached at startup the
// constructor returns nil and callers degrade: caching and rate limiting
// are disabled, features that need Redis fail to start.

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis holds the connection settings. REDIS_HOST and REDIS_PORT take
// precedence over REDIS_ADDR when both are set.
type Redis struct {
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisHost     string `envconfig:"REDIS_HOST"`
	RedisPort     string `envconfig:"REDIS_PORT"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisTLS      bool   `envconfig:"REDIS_TLS"`
}

// Address resolves the host:port to dial.
func (r Redis) Address() string {
	if r.RedisHost != "" && r.RedisPort != "" {
		return r.RedisHost + ":" + r.RedisPort
	}
	return r.RedisAddr
}

// NewRedisClient dials Redis and pings it with a short timeout. It returns
// nil if the server is unreachable.
func NewRedisClient(ctx context.Context, r Redis) *redis.Client {
	var tlsConf *tls.Config
	if r.RedisTLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      r.Address(),
		Password:  r.RedisPassword,
		DB:        r.RedisDB,
		TLSConfig: tlsConf,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
