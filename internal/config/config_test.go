package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadResourceServerDefaults(t *testing.T) {
	t.Setenv("DB_USER", "lt")
	t.Setenv("DB_NAME", "learntrack")

	c, err := LoadResourceServer()
	require.NoError(t, err)

	assert.Equal(t, ":8090", c.Addr)
	assert.Equal(t, 15*time.Minute, c.JWKSCacheTTL)
	assert.False(t, c.AdminOverride)
	assert.False(t, c.ReviewsAllowAnonymous)
	assert.Equal(t, "localhost:6379", c.Address())
}

func TestLoadAuthServerRequiresDatabase(t *testing.T) {
	t.Setenv("DB_USER", "x")
	t.Setenv("DB_NAME", "x")
	require.NoError(t, os.Unsetenv("DB_USER"))
	require.NoError(t, os.Unsetenv("DB_NAME"))

	_, err := LoadAuthServer()
	require.Error(t, err)
}

func TestLoadAuthServerDefaultClient(t *testing.T) {
	t.Setenv("DB_USER", "lt")
	t.Setenv("DB_NAME", "learntrack")
	t.Setenv("DEFAULT_CLIENT_SCOPES", "openid,read")

	c, err := LoadAuthServer()
	require.NoError(t, err)

	assert.Equal(t, "learntrack", c.ClientID)
	assert.Equal(t, []string{"openid", "read"}, c.ClientScopes)
	assert.Equal(t, 240*time.Hour, c.ClientAccessTTL)
	assert.True(t, c.ClientReuseRefresh)
}

func TestRateLimitNormalize(t *testing.T) {
	c := RateLimitConfig{Capacity: 0, RefillTokens: 0, RefillInterval: 2 * time.Second, TTL: time.Second}.normalize()

	assert.Equal(t, 1, c.Capacity)
	assert.Equal(t, 1, c.RefillTokens)
	assert.Equal(t, 10*time.Second, c.TTL)
}

func TestCacheMethodSet(t *testing.T) {
	c := CacheConfig{Methods: []string{" get", "HEAD", ""}}
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, c.MethodSet())
}

func TestRedisAddress(t *testing.T) {
	assert.Equal(t, "cache:6380", Redis{RedisAddr: "x:1", RedisHost: "cache", RedisPort: "6380"}.Address())
	assert.Equal(t, "x:1", Redis{RedisAddr: "x:1"}.Address())
}
