package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learntrack/learntrack/internal/model"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCodeStoreSingleUse(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewCodeStore(rdb)
	ctx := context.Background()

	ac := model.AuthorizationCode{ClientID: "learntrack", RedirectURI: "http://cb", UserID: 7, Scopes: []string{"read"}}
	require.NoError(t, store.Save(ctx, "abc", ac, time.Minute))

	got, err := store.Consume(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.UserID)
	assert.Equal(t, []string{"read"}, got.Scopes)

	_, err = store.Consume(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCodeStoreExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	store := NewCodeStore(rdb)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "abc", model.AuthorizationCode{UserID: 1}, time.Minute))
	assert.ErrorIs(t, store.Save(ctx, "abc", model.AuthorizationCode{UserID: 2}, time.Minute), ErrDuplicate)

	mr.FastForward(2 * time.Minute)
	_, err := store.Consume(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore(t *testing.T) {
	_, rdb := newRedis(t)
	store := NewSessionStore(rdb)
	ctx := context.Background()

	_, err := store.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, store.Save(ctx, "sid", model.Session{Username: "lecturer", AccessToken: "tok", ExpiresAt: exp}, time.Hour))

	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "lecturer", got.Username)
	assert.True(t, got.Authenticated(time.Now()))

	require.NoError(t, store.Delete(ctx, "sid"))
	_, err = store.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}
