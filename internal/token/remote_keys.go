package token

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

const (
	defaultJWKSTTL        = 15 * time.Minute
	defaultMinRefresh     = 10 * time.Second
	maxJWKSBytes          = 1 << 20
	remoteKeyCacheEntries = 64
)

// RemoteKeySet resolves verification keys from the issuer's JWKS
// endpoint. Keys are cached by kid for the configured TTL. A kid missing
// from the cache triggers a refetch, at most once per minRefresh. When a
// refetch fails the keys from the last successful fetch keep serving.
type RemoteKeySet struct {
	url        string
	client     *http.Client
	cache      *expirable.LRU[string, *rsa.PublicKey]
	minRefresh time.Duration
	now        func() time.Time
	log        zerolog.Logger

	mu        sync.Mutex
	lastFetch time.Time
	lastGood  map[string]*rsa.PublicKey
}

type RemoteOption func(*RemoteKeySet)

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(s *RemoteKeySet) { s.client = c }
}

// WithMinRefresh bounds how often an unknown kid may force a refetch.
func WithMinRefresh(d time.Duration) RemoteOption {
	return func(s *RemoteKeySet) { s.minRefresh = d }
}

func WithRemoteClock(now func() time.Time) RemoteOption {
	return func(s *RemoteKeySet) { s.now = now }
}

func WithLogger(l zerolog.Logger) RemoteOption {
	return func(s *RemoteKeySet) { s.log = l }
}

func NewRemoteKeySet(url string, ttl time.Duration, opts ...RemoteOption) *RemoteKeySet {
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	s := &RemoteKeySet{
		url:        url,
		client:     &http.Client{Timeout: 5 * time.Second},
		cache:      expirable.NewLRU[string, *rsa.PublicKey](remoteKeyCacheEntries, nil, ttl),
		minRefresh: defaultMinRefresh,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the public key for kid.
func (s *RemoteKeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s.cache.Get(kid); ok {
		return k, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another request may have refreshed while we waited.
	if k, ok := s.cache.Get(kid); ok {
		return k, nil
	}
	if !s.lastFetch.IsZero() && s.now().Sub(s.lastFetch) < s.minRefresh {
		if k, ok := s.lastGood[kid]; ok {
			return k, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}

	if err := s.refreshLocked(ctx); err != nil {
		if k, ok := s.lastGood[kid]; ok {
			s.log.Warn().Err(err).Str("kid", kid).Msg("jwks refresh failed; serving cached key")
			return k, nil
		}
		return nil, err
	}
	if k, ok := s.lastGood[kid]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
}

// Refresh fetches the key set now, e.g. to warm the cache at startup.
func (s *RemoteKeySet) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *RemoteKeySet) refreshLocked(ctx context.Context) error {
	s.lastFetch = s.now()
	keys, err := s.fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	s.lastGood = keys
	for kid, k := range keys {
		s.cache.Add(kid, k)
	}
	s.log.Debug().Int("keys", len(keys)).Str("url", s.url).Msg("jwks refreshed")
	return nil
}

func (s *RemoteKeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJWKSBytes)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, ok := k.Key.(*rsa.PublicKey)
		if !ok || k.KeyID == "" {
			continue
		}
		keys[k.KeyID] = pub
	}
	return keys, nil
}
