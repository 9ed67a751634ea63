package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/utils"
)

// CodeStore keeps authorization codes in Redis keyed by their hash. A
// code can be consumed once.
type CodeStore struct {
	rdb    *redis.Client
	prefix string
}

func NewCodeStore(rdb *redis.Client) *CodeStore {
	return &CodeStore{rdb: rdb, prefix: "authcode:"}
}

// Save stores the grant behind code until ttl elapses.
func (s *CodeStore) Save(ctx context.Context, code string, ac model.AuthorizationCode, ttl time.Duration) error {
	b, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("encode authorization code: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.prefix+utils.HashToken(code), b, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

// Consume atomically reads and deletes the code. A missing, expired or
// already used code yields ErrNotFound.
func (s *CodeStore) Consume(ctx context.Context, code string) (*model.AuthorizationCode, error) {
	b, err := s.rdb.GetDel(ctx, s.prefix+utils.HashToken(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ac model.AuthorizationCode
	if err := json.Unmarshal(b, &ac); err != nil {
		return nil, fmt.Errorf("decode authorization code: %w", err)
	}
	return &ac, nil
}

// SessionStore keeps client server sessions in Redis under session:<id>.
type SessionStore struct {
	rdb    *redis.Client
	prefix string
}

func NewSessionStore(rdb *redis.Client) *SessionStore {
	return &SessionStore{rdb: rdb, prefix: "session:"}
}

func (s *SessionStore) Save(ctx context.Context, id string, sess model.Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.rdb.Set(ctx, s.prefix+id, b, ttl).Err()
}

// Get returns ErrNotFound for unknown or expired sessions.
func (s *SessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	b, err := s.rdb.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess model.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.prefix+id).Err()
}
