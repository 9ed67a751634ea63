// Package testutil provides in-memory stores and key helpers for tests.
package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/learntrack/learntrack/internal/model"
	"github.com/learntrack/learntrack/internal/repository"
)

// Users is an in-memory user and role store sharing one lock.
type Users struct {
	mu        sync.Mutex
	nextUser  int64
	nextRole  int64
	nextAuth  int64
	users     map[int64]*model.User
	roles     map[int64]*model.Role
	authority map[string]model.Authority
}

func NewUsers() *Users {
	return &Users{
		users:     map[int64]*model.User{},
		roles:     map[int64]*model.Role{},
		authority: map[string]model.Authority{},
	}
}

// Roles returns a RoleStore view over the same data.
func (s *Users) Roles() *Roles { return &Roles{s: s} }

func cloneUser(u *model.User) *model.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

func (s *Users) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return repository.ErrDuplicate
		}
	}
	s.nextUser++
	u.ID = s.nextUser
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = cloneUser(u)
	return nil
}

func (s *Users) GetByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return s.withRoles(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Users) GetByID(_ context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s.withRoles(u), nil
}

// withRoles refreshes role data so authority edits show up on users.
func (s *Users) withRoles(u *model.User) *model.User {
	c := cloneUser(u)
	for i, r := range c.Roles {
		if cur, ok := s.roles[r.ID]; ok {
			c.Roles[i] = *cloneRole(cur)
		}
	}
	return c
}

func (s *Users) UpdateUsername(_ context.Context, id int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, other := range s.users {
		if other.ID != id && other.Username == username {
			return repository.ErrDuplicate
		}
	}
	u.Username = username
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Users) AddRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	r, rok := s.roles[roleID]
	if !ok || !rok {
		return repository.ErrNotFound
	}
	if slices.ContainsFunc(u.Roles, func(x model.Role) bool { return x.ID == roleID }) {
		return nil
	}
	u.Roles = append(u.Roles, *cloneRole(r))
	return nil
}

func (s *Users) RemoveRole(_ context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	before := len(u.Roles)
	u.Roles = slices.DeleteFunc(u.Roles, func(x model.Role) bool { return x.ID == roleID })
	if len(u.Roles) == before {
		return repository.ErrNotFound
	}
	return nil
}

// Roles implements the role store over Users.
type Roles struct{ s *Users }

func cloneRole(r *model.Role) *model.Role {
	c := *r
	c.Authorities = slices.Clone(r.Authorities)
	return &c
}

func (r *Roles) GetByName(_ context.Context, name string) (*model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Roles) GetByID(_ context.Context, id int64) (*model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneRole(role), nil
}

func (r *Roles) List(_ context.Context) ([]model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.Role, 0, len(r.s.roles))
	for id := int64(1); id <= r.s.nextRole; id++ {
		if role, ok := r.s.roles[id]; ok {
			out = append(out, *cloneRole(role))
		}
	}
	return out, nil
}

func (r *Roles) EnsureRole(_ context.Context, name string) (*model.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, role := range r.s.roles {
		if role.Name == name {
			return cloneRole(role), nil
		}
	}
	r.s.nextRole++
	role := &model.Role{ID: r.s.nextRole, Name: name}
	r.s.roles[role.ID] = role
	return cloneRole(role), nil
}

func (r *Roles) EnsureAuthority(_ context.Context, name string) (*model.Authority, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.authority[name]; ok {
		return &a, nil
	}
	r.s.nextAuth++
	a := model.Authority{ID: r.s.nextAuth, Name: name}
	r.s.authority[name] = a
	return &a, nil
}

func (r *Roles) AddAuthority(_ context.Context, roleID int64, authority string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[roleID]
	a, aok := r.s.authority[authority]
	if !ok || !aok {
		return repository.ErrNotFound
	}
	if !slices.Contains(role.Authorities, a) {
		role.Authorities = append(role.Authorities, a)
	}
	return nil
}

func (r *Roles) RemoveAuthority(_ context.Context, roleID int64, authority string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[roleID]
	if !ok {
		return repository.ErrNotFound
	}
	before := len(role.Authorities)
	role.Authorities = slices.DeleteFunc(role.Authorities, func(a model.Authority) bool { return a.Name == authority })
	if len(role.Authorities) == before {
		return repository.ErrNotFound
	}
	return nil
}

// RefreshTokens is an in-memory refresh token store.
type RefreshTokens struct {
	mu     sync.Mutex
	next   int64
	byHash map[string]*model.RefreshToken
}

func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{byHash: map[string]*model.RefreshToken{}}
}

func (s *RefreshTokens) StoreRefresh(_ context.Context, t *model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byHash[t.TokenHash]; ok {
		return repository.ErrDuplicate
	}
	s.next++
	t.ID = s.next
	t.CreatedAt = time.Now().UTC()
	c := *t
	s.byHash[t.TokenHash] = &c
	return nil
}

func (s *RefreshTokens) GetByHash(_ context.Context, hash string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (s *RefreshTokens) RevokeByHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byHash[hash]
	if !ok || t.RevokedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	return nil
}

func (s *RefreshTokens) RevokeAllForUser(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.byHash {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

// Count returns the number of stored tokens.
func (s *RefreshTokens) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

// Clients is an in-memory client registration store.
type Clients struct {
	mu   sync.Mutex
	byID map[string]*model.RegisteredClient
}

func NewClients() *Clients {
	return &Clients{byID: map[string]*model.RegisteredClient{}}
}

func (s *Clients) GetByClientID(_ context.Context, clientID string) (*model.RegisteredClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Clients) Create(_ context.Context, c *model.RegisteredClient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ClientID]; ok {
		return repository.ErrDuplicate
	}
	c.CreatedAt = time.Now().UTC()
	cp := *c
	s.byID[c.ClientID] = &cp
	return nil
}

// Codes is an in-memory authorization code store. Expiry uses the
// wall clock.
type Codes struct {
	mu    sync.Mutex
	codes map[string]codeEntry
}

type codeEntry struct {
	ac  model.AuthorizationCode
	exp time.Time
}

func NewCodes() *Codes { return &Codes{codes: map[string]codeEntry{}} }

func (s *Codes) Save(_ context.Context, code string, ac model.AuthorizationCode, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; ok {
		return repository.ErrDuplicate
	}
	s.codes[code] = codeEntry{ac: ac, exp: time.Now().Add(ttl)}
	return nil
}

func (s *Codes) Consume(_ context.Context, code string) (*model.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.codes[code]
	delete(s.codes, code)
	if !ok || time.Now().After(e.exp) {
		return nil, repository.ErrNotFound
	}
	return &e.ac, nil
}
