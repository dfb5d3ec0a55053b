// Package memory implementa repository.Store en memoria. Un Store por realm.
//
// Todas las operaciones toman un único mutex, lo que hace que Persist (check-and-set
// del identificador) y Revoke (compare-and-set) sean atómicas.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/tokencore/internal/domain/repository"
	"github.com/dropDatabas3/tokencore/internal/domain/types"
)

// Store es un repository.Store en memoria.
type Store struct {
	realm types.Realm

	mu        sync.Mutex
	clients   map[string]*types.Client
	users     map[string]*types.User
	usernames map[string]string // username -> id
	access    map[string]*types.AccessToken
	refresh   map[string]*types.RefreshToken
	codes     map[string]*types.AuthCode
	scopes    map[types.Scope]struct{}
}

var _ repository.Store = (*Store)(nil)

// New crea un Store vacío para el realm con los scopes conocidos.
func New(realm types.Realm, scopes []string) *Store {
	s := &Store{
		realm:     realm,
		clients:   make(map[string]*types.Client),
		users:     make(map[string]*types.User),
		usernames: make(map[string]string),
		access:    make(map[string]*types.AccessToken),
		refresh:   make(map[string]*types.RefreshToken),
		codes:     make(map[string]*types.AuthCode),
		scopes:    make(map[types.Scope]struct{}, len(scopes)),
	}
	for _, sc := range scopes {
		s.scopes[types.Scope(sc)] = struct{}{}
	}
	return s
}

func (s *Store) Realm() types.Realm { return s.realm }

func (s *Store) Clients() repository.ClientRepository             { return clientRepo{s} }
func (s *Store) Users() repository.UserRepository                 { return userRepo{s} }
func (s *Store) AccessTokens() repository.AccessTokenRepository   { return accessRepo{s} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return refreshRepo{s} }
func (s *Store) AuthCodes() repository.AuthCodeRepository         { return codeRepo{s} }
func (s *Store) Scopes() repository.ScopeRepository               { return scopeRepo{s} }

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// PurgeExpired borra tokens y codes expirados.
func (s *Store) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.refresh {
		if t.ExpiresAt.Before(before) {
			delete(s.refresh, id)
			n++
		}
	}
	for id, t := range s.access {
		if t.ExpiresAt.Before(before) {
			delete(s.access, id)
			n++
		}
	}
	for id, c := range s.codes {
		if c.ExpiresAt.Before(before) {
			delete(s.codes, id)
			n++
		}
	}
	return n, nil
}

// ─── ClientRepository ───

type clientRepo struct{ s *Store }

func (r clientRepo) Get(_ context.Context, clientID string) (*types.Client, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneClient(c), nil
}

func (r clientRepo) Save(_ context.Context, c *types.Client) error {
	if c == nil || c.ID == "" {
		return repository.ErrInvalidInput
	}
	if c.Realm == "" {
		c.Realm = r.s.realm
	}
	if c.Realm != r.s.realm {
		return fmt.Errorf("%w: client %s belongs to realm %s", repository.ErrConflict, c.ID, c.Realm)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if prev, ok := r.s.clients[c.ID]; ok {
		if prev.Realm != c.Realm {
			return fmt.Errorf("%w: realm is immutable", repository.ErrConflict)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = prev.CreatedAt
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	r.s.clients[c.ID] = cloneClient(c)
	return nil
}

func (r clientRepo) MarkUsed(_ context.Context, clientID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[clientID]
	if !ok {
		return repository.ErrNotFound
	}
	t := at
	c.LastUsedAt = &t
	return nil
}

// ─── UserRepository ───

type userRepo struct{ s *Store }

func (r userRepo) GetByUsername(_ context.Context, username string) (*types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.usernames[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := *r.s.users[id]
	return &u, nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*types.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r userRepo) Save(_ context.Context, u *types.User) error {
	if u == nil || u.ID == "" || u.Username == "" {
		return repository.ErrInvalidInput
	}
	if u.Realm == "" {
		u.Realm = r.s.realm
	}
	if u.Realm != r.s.realm {
		return repository.ErrConflict
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if other, ok := r.s.usernames[u.Username]; ok && other != u.ID {
		return fmt.Errorf("%w: username taken", repository.ErrConflict)
	}
	if prev, ok := r.s.users[u.ID]; ok && prev.Username != u.Username {
		delete(r.s.usernames, prev.Username)
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	r.s.users[u.ID] = &cp
	r.s.usernames[u.Username] = u.ID
	return nil
}

// ─── AccessTokenRepository ───

type accessRepo struct{ s *Store }

func (r accessRepo) Persist(_ context.Context, t *types.AccessToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.access[t.ID]; exists {
		return repository.ErrIdentifierCollision
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	r.s.access[t.ID] = &cp
	return nil
}

func (r accessRepo) Get(_ context.Context, id string) (*types.AccessToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.access[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	cp.Scopes = append([]string(nil), t.Scopes...)
	return &cp, nil
}

func (r accessRepo) Revoke(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.access[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (r accessRepo) IsRevoked(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.access[id]
	return !ok || t.Revoked, nil
}

// ─── RefreshTokenRepository ───

type refreshRepo struct{ s *Store }

func (r refreshRepo) Persist(_ context.Context, t *types.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.refresh[t.ID]; exists {
		return repository.ErrIdentifierCollision
	}
	cp := *t
	r.s.refresh[t.ID] = &cp
	return nil
}

func (r refreshRepo) Get(_ context.Context, id string) (*types.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r refreshRepo) Revoke(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[id]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (r refreshRepo) IsRevoked(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[id]
	return !ok || t.Revoked, nil
}

// ─── AuthCodeRepository ───

type codeRepo struct{ s *Store }

func (r codeRepo) Persist(_ context.Context, c *types.AuthCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.codes[c.ID]; exists {
		return repository.ErrIdentifierCollision
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	r.s.codes[c.ID] = &cp
	return nil
}

func (r codeRepo) Get(_ context.Context, id string) (*types.AuthCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	cp.Scopes = append([]string(nil), c.Scopes...)
	return &cp, nil
}

func (r codeRepo) Revoke(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[id]
	if !ok || c.Revoked {
		return false, nil
	}
	c.Revoked = true
	return true, nil
}

func (r codeRepo) IsRevoked(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[id]
	return !ok || c.Revoked, nil
}

// ─── ScopeRepository ───

type scopeRepo struct{ s *Store }

func (r scopeRepo) Get(_ context.Context, id string) (types.Scope, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.scopes[types.Scope(id)]; !ok {
		return "", repository.ErrNotFound
	}
	return types.Scope(id), nil
}

func cloneClient(c *types.Client) *types.Client {
	cp := *c
	cp.GrantTypes = append([]types.GrantType(nil), c.GrantTypes...)
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}
