package auth

import (
	"context"
	"sync"
)

// InMemoryUsers implements UserStore with in-process concurrency safety.
// Used by tests and as the fallback when no database is configured.
type InMemoryUsers struct {
	mu    sync.RWMutex
	users map[string]*User // row id -> user
}

// NewInMemoryUsers creates an empty in-memory user store.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{users: make(map[string]*User)}
}

func (s *InMemoryUsers) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Tenant != u.Tenant {
			continue
		}
		if (u.Email != "" && existing.Email == u.Email) || (u.Phone != "" && existing.Phone == u.Phone) {
			return ErrConflict
		}
	}
	cp := *u
	s.users[u.Row] = &cp
	return nil
}

func (s *InMemoryUsers) Find(ctx context.Context, tenant string, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Tenant == tenant && u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryUsers) FindByLogin(ctx context.Context, tenant, email, phone string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Tenant != tenant {
			continue
		}
		if (email != "" && u.Email == email) || (phone != "" && u.Phone == phone) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryUsers) List(ctx context.Context, tenant string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*User
	for _, u := range s.users {
		if u.Tenant == tenant {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryUsers) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Row]; !ok {
		return ErrNotFound
	}
	cp := *u
	s.users[u.Row] = &cp
	return nil
}

func (s *InMemoryUsers) Delete(ctx context.Context, tenant string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for row, u := range s.users {
		if u.Tenant == tenant && u.ID == id {
			delete(s.users, row)
			return nil
		}
	}
	return ErrNotFound
}

var _ UserStore = (*InMemoryUsers)(nil)
