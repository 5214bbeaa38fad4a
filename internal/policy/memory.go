package policy

import (
	"context"
	"sync"
)

type tripleKey struct {
	tenant   string
	category string
	method   Method
}

// InMemory implements Store with in-process concurrency safety.
type InMemory struct {
	mu       sync.RWMutex
	policies map[tripleKey]Policy
}

// NewInMemory creates an empty in-memory policy store.
func NewInMemory() *InMemory {
	return &InMemory{policies: make(map[tripleKey]Policy)}
}

func (s *InMemory) Get(ctx context.Context, tenant, category string, method Method) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[tripleKey{tenant, NormalizeCategory(category), method}]
	if !ok {
		return Policy{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemory) Upsert(ctx context.Context, p Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Category = NormalizeCategory(p.Category)
	s.policies[tripleKey{p.Tenant, p.Category, p.Method}] = p
	return nil
}

func (s *InMemory) List(ctx context.Context, tenant string) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Policy
	for _, p := range s.policies {
		if p.Tenant == tenant {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ Store = (*InMemory)(nil)
