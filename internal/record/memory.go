package record

import (
	"context"
	"sort"
	"sync"

	"recordbase.org/internal/policy"
	"recordbase.org/internal/query"
)

// InMemory implements Store with in-process concurrency safety.
// Used by the API tests and as the fallback when no database is configured.
type InMemory struct {
	mu      sync.RWMutex
	records []*Record // insertion order is the store-defined order
}

// NewInMemory creates an empty in-memory record store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Create(ctx context.Context, tenant, category string, ownerID int64, payload map[string]any) (Record, error) {
	rec := New(tenant, category, ownerID, payload)
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	s.records = append(s.records, &cp)
	return rec, nil
}

// locate returns the index of the record addressed by (tenant, category,
// id) that also satisfies the scope, or -1.
func (s *InMemory) locate(tenant, category string, id int64, scope policy.Scope) int {
	for i, r := range s.records {
		if r.Tenant != tenant || r.Category != category || r.ID != id {
			continue
		}
		if scope.Restricted() && r.OwnerID != scope.Owner() {
			return -1
		}
		return i
	}
	return -1
}

func (s *InMemory) Get(ctx context.Context, tenant, category string, id int64, scope policy.Scope) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.locate(tenant, category, id, scope)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	return s.records[i].clone(), nil
}

func (s *InMemory) Update(ctx context.Context, tenant, category string, id int64, scope policy.Scope, patch map[string]any) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.locate(tenant, category, id, scope)
	if i < 0 {
		return Record{}, ErrNotFound
	}
	s.records[i].Merge(patch)
	return s.records[i].clone(), nil
}

func (s *InMemory) Delete(ctx context.Context, tenant, category string, id int64, scope policy.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.locate(tenant, category, id, scope)
	if i < 0 {
		return ErrNotFound
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return nil
}

func (s *InMemory) DeleteAll(ctx context.Context, tenant, category string, scope policy.Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*Record
	var deleted int64
	for _, r := range s.records {
		if r.Tenant == tenant && r.Category == category &&
			(!scope.Restricted() || r.OwnerID == scope.Owner()) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return deleted, nil
}

func (s *InMemory) List(ctx context.Context, q query.BoundQuery) ([]Record, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Record
	for _, r := range s.records {
		if r.Tenant != q.Tenant || r.Category != q.Category {
			continue
		}
		if q.Owner != 0 && r.OwnerID != q.Owner {
			continue
		}
		if !q.Matches(r.Public()) {
			continue
		}
		matched = append(matched, r)
	}
	total := int64(len(matched))

	if q.SortKey != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return q.Less(matched[i].Public(), matched[j].Public())
		})
	}

	if !q.Unbounded() {
		if q.Skip >= len(matched) {
			matched = nil
		} else {
			end := q.Skip + q.Limit
			if end > len(matched) {
				end = len(matched)
			}
			matched = matched[q.Skip:end]
		}
	}

	out := make([]Record, 0, len(matched))
	for _, r := range matched {
		out = append(out, r.clone())
	}
	return out, total, nil
}

func (r *Record) clone() Record {
	cp := *r
	cp.Payload = make(map[string]any, len(r.Payload))
	for k, v := range r.Payload {
		cp.Payload[k] = v
	}
	return cp
}

var _ Store = (*InMemory)(nil)
