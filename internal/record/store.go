package record

import (
	"context"
	"errors"

	"recordbase.org/internal/policy"
	"recordbase.org/internal/query"
)

var (
	// ErrNotFound is the normal negative result for "no record under this
	// id and scope"; callers surface it as a 404, never as a failure.
	ErrNotFound = errors.New("record: not found")
)

// Store defines the persistence operations of the record collection. Every
// operation is scoped by tenant and category; reads and mutations
// additionally honor the access scope resolved for the request.
type Store interface {
	Create(ctx context.Context, tenant, category string, ownerID int64, payload map[string]any) (Record, error)
	Get(ctx context.Context, tenant, category string, id int64, scope policy.Scope) (Record, error)
	Update(ctx context.Context, tenant, category string, id int64, scope policy.Scope, patch map[string]any) (Record, error)
	Delete(ctx context.Context, tenant, category string, id int64, scope policy.Scope) error
	DeleteAll(ctx context.Context, tenant, category string, scope policy.Scope) (int64, error)
	// List executes the bounded fetch and the unbounded count in one call.
	List(ctx context.Context, q query.BoundQuery) ([]Record, int64, error)
}
