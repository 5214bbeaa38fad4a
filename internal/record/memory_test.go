package record

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"recordbase.org/internal/policy"
	"recordbase.org/internal/query"
)

func listQuery(t *testing.T, tenant, category string, scope policy.Scope, raw string) query.BoundQuery {
	t.Helper()
	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	q, err := query.Compile(tenant, category, scope, query.FromValues(values))
	if err != nil {
		t.Fatalf("compile query: %v", err)
	}
	return q
}

func TestTenantIsolation(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	created, err := store.Create(ctx, "tenant-a", "notes", 0, map[string]any{"secret": "a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No operation issued with tenant-b's key may observe the record.
	if _, err := store.Get(ctx, "tenant-b", "notes", created.ID, policy.Public()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant get: %v", err)
	}
	if _, err := store.Update(ctx, "tenant-b", "notes", created.ID, policy.Public(), map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant update: %v", err)
	}
	if err := store.Delete(ctx, "tenant-b", "notes", created.ID, policy.Public()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant delete: %v", err)
	}
	recs, total, err := store.List(ctx, listQuery(t, "tenant-b", "notes", policy.Public(), ""))
	if err != nil || total != 0 || len(recs) != 0 {
		t.Fatalf("cross-tenant list leaked: %v %d %v", recs, total, err)
	}

	// Same id, same category, different tenant namespaces stay apart.
	if _, err := store.Get(ctx, "tenant-a", "notes", created.ID, policy.Public()); err != nil {
		t.Fatalf("own-tenant get: %v", err)
	}
}

func TestCategoryIsolation(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	created, _ := store.Create(ctx, "t", "alpha", 0, map[string]any{"v": 1.0})
	if _, err := store.Get(ctx, "t", "beta", created.ID, policy.Public()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-category get: %v", err)
	}
}

func TestOwnerScope(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	mine, _ := store.Create(ctx, "t", "notes", 42, map[string]any{"v": "mine"})
	_, _ = store.Create(ctx, "t", "notes", 7, map[string]any{"v": "theirs"})

	if _, err := store.Get(ctx, "t", "notes", mine.ID, policy.OwnedBy(7)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("scope bypass on get: %v", err)
	}

	recs, total, err := store.List(ctx, listQuery(t, "t", "notes", policy.OwnedBy(42), ""))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(recs) != 1 || recs[0].ID != mine.ID {
		t.Fatalf("owner-scoped list wrong: %v (total %d)", recs, total)
	}

	count, err := store.DeleteAll(ctx, "t", "notes", policy.OwnedBy(42))
	if err != nil || count != 1 {
		t.Fatalf("owner-scoped deleteAll: %d %v", count, err)
	}
	if _, total, _ := store.List(ctx, listQuery(t, "t", "notes", policy.Public(), "")); total != 1 {
		t.Fatalf("other owner's record lost")
	}
}

func TestListPagination(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if _, err := store.Create(ctx, "t", "c", 0, map[string]any{"n": float64(i)}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	q := listQuery(t, "t", "c", policy.Public(), "limit=10&page=3&sortBy=n")
	recs, total, err := store.List(ctx, q)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 25 {
		t.Fatalf("total=%d, want 25", total)
	}
	if len(recs) != 5 {
		t.Fatalf("page 3 size=%d, want 5", len(recs))
	}
	if got := q.TotalPages(total); got != 3 {
		t.Fatalf("TotalPages=%d, want 3", got)
	}
	if recs[0].Payload["n"] != float64(20) {
		t.Fatalf("page 3 starts at %v, want 20", recs[0].Payload["n"])
	}
}

func TestListRangeFilter(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	for _, amount := range []float64{5, 10, 15, 20} {
		_, _ = store.Create(ctx, "t", "c", 0, map[string]any{"amount": amount})
	}

	q := listQuery(t, "t", "c", policy.Public(), "filterKey=amount&filterMin=10&filterMax=15&sortBy=amount")
	recs, total, err := store.List(ctx, q)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(recs) != 2 {
		t.Fatalf("range filter: got %d/%d, want 2/2", len(recs), total)
	}
	if recs[0].Payload["amount"] != float64(10) || recs[1].Payload["amount"] != float64(15) {
		t.Fatalf("range filter contents wrong: %v", recs)
	}
}

func TestListCountIgnoresPagination(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, _ = store.Create(ctx, "t", "c", 0, map[string]any{"even": i%2 == 0})
	}

	q := listQuery(t, "t", "c", policy.Public(), "filterKey=even&filterValue=true&limit=2")
	recs, total, err := store.List(ctx, q)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || total != 4 {
		t.Fatalf("got %d/%d, want page 2 of total 4", len(recs), total)
	}
}

func TestDeleteSemantics(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	created, _ := store.Create(ctx, "t", "c", 0, map[string]any{})
	if err := store.Delete(ctx, "t", "c", created.ID, policy.Public()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Repeated deletes of the same id stay NotFound.
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "t", "c", created.ID, policy.Public()); !errors.Is(err, ErrNotFound) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	// deleteAll on an empty category is a zero count, not an error.
	count, err := store.DeleteAll(ctx, "t", "c", policy.Public())
	if err != nil || count != 0 {
		t.Fatalf("empty DeleteAll: %d %v", count, err)
	}
}

func TestUpdateMissesOutOfScope(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	created, _ := store.Create(ctx, "t", "c", 9, map[string]any{"v": "x"})
	updated, err := store.Update(ctx, "t", "c", created.ID, policy.OwnedBy(9), map[string]any{"v": "y"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Payload["v"] != "y" || updated.OwnerID != 9 {
		t.Fatalf("update wrong: %+v", updated)
	}
	if !updated.LastChangedAt.After(created.LastChangedAt) && !updated.LastChangedAt.Equal(created.LastChangedAt) {
		t.Fatalf("last_changed_at went backwards")
	}
}

func TestConcurrentCreates(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		go func(i int) {
			_, err := store.Create(ctx, "t", "c", 0, map[string]any{"n": fmt.Sprint(i)})
			done <- err
		}(i)
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent create: %v", err)
		}
	}
	_, total, err := store.List(ctx, listQuery(t, "t", "c", policy.Public(), ""))
	if err != nil || total != 16 {
		t.Fatalf("expected 16 records, got %d (%v)", total, err)
	}
}
