package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"recordbase.org/internal/policy"
)

func TestPoliciesUpsert(t *testing.T) {
	st, mock := newMockPolicies(t)

	mock.ExpectExec("insert into policies").
		WithArgs(sqlmock.AnyArg(), "app-1", "orders", "READ", "user", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.Upsert(context.Background(), policy.Policy{
		Tenant:    "app-1",
		Category:  "orders",
		Method:    policy.MethodRead,
		Level:     policy.LevelUser,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPoliciesGet(t *testing.T) {
	st, mock := newMockPolicies(t)

	now := time.Now().UTC()
	mock.ExpectQuery("select row_id, application_key, category, method, level, created_at").
		WithArgs("app-1", "orders", "DELETE").
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "application_key", "category", "method", "level", "created_at"}).
			AddRow("row-p", "app-1", "orders", "DELETE", "admin", now))

	p, err := st.Get(context.Background(), "app-1", "orders", policy.MethodDelete)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Level != policy.LevelAdmin || p.Method != policy.MethodDelete {
		t.Fatalf("unexpected policy: %+v", p)
	}
}

func TestPoliciesGetNotFound(t *testing.T) {
	st, mock := newMockPolicies(t)

	mock.ExpectQuery("select row_id, application_key, category, method, level, created_at").
		WithArgs("app-1", "missing", "READ").
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "application_key", "category", "method", "level", "created_at"}))

	_, err := st.Get(context.Background(), "app-1", "missing", policy.MethodRead)
	if !errors.Is(err, policy.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPoliciesList(t *testing.T) {
	st, mock := newMockPolicies(t)

	now := time.Now().UTC()
	mock.ExpectQuery("select row_id, application_key, category, method, level, created_at").
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "application_key", "category", "method", "level", "created_at"}).
			AddRow("row-1", "app-1", "orders", "READ", "all", now).
			AddRow("row-2", "app-1", "orders", "UPDATE", "user", now))

	list, err := st.List(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(list))
	}
	if list[1].Method != policy.MethodUpdate || list[1].Level != policy.LevelUser {
		t.Fatalf("unexpected policy: %+v", list[1])
	}
}
