package policy

import (
	"context"
	"errors"
	"testing"

	"recordbase.org/internal/auth"
)

func boolPtr(v bool) *bool { return &v }

func newResolverWith(t *testing.T, policies []Policy, opts ...ResolverOption) *Resolver {
	t.Helper()
	store := NewInMemory()
	for _, p := range policies {
		if err := store.Upsert(context.Background(), p); err != nil {
			t.Fatalf("seed policy: %v", err)
		}
	}
	return NewResolver(store, opts...)
}

func TestResolveDefaultLevelAll(t *testing.T) {
	r := newResolverWith(t, nil)

	dec, err := r.Resolve(context.Background(), "app-1", "", MethodRead, nil, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Level != LevelAll || dec.Scope.Restricted() {
		t.Fatalf("unexpected decision: %+v", dec)
	}
}

func TestResolveMatrix(t *testing.T) {
	user := &auth.Identity{Tenant: "app-1", UserID: 42}
	admin := &auth.Identity{Tenant: "app-1", UserID: 7, IsAdmin: true}

	policies := []Policy{
		{Tenant: "app-1", Category: "open", Method: MethodRead, Level: LevelAll},
		{Tenant: "app-1", Category: "notes", Method: MethodRead, Level: LevelUser},
		{Tenant: "app-1", Category: "notes", Method: MethodDelete, Level: LevelAdmin},
	}

	cases := []struct {
		name      string
		category  string
		method    Method
		ident     *auth.Identity
		mine      *bool
		wantErr   error
		wantOwner int64
	}{
		{name: "all anonymous", category: "open", method: MethodRead},
		{name: "all with mine", category: "open", method: MethodRead, ident: user, mine: boolPtr(true), wantOwner: 42},
		{name: "user anonymous denied", category: "notes", method: MethodRead, wantErr: ErrUnauthorized},
		{name: "user scoped to owner", category: "notes", method: MethodRead, ident: user, wantOwner: 42},
		{name: "user explicit mine", category: "notes", method: MethodRead, ident: user, mine: boolPtr(true), wantOwner: 42},
		{name: "admin widened", category: "notes", method: MethodRead, ident: admin},
		{name: "admin explicit mine", category: "notes", method: MethodRead, ident: admin, mine: boolPtr(true), wantOwner: 7},
		{name: "admin level non-admin", category: "notes", method: MethodDelete, ident: user, wantErr: ErrForbidden},
		{name: "admin level anonymous", category: "notes", method: MethodDelete, wantErr: ErrUnauthorized},
		{name: "admin level admin", category: "notes", method: MethodDelete, ident: admin},
	}

	r := newResolverWith(t, policies)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec, err := r.Resolve(context.Background(), "app-1", tc.category, tc.method, tc.ident, tc.mine)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tc.wantOwner == 0 && dec.Scope.Restricted() {
				t.Fatalf("expected public scope, got owner %d", dec.Scope.Owner())
			}
			if tc.wantOwner != 0 && dec.Scope.Owner() != tc.wantOwner {
				t.Fatalf("expected owner %d, got %+v", tc.wantOwner, dec.Scope)
			}
		})
	}
}

func TestResolveAdminWideDisabled(t *testing.T) {
	admin := &auth.Identity{Tenant: "app-1", UserID: 7, IsAdmin: true}
	policies := []Policy{{Tenant: "app-1", Category: "notes", Method: MethodRead, Level: LevelUser}}

	r := newResolverWith(t, policies, WithAdminWide(false))

	// Without the widening knob an admin stays owner-scoped unless they
	// explicitly pass mine=false.
	dec, err := r.Resolve(context.Background(), "app-1", "notes", MethodRead, admin, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !dec.Scope.Restricted() || dec.Scope.Owner() != 7 {
		t.Fatalf("expected owner scope, got %+v", dec)
	}

	dec, err = r.Resolve(context.Background(), "app-1", "notes", MethodRead, admin, boolPtr(false))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if dec.Scope.Restricted() {
		t.Fatalf("expected public scope with explicit mine=false, got %+v", dec)
	}
}

func TestResolveConfiguredDefault(t *testing.T) {
	r := newResolverWith(t, nil, WithDefaultLevel(LevelUser))

	if _, err := r.Resolve(context.Background(), "app-1", "anything", MethodCreate, nil, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized under user default, got %v", err)
	}
}

func TestResolveEmptyTenant(t *testing.T) {
	r := newResolverWith(t, nil)
	if _, err := r.Resolve(context.Background(), "", "x", MethodRead, nil, nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestParseLevelAndMethod(t *testing.T) {
	if _, err := ParseLevel("owner"); !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("expected ErrInvalidLevel, got %v", err)
	}
	if lvl, err := ParseLevel(" Admin "); err != nil || lvl != LevelAdmin {
		t.Fatalf("ParseLevel: %v %v", lvl, err)
	}
	if m, err := ParseMethod("post"); err != nil || m != MethodCreate {
		t.Fatalf("ParseMethod: %v %v", m, err)
	}
	if _, err := ParseMethod("OPTIONS"); !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}
