package auth

import (
	"context"
	"errors"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	setupSecret(t)
	return NewService(NewInMemoryUsers())
}

func TestRegisterLoginRefreshFlow(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, pair, err := svc.Register(ctx, "app-1", "user@example.com", "", "s3cret-pass", map[string]any{
		"nickname": "cap",
		"is_admin": true, // reserved, must be dropped
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID <= 0 {
		t.Fatalf("expected positive public id, got %d", u.ID)
	}
	if u.IsAdmin {
		t.Fatalf("register must not honor is_admin from profile fields")
	}
	if _, ok := u.Extra["is_admin"]; ok {
		t.Fatalf("reserved field kept in extra: %v", u.Extra)
	}
	if u.Extra["nickname"] != "cap" {
		t.Fatalf("profile field lost: %v", u.Extra)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected both tokens")
	}

	identity, err := svc.Authenticate(ctx, "app-1", pair.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.UserID != u.ID || identity.Tenant != "app-1" || identity.IsAdmin {
		t.Fatalf("unexpected identity: %+v", identity)
	}

	// A token is bound to its tenant.
	if _, err := svc.Authenticate(ctx, "app-2", pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for cross-tenant use, got %v", err)
	}

	access, err := svc.Refresh(ctx, "app-1", pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "app-1", access); err != nil {
		t.Fatalf("Authenticate refreshed token: %v", err)
	}

	// Refresh tokens are not access tokens.
	if _, err := svc.Authenticate(ctx, "app-1", pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh-as-access, got %v", err)
	}

	// Login rotates the refresh token; the old one stops working.
	if _, err := svc.Login(ctx, "app-1", "user@example.com", "", "s3cret-pass"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Refresh(ctx, "app-1", pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected rotated-out refresh token to fail, got %v", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "app-1", "dup@example.com", "", "password-1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, _, err := svc.Register(ctx, "app-1", "dup@example.com", "", "password-2", nil); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// Same login under another tenant is fine.
	if _, _, err := svc.Register(ctx, "app-2", "dup@example.com", "", "password-3", nil); err != nil {
		t.Fatalf("Register other tenant: %v", err)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "app-1", "", "+7700100", "password-1", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Login(ctx, "app-1", "", "+7700100", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "app-1", "", "+7700999", "password-1"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials for unknown login, got %v", err)
	}
}

func TestRegisterRequiresLoginAndPassword(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "app-1", "", "", "password-1", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput without email/phone, got %v", err)
	}
	if _, _, err := svc.Register(ctx, "app-1", "a@b.c", "", "short", nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for weak password, got %v", err)
	}
}
