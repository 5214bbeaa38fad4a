package auth

import (
	"context"
	"time"
)

// Identity is the resolved caller of a request: the tenant it belongs to,
// the authenticated account (if any) and whether that account carries the
// admin flag for the tenant. A nil *Identity means an anonymous caller,
// which is only acceptable for categories whose access level is "all".
type Identity struct {
	Tenant  string
	UserID  int64
	IsAdmin bool
}

// User is a per-tenant account. Accounts never cross tenant boundaries:
// the same email may exist independently under two application keys.
type User struct {
	Row          string // internal storage id, never serialized
	Tenant       string
	ID           int64 // public id, same generator as records
	Email        string
	Phone        string
	PasswordHash string
	IsAdmin      bool
	RefreshHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Extra        map[string]any // free-form profile fields
}

// UserStore describes persistence operations for tenant accounts.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, tenant string, id int64) (*User, error)
	// FindByLogin matches on email or phone, whichever is non-empty.
	FindByLogin(ctx context.Context, tenant, email, phone string) (*User, error)
	List(ctx context.Context, tenant string) ([]*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, tenant string, id int64) error
}

// Public returns the externally visible shape of a user: free-form profile
// fields plus the public id and flags, with credentials and storage
// internals stripped.
func (u *User) Public() map[string]any {
	out := make(map[string]any, len(u.Extra)+4)
	for k, v := range u.Extra {
		out[k] = v
	}
	out["id"] = u.ID
	if u.Email != "" {
		out["email"] = u.Email
	}
	if u.Phone != "" {
		out["phone"] = u.Phone
	}
	out["is_admin"] = u.IsAdmin
	return out
}
