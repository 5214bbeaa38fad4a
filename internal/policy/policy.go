package policy

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultCategory is used when the caller omits the category path segment.
const DefaultCategory = "global"

// Level is the minimum privilege a category requires for one method.
type Level string

const (
	LevelAll   Level = "all"   // no identity required
	LevelUser  Level = "user"  // any authenticated identity of the tenant
	LevelAdmin Level = "admin" // identity with the admin flag
)

// ParseLevel validates a client-supplied access level string.
func ParseLevel(raw string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(raw))) {
	case LevelAll:
		return LevelAll, nil
	case LevelUser:
		return LevelUser, nil
	case LevelAdmin:
		return LevelAdmin, nil
	default:
		return "", ErrInvalidLevel
	}
}

// Method is the logical operation class a policy applies to.
type Method string

const (
	MethodCreate Method = "CREATE"
	MethodRead   Method = "READ"
	MethodUpdate Method = "UPDATE"
	MethodDelete Method = "DELETE"
)

// ParseMethod validates a client-supplied method string. HTTP verbs are
// accepted as aliases since policies are declared against the REST surface.
func ParseMethod(raw string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CREATE", "POST":
		return MethodCreate, nil
	case "READ", "GET":
		return MethodRead, nil
	case "UPDATE", "PUT", "PATCH":
		return MethodUpdate, nil
	case "DELETE":
		return MethodDelete, nil
	default:
		return "", ErrInvalidMethod
	}
}

// NormalizeCategory maps an absent category to the default namespace.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return DefaultCategory
	}
	return category
}

// Policy is the per-tenant, per-category, per-method access declaration.
// At most one policy exists per (tenant, category, method); Upsert replaces.
type Policy struct {
	Row       string // internal storage id
	Tenant    string
	Category  string
	Method    Method
	Level     Level
	CreatedAt time.Time
}

// Store describes persistence for access policies.
type Store interface {
	// Get returns the policy for the triple or ErrNotFound.
	Get(ctx context.Context, tenant, category string, method Method) (Policy, error)
	// Upsert inserts or replaces the policy for its triple.
	Upsert(ctx context.Context, p Policy) error
	// List returns all policies declared by a tenant.
	List(ctx context.Context, tenant string) ([]Policy, error)
}

var (
	ErrNotFound      = errors.New("policy: not found")
	ErrInvalidLevel  = errors.New("policy: invalid access level")
	ErrInvalidMethod = errors.New("policy: invalid method")

	// ErrUnauthorized means an identity was required and absent or invalid.
	ErrUnauthorized = errors.New("policy: identity required")
	// ErrForbidden means the identity is valid but lacks privilege.
	ErrForbidden = errors.New("policy: insufficient privilege")
)
