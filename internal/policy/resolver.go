package policy

import (
	"context"
	"errors"

	"recordbase.org/internal/auth"
)

// Scope restricts which records of a category an allowed operation may
// touch: all of the tenant's records (public) or only the caller's own.
type Scope struct {
	owner int64
}

// Public is the unrestricted scope within a tenant+category.
func Public() Scope { return Scope{} }

// OwnedBy limits an operation to records whose owner matches the id.
func OwnedBy(userID int64) Scope { return Scope{owner: userID} }

// Restricted reports whether the scope carries an owner restriction.
func (s Scope) Restricted() bool { return s.owner != 0 }

// Owner returns the owning user id for a restricted scope.
func (s Scope) Owner() int64 { return s.owner }

// Decision is the outcome of access resolution for one operation.
type Decision struct {
	Level Level
	Scope Scope
}

// Resolver evaluates the access policy table for a target operation.
// It is a pure function of the table plus its configuration; the only
// side channel is the store lookup itself.
type Resolver struct {
	store Store

	// defaultLevel applies when no policy is declared for a triple.
	defaultLevel Level

	// adminWide controls whether an admin identity listing without an
	// explicit mine=true is widened from owner scope to public scope
	// under user-level categories.
	adminWide bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithDefaultLevel sets the process-wide access level used for categories
// without a declared policy.
func WithDefaultLevel(level Level) ResolverOption {
	return func(r *Resolver) {
		if level == LevelAll || level == LevelUser || level == LevelAdmin {
			r.defaultLevel = level
		}
	}
}

// WithAdminWide controls admin widening of user-level listings.
func WithAdminWide(enabled bool) ResolverOption {
	return func(r *Resolver) { r.adminWide = enabled }
}

// NewResolver constructs a Resolver over the given policy store.
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, defaultLevel: LevelAll, adminWide: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides whether the identity may perform method on the tenant's
// category and which scope the operation must be executed under.
// mine is the caller's explicit owner-scope request (nil when the query
// parameter was absent).
func (r *Resolver) Resolve(ctx context.Context, tenant, category string, method Method, ident *auth.Identity, mine *bool) (Decision, error) {
	if tenant == "" {
		return Decision{}, ErrUnauthorized
	}
	category = NormalizeCategory(category)

	level := r.defaultLevel
	p, err := r.store.Get(ctx, tenant, category, method)
	switch {
	case err == nil:
		level = p.Level
	case errors.Is(err, ErrNotFound):
		// fall back to the configured default
	default:
		return Decision{}, err
	}

	switch level {
	case LevelAll:
		// Anonymous access allowed. An authenticated caller may still ask
		// for only their own records.
		if ident != nil && mine != nil && *mine {
			return Decision{Level: level, Scope: OwnedBy(ident.UserID)}, nil
		}
		return Decision{Level: level, Scope: Public()}, nil

	case LevelUser:
		if ident == nil {
			return Decision{}, ErrUnauthorized
		}
		if mine != nil && *mine {
			return Decision{Level: level, Scope: OwnedBy(ident.UserID)}, nil
		}
		if ident.IsAdmin && r.adminWide {
			return Decision{Level: level, Scope: Public()}, nil
		}
		if mine != nil && !*mine && ident.IsAdmin {
			return Decision{Level: level, Scope: Public()}, nil
		}
		return Decision{Level: level, Scope: OwnedBy(ident.UserID)}, nil

	case LevelAdmin:
		if ident == nil {
			return Decision{}, ErrUnauthorized
		}
		if !ident.IsAdmin {
			return Decision{}, ErrForbidden
		}
		return Decision{Level: level, Scope: Public()}, nil

	default:
		return Decision{}, ErrInvalidLevel
	}
}
