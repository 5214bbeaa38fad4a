package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"recordbase.org/internal/ids"
)

// reservedUserFields are profile keys callers may never set directly; they
// are either server-managed or carried by dedicated columns.
var reservedUserFields = map[string]struct{}{
	"id":              {},
	"email":           {},
	"phone":           {},
	"password":        {},
	"is_admin":        {},
	"application_key": {},
	"type":            {},
	"created_at":      {},
	"updated_at":      {},
	"refresh_token":   {},
}

// TokenPair is what credential flows hand back to clients.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Service implements account registration, login and token refresh on top
// of a UserStore. It owns password hashing and refresh-token rotation; the
// HTTP layer only shuttles requests in and responses out.
type Service struct {
	users UserStore
	now   func() time.Time
}

// NewService constructs a Service backed by the given store.
func NewService(users UserStore) *Service {
	return &Service{users: users, now: func() time.Time { return time.Now().UTC() }}
}

// Register creates an account and issues an initial token pair.
// Either email or phone must be provided. Extra profile fields are kept
// as-is minus the reserved ones.
func (s *Service) Register(ctx context.Context, tenant, email, phone, password string, extra map[string]any) (*User, TokenPair, error) {
	tenant = strings.TrimSpace(tenant)
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if tenant == "" {
		return nil, TokenPair{}, ErrInvalidInput
	}
	if email == "" && phone == "" {
		return nil, TokenPair{}, ErrInvalidInput
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, errors.Join(ErrInvalidInput, err)
	}

	if existing, err := s.users.FindByLogin(ctx, tenant, email, phone); err == nil && existing != nil {
		return nil, TokenPair{}, ErrConflict
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, TokenPair{}, err
	}

	now := s.now()
	u := &User{
		Row:          ids.New(),
		Tenant:       tenant,
		ID:           ids.NewPublicID(),
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
		Extra:        sanitizeExtra(extra),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, u)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return u, pair, nil
}

// Login verifies credentials and issues a fresh token pair, rotating the
// stored refresh token.
func (s *Service) Login(ctx context.Context, tenant, email, phone, password string) (TokenPair, error) {
	u, err := s.users.FindByLogin(ctx, strings.TrimSpace(tenant), strings.TrimSpace(email), strings.TrimSpace(phone))
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, ErrBadCredentials
	}
	if err != nil {
		return TokenPair{}, err
	}
	if err := VerifyPassword(u.PasswordHash, password); err != nil {
		return TokenPair{}, ErrBadCredentials
	}
	return s.issuePair(ctx, u)
}

// Refresh exchanges a valid refresh token for a new access token. The token
// must verify, be of refresh type, belong to this tenant and match the hash
// stored on the account (so a rotated-out token is rejected).
func (s *Service) Refresh(ctx context.Context, tenant, refreshToken string) (string, error) {
	claims, err := ParseAndValidate(refreshToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	if claims.TokenType != TokenTypeRefresh || claims.Tenant != tenant {
		return "", ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return "", ErrInvalidToken
	}
	u, err := s.users.Find(ctx, tenant, userID)
	if errors.Is(err, ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	stored := []byte(u.RefreshHash)
	presented := []byte(hashToken(refreshToken))
	if len(stored) == 0 || subtle.ConstantTimeCompare(stored, presented) != 1 {
		return "", ErrInvalidToken
	}
	return GenerateToken(tenant, u.ID, u.IsAdmin, TokenTypeAccess, AccessTTL)
}

// Authenticate resolves a bearer access token into an Identity, reloading
// the account so a revoked user or a changed admin flag takes effect
// immediately rather than at token expiry.
func (s *Service) Authenticate(ctx context.Context, tenant, accessToken string) (Identity, error) {
	claims, err := ParseAndValidate(accessToken)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if claims.TokenType != TokenTypeAccess || claims.Tenant != tenant {
		return Identity{}, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	u, err := s.users.Find(ctx, tenant, userID)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, ErrInvalidToken
	}
	if err != nil {
		return Identity{}, err
	}
	return Identity{Tenant: tenant, UserID: u.ID, IsAdmin: u.IsAdmin}, nil
}

func (s *Service) issuePair(ctx context.Context, u *User) (TokenPair, error) {
	access, err := GenerateToken(u.Tenant, u.ID, u.IsAdmin, TokenTypeAccess, AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := GenerateToken(u.Tenant, u.ID, u.IsAdmin, TokenTypeRefresh, RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	u.RefreshHash = hashToken(refresh)
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// UpdateProfile applies a partial profile change to an account. Dedicated
// fields (email, phone, password) are pulled out of the patch; everything
// else lands in the free-form profile after reserved keys are stripped.
func (s *Service) UpdateProfile(ctx context.Context, tenant string, id int64, patch map[string]any) (*User, error) {
	u, err := s.users.Find(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	if v, ok := patch["email"].(string); ok && strings.TrimSpace(v) != "" {
		u.Email = strings.TrimSpace(v)
	}
	if v, ok := patch["phone"].(string); ok && strings.TrimSpace(v) != "" {
		u.Phone = strings.TrimSpace(v)
	}
	if v, ok := patch["password"].(string); ok && v != "" {
		hash, err := HashPassword(v)
		if err != nil {
			return nil, errors.Join(ErrInvalidInput, err)
		}
		u.PasswordHash = hash
	}

	if extra := sanitizeExtra(patch); len(extra) > 0 {
		if u.Extra == nil {
			u.Extra = make(map[string]any, len(extra))
		}
		for k, v := range extra {
			u.Extra[k] = v
		}
	}

	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetAdmin flips the admin flag on an account. Takes effect on the next
// request because Authenticate reloads the account.
func (s *Service) SetAdmin(ctx context.Context, tenant string, id int64, admin bool) (*User, error) {
	u, err := s.users.Find(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	u.IsAdmin = admin
	u.UpdatedAt = s.now()
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func sanitizeExtra(extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]any, len(extra))
	for k, v := range extra {
		if _, reserved := reservedUserFields[k]; reserved {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
