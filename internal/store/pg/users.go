package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recordbase.org/internal/auth"
)

var _ auth.UserStore = (*Users)(nil)

const userColumns = `row_id, application_key, public_id, email, phone, password_hash, is_admin, refresh_hash, created_at, updated_at, extra`

func (s *Users) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	extra, err := marshalExtra(u.Extra)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into users (row_id, application_key, public_id, email, phone, password_hash, is_admin, refresh_hash, created_at, updated_at, extra)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.Row, u.Tenant, u.ID, nullIfEmpty(u.Email), nullIfEmpty(u.Phone),
		u.PasswordHash, u.IsAdmin, nullIfEmpty(u.RefreshHash), u.CreatedAt, u.UpdatedAt, extra)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Users) Find(ctx context.Context, tenant string, id int64) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where application_key = $1 and public_id = $2
	`, tenant, id)
	return scanUser(row)
}

func (s *Users) FindByLogin(ctx context.Context, tenant, email, phone string) (*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var row *sql.Row
	switch {
	case email != "":
		row = s.db.QueryRowContext(ctx, `
			select `+userColumns+`
			from users
			where application_key = $1 and email = $2
		`, tenant, email)
	case phone != "":
		row = s.db.QueryRowContext(ctx, `
			select `+userColumns+`
			from users
			where application_key = $1 and phone = $2
		`, tenant, phone)
	default:
		return nil, auth.ErrNotFound
	}
	return scanUser(row)
}

func (s *Users) List(ctx context.Context, tenant string) ([]*auth.User, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		where application_key = $1
		order by created_at, row_id
	`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Users) Update(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	extra, err := marshalExtra(u.Extra)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set email = $1, phone = $2, password_hash = $3, is_admin = $4,
		    refresh_hash = $5, updated_at = $6, extra = $7
		where application_key = $8 and public_id = $9
	`, nullIfEmpty(u.Email), nullIfEmpty(u.Phone), u.PasswordHash, u.IsAdmin,
		nullIfEmpty(u.RefreshHash), u.UpdatedAt, extra, u.Tenant, u.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Users) Delete(ctx context.Context, tenant string, id int64) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		delete from users
		where application_key = $1 and public_id = $2
	`, tenant, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u        auth.User
		email    sql.NullString
		phone    sql.NullString
		refresh  sql.NullString
		rawExtra []byte
	)
	err := row.Scan(&u.Row, &u.Tenant, &u.ID, &email, &phone, &u.PasswordHash,
		&u.IsAdmin, &refresh, &u.CreatedAt, &u.UpdatedAt, &rawExtra)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Phone = phone.String
	u.RefreshHash = refresh.String
	u.Extra = map[string]any{}
	if len(rawExtra) > 0 {
		if err := json.Unmarshal(rawExtra, &u.Extra); err != nil {
			return nil, fmt.Errorf("decode user profile: %w", err)
		}
	}
	return &u, nil
}

func marshalExtra(extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return []byte("{}"), nil
	}
	bytes, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("marshal user profile: %w", err)
	}
	return bytes, nil
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
