package pg

import (
	"context"
	"database/sql"
	"errors"

	"recordbase.org/internal/ids"
	"recordbase.org/internal/policy"
)

var _ policy.Store = (*Policies)(nil)

func (s *Policies) Get(ctx context.Context, tenant, category string, method policy.Method) (policy.Policy, error) {
	if s.db == nil {
		return policy.Policy{}, errors.New("database connection unavailable")
	}
	var p policy.Policy
	err := s.db.QueryRowContext(ctx, `
		select row_id, application_key, category, method, level, created_at
		from policies
		where application_key = $1 and category = $2 and method = $3
	`, tenant, category, string(method)).Scan(&p.Row, &p.Tenant, &p.Category, &p.Method, &p.Level, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.Policy{}, policy.ErrNotFound
	}
	if err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}

func (s *Policies) Upsert(ctx context.Context, p policy.Policy) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	row := p.Row
	if row == "" {
		row = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into policies (row_id, application_key, category, method, level, created_at)
		values ($1, $2, $3, $4, $5, $6)
		on conflict (application_key, category, method)
		do update set level = excluded.level
	`, row, p.Tenant, p.Category, string(p.Method), string(p.Level), p.CreatedAt)
	return err
}

func (s *Policies) List(ctx context.Context, tenant string) ([]policy.Policy, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select row_id, application_key, category, method, level, created_at
		from policies
		where application_key = $1
		order by category, method
	`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []policy.Policy
	for rows.Next() {
		var p policy.Policy
		if err := rows.Scan(&p.Row, &p.Tenant, &p.Category, &p.Method, &p.Level, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
