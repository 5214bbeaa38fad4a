package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"recordbase.org/internal/policy"
	"recordbase.org/internal/query"
	"recordbase.org/internal/record"
)

var _ record.Store = (*Records)(nil)

const recordColumns = `row_id, application_key, category, public_id, owner_id, created_at, last_changed_at, doc`

func (s *Records) Create(ctx context.Context, tenant, category string, ownerID int64, payload map[string]any) (record.Record, error) {
	rec := record.New(tenant, category, ownerID, payload)
	doc, err := json.Marshal(rec.Public())
	if err != nil {
		return record.Record{}, fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into records (row_id, application_key, category, public_id, owner_id, created_at, last_changed_at, doc)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.Row, rec.Tenant, rec.Category, rec.ID, rec.OwnerID, rec.CreatedAt, rec.LastChangedAt, doc)
	if err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

func (s *Records) Get(ctx context.Context, tenant, category string, id int64, scope policy.Scope) (record.Record, error) {
	where, args := scopedPredicate(tenant, category, id, scope)
	row := s.db.QueryRowContext(ctx, `select `+recordColumns+` from records where `+where, args...)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.ErrNotFound
	}
	return rec, err
}

func (s *Records) Update(ctx context.Context, tenant, category string, id int64, scope policy.Scope, patch map[string]any) (record.Record, error) {
	clean := record.SanitizePayload(patch)
	patchJSON, err := json.Marshal(clean)
	if err != nil {
		return record.Record{}, fmt.Errorf("encode patch: %w", err)
	}
	now := time.Now().UTC()

	where, args := scopedPredicate(tenant, category, id, scope)
	n := len(args)
	args = append(args, patchJSON, now.Format(record.TimestampFormat), now)

	// One atomic document-level write: the patch is folded into the jsonb
	// document together with the refreshed last_changed_at, so concurrent
	// updates serialize at the row and the last writer wins.
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		update records
		set doc = doc || $%d::jsonb || jsonb_build_object('last_changed_at', $%d::text),
		    last_changed_at = $%d
		where %s
		returning `+recordColumns,
		n+1, n+2, n+3, where), args...)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Record{}, record.ErrNotFound
	}
	return rec, err
}

func (s *Records) Delete(ctx context.Context, tenant, category string, id int64, scope policy.Scope) error {
	where, args := scopedPredicate(tenant, category, id, scope)
	res, err := s.db.ExecContext(ctx, `delete from records where `+where, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return record.ErrNotFound
	}
	return nil
}

func (s *Records) DeleteAll(ctx context.Context, tenant, category string, scope policy.Scope) (int64, error) {
	where := `application_key = $1 and category = $2`
	args := []any{tenant, category}
	if scope.Restricted() {
		where += ` and owner_id = $3`
		args = append(args, scope.Owner())
	}
	res, err := s.db.ExecContext(ctx, `delete from records where `+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Records) List(ctx context.Context, q query.BoundQuery) ([]record.Record, int64, error) {
	where, args := listPredicate(q)

	var total int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from records where `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sqlText, args := listStatement(q, where, args)
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// scopedPredicate addresses a single record under its access scope.
func scopedPredicate(tenant, category string, id int64, scope policy.Scope) (string, []any) {
	where := `application_key = $1 and category = $2 and public_id = $3`
	args := []any{tenant, category, id}
	if scope.Restricted() {
		where += ` and owner_id = $4`
		args = append(args, scope.Owner())
	}
	return where, args
}

// listPredicate lowers the compiled query's conditions into a parameterized
// WHERE clause over the jsonb document. The tenant, category and owner
// predicates always come first and are never client-controlled.
func listPredicate(q query.BoundQuery) (string, []any) {
	var parts []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	parts = append(parts, fmt.Sprintf("application_key = %s", arg(q.Tenant)))
	parts = append(parts, fmt.Sprintf("category = %s", arg(q.Category)))
	if q.Owner != 0 {
		parts = append(parts, fmt.Sprintf("owner_id = %s", arg(q.Owner)))
	}

	for _, c := range q.Conds {
		switch c.Op {
		case query.OpEq:
			if c.IsBool {
				key := arg(c.Key)
				parts = append(parts, fmt.Sprintf(
					"(jsonb_typeof(doc -> %s) = 'boolean' and (doc ->> %s)::boolean = %s)",
					key, key, arg(c.Bool)))
			} else {
				parts = append(parts, fmt.Sprintf("doc ->> %s = %s", arg(c.Key), arg(c.Str)))
			}
		case query.OpIn:
			parts = append(parts, fmt.Sprintf("doc ->> %s = any(%s)", arg(c.Key), arg(c.Values)))
		case query.OpRange:
			if c.Min != nil {
				parts = append(parts, rangeBoundSQL(arg, c.Key, c.Min, ">="))
			}
			if c.Max != nil {
				parts = append(parts, rangeBoundSQL(arg, c.Key, c.Max, "<="))
			}
		case query.OpMatch:
			parts = append(parts, fmt.Sprintf(`doc ->> %s ilike %s escape '\'`,
				arg(c.Key), arg("%"+escapeLike(c.Pattern)+"%")))
		}
	}
	return strings.Join(parts, " and "), args
}

// rangeBoundSQL emits one side of a range condition. The rb_numeric and
// rb_timestamp helpers (created by migrations) return NULL for values of
// the wrong shape, which excludes the row exactly like the in-memory
// evaluator does.
func rangeBoundSQL(arg func(any) string, key string, b *query.Bound, cmp string) string {
	if b.IsTime {
		return fmt.Sprintf("rb_timestamp(doc, %s) %s %s", arg(key), cmp, arg(b.Time))
	}
	return fmt.Sprintf("rb_numeric(doc, %s) %s %s", arg(key), cmp, arg(b.Num))
}

// listStatement appends ordering and pagination to the shared predicate.
func listStatement(q query.BoundQuery, where string, args []any) (string, []any) {
	sqlText := `select ` + recordColumns + ` from records where ` + where

	if q.SortKey != "" {
		args = append(args, q.SortKey)
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		// jsonb ordering is total across value types; row_id breaks ties
		// so pages never overlap.
		sqlText += fmt.Sprintf(" order by doc -> $%d %s, row_id", len(args), dir)
	} else {
		sqlText += " order by row_id"
	}

	if !q.Unbounded() {
		args = append(args, q.Limit, q.Skip)
		sqlText += fmt.Sprintf(" limit $%d offset $%d", len(args)-1, len(args))
	}
	return sqlText, args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (record.Record, error) {
	var rec record.Record
	var doc []byte
	if err := row.Scan(&rec.Row, &rec.Tenant, &rec.Category, &rec.ID, &rec.OwnerID, &rec.CreatedAt, &rec.LastChangedAt, &doc); err != nil {
		return record.Record{}, err
	}
	full := map[string]any{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &full); err != nil {
			return record.Record{}, fmt.Errorf("decode document: %w", err)
		}
	}
	// The stored document is the public shape; strip the envelope echoes
	// to recover the bare payload.
	delete(full, "id")
	delete(full, "created_at")
	delete(full, "last_changed_at")
	rec.Payload = full
	return rec, nil
}
