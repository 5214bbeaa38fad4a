package pg

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgErrUniqueViolation = "23505"
)

// Store implements the record, policy and user stores on one Postgres
// connection pool. Schema-less payloads live in a jsonb column; the
// envelope fields are regular columns so tenant and owner predicates
// never depend on client-controlled document content.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Records, Policies and Users are views over the shared pool. Keeping them
// as separate types lets each implement its domain interface without the
// method sets colliding on one receiver.
type Records struct{ db *sql.DB }

type Policies struct{ db *sql.DB }

type Users struct{ db *sql.DB }

func (s *Store) Records() *Records { return &Records{db: s.db} }

func (s *Store) Policies() *Policies { return &Policies{db: s.db} }

func (s *Store) Users() *Users { return &Users{db: s.db} }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
