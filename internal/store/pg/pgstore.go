// Package pg implements the session and staff stores on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"osutourney.org/internal/db"
	"osutourney.org/internal/perm"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Pool holds connection pool limits.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Store struct {
	db *sql.DB
}

func Open(dsn string, pool Pool) (*Store, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if pool.MaxOpenConns > 0 {
		conn.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: conn}, nil
}

// New wraps an existing pool.
func New(conn *sql.DB) *Store { return &Store{db: conn} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return db.ErrUnavailable
	}
	return s.db.PingContext(ctx)
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if s.db == nil {
		return db.ErrUnavailable
	}
	return db.InTx(ctx, s.db, nil, fn)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isPgCode(err error, code string) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == code
}

// isUniqueViolation reports whether err is a unique violation of constraint.
func isUniqueViolation(err error, constraint string) bool {
	pgErr, ok := maybePgError(err)
	return ok && pgErr.Code == pgErrUniqueViolation && pgErr.ConstraintName == constraint
}

func parsePermissions(raw pq.StringArray) ([]perm.Permission, error) {
	perms, err := perm.ParseList(raw)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []perm.Permission{}
	}
	return perms, nil
}
