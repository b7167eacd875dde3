// Package db holds the transaction scoping primitive shared by every
// component that writes through the persistence layer.
package db

import (
	"context"
	"database/sql"
	"errors"
)

// ErrUnavailable is returned when no connection pool was configured.
var ErrUnavailable = errors.New("database connection unavailable")

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// InTx runs fn inside a transaction. When tx is non-nil it is reused and left
// for the owner to commit; otherwise a fresh transaction is opened on conn,
// rolled back if fn fails and committed if it succeeds.
func InTx(ctx context.Context, conn *sql.DB, tx *sql.Tx, fn func(*sql.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	if conn == nil {
		return ErrUnavailable
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
