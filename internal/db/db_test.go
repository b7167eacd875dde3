package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mock
}

func TestInTxCommits(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("update staff_role").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := InTx(context.Background(), conn, nil, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(context.Background(), "update staff_role set \"order\" = 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxRollsBackOnError(t *testing.T) {
	conn, mock := newMock(t)

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := InTx(context.Background(), conn, nil, func(*sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxReusesCallerTx(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectBegin()
	outer, err := conn.Begin()
	require.NoError(t, err)

	var got *sql.Tx
	require.NoError(t, InTx(context.Background(), nil, outer, func(tx *sql.Tx) error {
		got = tx
		return nil
	}))
	assert.Same(t, outer, got)
	// no commit or rollback may have been issued on the caller's behalf
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTxWithoutConnection(t *testing.T) {
	err := InTx(context.Background(), nil, nil, func(*sql.Tx) error { return nil })
	assert.ErrorIs(t, err, ErrUnavailable)
}
