// Package db persists parsed reports to PostgreSQL. Repositories accept a
// DBTX interface that is satisfied by *pgx.Conn and pgx.Tx, so the same
// queries run inside or outside a transaction.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal interface shared by *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Conn is a single opened connection. *pgx.Conn satisfies it.
type Conn interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
	IsClosed() bool
}

var _ Conn = (*pgx.Conn)(nil)

// isUniqueViolation checks if the error is a PostgreSQL unique constraint
// violation (error code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
