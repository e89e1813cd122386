// Package store defines the persistence contracts for tasks: the
// TaskStore interface, its sentinel errors and the DBTX query surface
// the Postgres implementation is written against.
package store

import (
	"context"
	"database/sql"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Store
// methods take it instead of a concrete connection so the same code
// runs standalone or inside a transaction handed over via WithTx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
