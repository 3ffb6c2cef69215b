package sql

import (
	"context"
	"database/sql"
)

// Executor is the execution surface shared by DB and Tx. Repository code
// written against it runs unchanged on the live handle or inside an open
// transaction, and its Dialect method lets such code feed the query builders.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Select(ctx context.Context, data any, query string, args ...any) error
	Dialect() string
}

var (
	_ Executor = (*DB)(nil)
	_ Executor = (*Tx)(nil)
)
