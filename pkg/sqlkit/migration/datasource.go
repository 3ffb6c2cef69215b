package migration

import (
	"context"
	"database/sql"
)

// Logger is the logging surface migrations report through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// SQL is the database surface handed to a migration's UP function. Both the
// managed connection and an open transaction satisfy it, so a migration body
// runs against whichever the runner provides.
type SQL interface {
	Exec(query string, args ...any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Dialect() string
}

// Datasource bundles what a migration body may touch.
type Datasource struct {
	Logger

	SQL SQL
}
