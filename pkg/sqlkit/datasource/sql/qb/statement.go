package qb

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/bnjsx/sqlkit/pkg/sqlkit/datasource"
)

// Connection is the capability a builder consumes: execute a SQL string with a
// positional parameter list, tagged with a dialect. The builder never opens,
// closes or pools connections.
type Connection interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Dialect() string
}

// Row is one generic result row keyed by column name.
type Row map[string]any

// statement holds the state shared by all statement builders: the bound
// connection, its dialect, and an optional debug logger.
type statement struct {
	conn    Connection
	dialect Dialect
	logger  datasource.Logger
}

func (s *statement) bind(conn Connection) error {
	if conn == nil {
		return errNilConnection
	}

	dialect, err := normalizeDialect(conn.Dialect())
	if err != nil {
		return err
	}

	s.conn = conn
	s.dialect = dialect

	return nil
}

// runQuery sends a built query and its flattened values to the connection and
// scans the result into generic rows. Placeholders are rebound for the dialect
// here, never inside Build.
func (s *statement) runQuery(ctx context.Context, query string, values []any) ([]Row, error) {
	if s.conn == nil {
		return nil, errNilConnection
	}

	rows, err := s.conn.QueryContext(ctx, rebind(s.dialect, query), values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

func (s *statement) runExec(ctx context.Context, query string, values []any) (sql.Result, error) {
	if s.conn == nil {
		return nil, errNilConnection
	}

	return s.conn.ExecContext(ctx, rebind(s.dialect, query), values...)
}

// Raw bypasses the builder for a one-off statement on the same connection.
// The query uses `?` placeholders regardless of dialect.
func (s *statement) Raw(ctx context.Context, query string, values ...any) ([]Row, error) {
	return s.runQuery(ctx, query, values)
}

func (s *statement) logQuery(query string, err error) {
	if s.logger == nil {
		return
	}

	if err != nil {
		s.logger.Errorf("build failed: %v", err)
		return
	}

	s.logger.Debugf("query: %s", query)
}

func (s *statement) logValues(values []any, err error) {
	if s.logger == nil {
		return
	}

	if err != nil {
		s.logger.Errorf("build failed: %v", err)
		return
	}

	s.logger.Debugf("values: %v", values)
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := make([]Row, 0)

	for rows.Next() {
		cells := make([]any, len(columns))
		for i := range cells {
			cells[i] = new(any)
		}

		if err := rows.Scan(cells...); err != nil {
			return nil, err
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			value := *cells[i].(*any)
			if b, ok := value.([]byte); ok {
				value = string(b)
			}

			row[column] = value
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// resolveCount converts a scanned aggregate value into an int64. Drivers
// return COUNT results as int64, float64 or raw bytes depending on dialect.
func resolveCount(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case []uint8:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0
		}

		return n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}

		return n
	default:
		return 0
	}
}
