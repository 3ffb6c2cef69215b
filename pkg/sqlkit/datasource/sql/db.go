// Package sql wraps database/sql handles with query logging, metrics recording
// and lightweight row binding. The wrapped DB carries the dialect tag the query
// builder (qb) switches on; it never manages more than one logical database.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/bnjsx/sqlkit/pkg/sqlkit/datasource"
)

// DB is a wrapper around sql.DB providing logging, metrics and row binding.
type DB struct {
	*sql.DB
	logger  datasource.Logger
	config  *DBConfig
	metrics Metrics
}

// QueryLog is the record emitted for every database operation.
type QueryLog struct {
	Type     string `json:"type"`
	Query    string `json:"query"`
	Duration int64  `json:"duration"`
	Args     []any  `json:"args,omitempty"`
}

var (
	errSelectDataNotPointer = errors.New("data is not a pointer")
	errSelectUnsupported    = errors.New("unsupported select destination type")

	spacesPattern = regexp.MustCompile(`\s+`)
)

// PrettyPrint renders the query log with aligned duration columns on terminals.
func (l *QueryLog) PrettyPrint(writer io.Writer) {
	fmt.Fprintf(writer, "[38;5;8m%-32s [38;5;24m%-6s[0m %8d[38;5;8mµs[0m %s\n",
		l.Type, "SQL", l.Duration, clean(l.Query))
}

func clean(query string) string {
	return strings.TrimSpace(spacesPattern.ReplaceAllString(query, " "))
}

func (d *DB) sendOperationStats(start time.Time, queryType, query string, args ...any) {
	duration := time.Since(start).Microseconds()

	if d.logger != nil {
		d.logger.Debug(&QueryLog{
			Type:     queryType,
			Query:    query,
			Duration: duration,
			Args:     args,
		})
	}

	if d.metrics != nil {
		d.metrics.RecordHistogram(context.Background(), "app_sql_stats", float64(duration),
			"hostname", d.config.HostName, "database", d.config.Database, "type", operationType(query))
	}
}

func operationType(query string) string {
	words := strings.Split(strings.TrimSpace(query), " ")

	return strings.ToUpper(words[0])
}

// Dialect returns the dialect tag the handle was opened with.
func (d *DB) Dialect() string {
	return d.config.Dialect
}

func (d *DB) Query(query string, args ...any) (*sql.Rows, error) {
	defer d.sendOperationStats(time.Now(), "Query", query, args...)
	return d.DB.QueryContext(context.Background(), query, args...)
}

func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer d.sendOperationStats(time.Now(), "QueryContext", query, args...)
	return d.DB.QueryContext(ctx, query, args...)
}

func (d *DB) QueryRow(query string, args ...any) *sql.Row {
	defer d.sendOperationStats(time.Now(), "QueryRow", query, args...)
	return d.DB.QueryRowContext(context.Background(), query, args...)
}

func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer d.sendOperationStats(time.Now(), "QueryRowContext", query, args...)
	return d.DB.QueryRowContext(ctx, query, args...)
}

func (d *DB) Exec(query string, args ...any) (sql.Result, error) {
	defer d.sendOperationStats(time.Now(), "Exec", query, args...)
	return d.DB.ExecContext(context.Background(), query, args...)
}

func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer d.sendOperationStats(time.Now(), "ExecContext", query, args...)
	return d.DB.ExecContext(ctx, query, args...)
}

func (d *DB) Begin() (*Tx, error) {
	tx, err := d.DB.BeginTx(context.Background(), nil)
	if err != nil {
		return nil, err
	}

	return &Tx{Tx: tx, db: d}, nil
}

func (d *DB) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}

	return nil
}

// Tx wraps sql.Tx with the same logging and metrics as DB.
type Tx struct {
	*sql.Tx
	db *DB
}

func (t *Tx) sendOperationStats(start time.Time, queryType, query string, args ...any) {
	t.db.sendOperationStats(start, queryType, query, args...)
}

// Dialect returns the dialect tag of the transaction's database handle.
func (t *Tx) Dialect() string {
	return t.db.Dialect()
}

func (t *Tx) Query(query string, args ...any) (*sql.Rows, error) {
	defer t.sendOperationStats(time.Now(), "TxQuery", query, args...)
	return t.Tx.QueryContext(context.Background(), query, args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer t.sendOperationStats(time.Now(), "TxQueryContext", query, args...)
	return t.Tx.QueryContext(ctx, query, args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer t.sendOperationStats(time.Now(), "TxQueryRowContext", query, args...)
	return t.Tx.QueryRowContext(ctx, query, args...)
}

func (t *Tx) Exec(query string, args ...any) (sql.Result, error) {
	defer t.sendOperationStats(time.Now(), "TxExec", query, args...)
	return t.Tx.ExecContext(context.Background(), query, args...)
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer t.sendOperationStats(time.Now(), "TxExecContext", query, args...)
	return t.Tx.ExecContext(ctx, query, args...)
}

func (t *Tx) Commit() error {
	defer t.sendOperationStats(time.Now(), "TxCommit", "COMMIT")
	return t.Tx.Commit()
}

func (t *Tx) Rollback() error {
	defer t.sendOperationStats(time.Now(), "TxRollback", "ROLLBACK")
	return t.Tx.Rollback()
}

// Select runs a query with args and binds the result into data.
// data must be a pointer to a slice or a struct.
//
// Example:
//
//  1. Multiple rows with a single column
//     ids := make([]int, 0)
//     err := db.Select(ctx, &ids, "SELECT id FROM users")
//
//  2. A single object
//     u := user{}
//     err := db.Select(ctx, &u, "SELECT * FROM users WHERE id=?", 1)
//
//  3. Multiple objects; column names map via the `db` tag or snake_case
//     users := []user{}
//     err := db.Select(ctx, &users, "SELECT * FROM users")
func (d *DB) Select(ctx context.Context, data any, query string, args ...any) error {
	return selectData(ctx, d.logger, d.QueryContext, data, query, args...)
}

// Select executes query using the active transaction and binds rows into data.
func (t *Tx) Select(ctx context.Context, data any, query string, args ...any) error {
	return selectData(ctx, t.db.logger, t.QueryContext, data, query, args...)
}

type queryFunc func(ctx context.Context, query string, args ...any) (*sql.Rows, error)

func selectData(ctx context.Context, logger datasource.Logger, queryContext queryFunc, data any, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Destination must be settable so callers can read scanned results.
	rvo := reflect.ValueOf(data)
	if !rvo.IsValid() || rvo.Kind() != reflect.Ptr || rvo.IsNil() {
		if logger != nil {
			logger.Error("select destination is not a pointer")
		}

		return errSelectDataNotPointer
	}

	rv := rvo.Elem()

	switch rv.Kind() {
	case reflect.Slice:
		return selectSlice(ctx, queryContext, query, args, rvo, rv)
	case reflect.Struct:
		return selectStruct(ctx, queryContext, query, args, rv)
	default:
		return fmt.Errorf("%w: %s", errSelectUnsupported, rv.Kind())
	}
}

func selectSlice(ctx context.Context, queryContext queryFunc, query string, args []any, rvo, rv reflect.Value) error {
	rows, err := queryContext(ctx, query, args...)
	if err != nil {
		return err
	}

	defer rows.Close()

	for rows.Next() {
		val := reflect.New(rv.Type().Elem())

		if rv.Type().Elem().Kind() == reflect.Struct {
			if err := rowsToStruct(rows, val); err != nil {
				return err
			}
		} else if err := rows.Scan(val.Interface()); err != nil {
			return err
		}

		rv = reflect.Append(rv, val.Elem())
	}

	if err := rows.Err(); err != nil {
		return err
	}

	if rvo.Elem().CanSet() {
		rvo.Elem().Set(rv)
	}

	return nil
}

func selectStruct(ctx context.Context, queryContext queryFunc, query string, args []any, rv reflect.Value) error {
	rows, err := queryContext(ctx, query, args...)
	if err != nil {
		return err
	}

	defer rows.Close()

	rowFound := false

	for rows.Next() {
		rowFound = true

		if err := rowsToStruct(rows, rv); err != nil {
			return err
		}
	}

	if err := rows.Err(); err != nil {
		return err
	}

	if !rowFound {
		return sql.ErrNoRows
	}

	return nil
}

func rowsToStruct(rows *sql.Rows, vo reflect.Value) error {
	v := vo
	if vo.Kind() == reflect.Ptr {
		v = vo.Elem()
	}

	// Map fields and their indexes by normalized name.
	fieldNameIndex := map[string]int{}

	for i := 0; i < v.Type().NumField(); i++ {
		f := v.Type().Field(i)

		name := f.Tag.Get("db")
		if name == "" {
			name = ToSnakeCase(f.Name)
		}

		fieldNameIndex[name] = i
	}

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	fields := []any{}

	for _, c := range columns {
		if i, ok := fieldNameIndex[c]; ok {
			fields = append(fields, v.Field(i).Addr().Interface())
		} else {
			var discard any

			fields = append(fields, &discard)
		}
	}

	if err := rows.Scan(fields...); err != nil {
		return err
	}

	if vo.CanSet() {
		vo.Set(v)
	}

	return nil
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

func ToSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")

	return strings.ToLower(snake)
}
