package qb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bnjsx/sqlkit/pkg/sqlkit/datasource"
)

var (
	errNoRows          = errors.New("[builder] at least one row is required")
	errRowShape        = errors.New("[builder] row columns do not match the first row")
	errEmptyRow        = errors.New("[builder] row cannot be empty")
	errTooFewRows      = errors.New("[builder] bulk insert requires at least two rows")
	errMissingConflict = errors.New("[builder] conflict target is required")
	errUnknownSetCol   = errors.New("[builder] update column is not part of the rows")
)

// UpsertBuilder renders an INSERT that resolves key conflicts per dialect.
// With update columns configured it renders ON CONFLICT DO UPDATE or
// ON DUPLICATE KEY UPDATE; without them it renders DO NOTHING or INSERT
// IGNORE. The column list is fixed by the first row, sorted for a stable
// render, and every later row must carry exactly the same column set.
type UpsertBuilder struct {
	statement
	table     string
	columns   []string
	rows      [][]any
	conflict  []string
	set       []string
	returning []string
	err       error
}

// NewUpsert creates an upsert builder bound to conn.
func NewUpsert(conn Connection) *UpsertBuilder {
	u := &UpsertBuilder{}

	if err := u.bind(conn); err != nil {
		u.err = err
	}

	return u
}

func (u *UpsertBuilder) fail(err error) *UpsertBuilder {
	if u.err == nil {
		u.err = err
	}

	return u
}

// Err returns the first structural violation recorded on the builder.
func (u *UpsertBuilder) Err() error {
	return u.err
}

// UseLogger attaches a debug logger used by LogQuery and LogValues.
func (u *UpsertBuilder) UseLogger(logger datasource.Logger) *UpsertBuilder {
	u.logger = logger
	return u
}

// Into sets the target table.
func (u *UpsertBuilder) Into(table string) *UpsertBuilder {
	if u.err != nil {
		return u
	}

	if !tablePattern.MatchString(table) {
		return u.fail(fmt.Errorf("%w: %q", errInvalidColumn, table))
	}

	u.table = table

	return u
}

// Row appends one row. The first row fixes the column list; order within the
// map does not matter since columns are sorted once. A nil value is rendered
// as a literal NULL and never bound.
func (u *UpsertBuilder) Row(row map[string]any) *UpsertBuilder {
	if u.err != nil {
		return u
	}

	if len(row) == 0 {
		return u.fail(errEmptyRow)
	}

	if u.columns == nil {
		columns := make([]string, 0, len(row))

		for column := range row {
			if !columnPattern.MatchString(column) {
				return u.fail(fmt.Errorf("%w: %q", errInvalidColumn, column))
			}

			columns = append(columns, column)
		}

		sort.Strings(columns)
		u.columns = columns
	} else {
		if len(row) != len(u.columns) {
			return u.fail(fmt.Errorf("%w: got %d columns, want %d", errRowShape, len(row), len(u.columns)))
		}

		for _, column := range u.columns {
			if _, ok := row[column]; !ok {
				return u.fail(fmt.Errorf("%w: missing %q", errRowShape, column))
			}
		}
	}

	values := make([]any, len(u.columns))
	for i, column := range u.columns {
		values[i] = row[column]
	}

	u.rows = append(u.rows, values)

	return u
}

// Rows appends several rows at once and requires at least two, keeping the
// single-row path on Row explicit.
func (u *UpsertBuilder) Rows(rows []map[string]any) *UpsertBuilder {
	if u.err != nil {
		return u
	}

	if len(rows) < 2 {
		return u.fail(errTooFewRows)
	}

	for _, row := range rows {
		u.Row(row)

		if u.err != nil {
			return u
		}
	}

	return u
}

// Conflict names the key columns a conflict is detected on. It is required
// for every dialect so statements keep the same shape across backends, even
// though MySQL ignores the target at render time.
func (u *UpsertBuilder) Conflict(columns ...string) *UpsertBuilder {
	if u.err != nil {
		return u
	}

	if len(columns) == 0 {
		return u.fail(errMissingConflict)
	}

	for _, column := range columns {
		if !columnPattern.MatchString(column) {
			return u.fail(fmt.Errorf("%w: %q", errInvalidColumn, column))
		}
	}

	u.conflict = append(u.conflict, columns...)

	return u
}

// Set names the columns updated when a conflict fires. Each must be part of
// the inserted column set, checked at build time once the rows are known.
func (u *UpsertBuilder) Set(columns ...string) *UpsertBuilder {
	if u.err != nil {
		return u
	}

	for _, column := range columns {
		if !columnPattern.MatchString(column) {
			return u.fail(fmt.Errorf("%w: %q", errInvalidColumn, column))
		}

		u.set = append(u.set, column)
	}

	return u
}

// Returning appends a RETURNING clause. Only PostgreSQL renders it; the other
// dialects ignore it so portable call sites stay identical.
func (u *UpsertBuilder) Returning(columns ...string) *UpsertBuilder {
	if u.err != nil {
		return u
	}

	for _, column := range columns {
		if !columnPattern.MatchString(column) {
			return u.fail(fmt.Errorf("%w: %q", errInvalidColumn, column))
		}

		u.returning = append(u.returning, column)
	}

	return u
}

// Build renders the upsert for the bound dialect. Non-NULL cell values are
// bound left to right, row by row; NULL cells render inline and bind nothing.
func (u *UpsertBuilder) Build() (string, []any, error) {
	if u.err != nil {
		return "", nil, u.err
	}

	if u.table == "" {
		return "", nil, errMissingTable
	}

	if len(u.rows) == 0 {
		return "", nil, errNoRows
	}

	if len(u.conflict) == 0 {
		return "", nil, errMissingConflict
	}

	for _, column := range u.set {
		if !u.hasColumn(column) {
			return "", nil, fmt.Errorf("%w: %q", errUnknownSetCol, column)
		}
	}

	var bd strings.Builder

	values := make([]any, 0, len(u.rows)*len(u.columns))

	if u.dialect == DialectMySQL && len(u.set) == 0 {
		bd.WriteString("INSERT IGNORE INTO ")
	} else {
		bd.WriteString("INSERT INTO ")
	}

	bd.WriteString(u.table)
	bd.WriteString(" (" + strings.Join(u.columns, ", ") + ") VALUES ")

	tuples := make([]string, 0, len(u.rows))

	for _, row := range u.rows {
		cells := make([]string, len(row))

		for i, cell := range row {
			if cell == nil {
				cells[i] = "NULL"
				continue
			}

			cells[i] = "?"
			values = append(values, cell)
		}

		tuples = append(tuples, "("+strings.Join(cells, ", ")+")")
	}

	bd.WriteString(strings.Join(tuples, ", "))

	switch u.dialect {
	case DialectPostgres, DialectSQLite:
		bd.WriteString(" ON CONFLICT (" + strings.Join(u.conflict, ", ") + ")")

		if len(u.set) == 0 {
			bd.WriteString(" DO NOTHING")
		} else {
			assignments := make([]string, len(u.set))
			for i, column := range u.set {
				assignments[i] = column + " = excluded." + column
			}

			bd.WriteString(" DO UPDATE SET " + strings.Join(assignments, ", "))
		}
	case DialectMySQL:
		if len(u.set) > 0 {
			assignments := make([]string, len(u.set))
			for i, column := range u.set {
				assignments[i] = column + " = VALUES(" + column + ")"
			}

			bd.WriteString(" ON DUPLICATE KEY UPDATE " + strings.Join(assignments, ", "))
		}
	default:
		return "", nil, fmt.Errorf("%w: %q", errUnsupportedDialect, u.dialect)
	}

	if u.dialect == DialectPostgres && len(u.returning) > 0 {
		bd.WriteString(" RETURNING " + strings.Join(u.returning, ", "))
	}

	bd.WriteString(";")

	return bd.String(), values, nil
}

func (u *UpsertBuilder) hasColumn(column string) bool {
	for _, c := range u.columns {
		if c == column {
			return true
		}
	}

	return false
}

// Exec builds and executes the upsert without reading rows back.
func (u *UpsertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	query, values, err := u.Build()
	if err != nil {
		return nil, err
	}

	return u.runExec(ctx, query, values)
}

// Query builds and executes the upsert through the query path, needed on
// PostgreSQL when a RETURNING clause produces rows.
func (u *UpsertBuilder) Query(ctx context.Context) ([]Row, error) {
	query, values, err := u.Build()
	if err != nil {
		return nil, err
	}

	return u.runQuery(ctx, query, values)
}

// LogQuery logs the rendered SQL without executing it.
func (u *UpsertBuilder) LogQuery() *UpsertBuilder {
	query, _, err := u.Build()
	u.logQuery(query, err)

	return u
}

// LogValues logs the bound values without executing.
func (u *UpsertBuilder) LogValues() *UpsertBuilder {
	_, values, err := u.Build()
	u.logValues(values, err)

	return u
}

// Reset returns the builder to its empty state for reuse on the same
// connection.
func (u *UpsertBuilder) Reset() *UpsertBuilder {
	u.table = ""
	u.columns = nil
	u.rows = nil
	u.conflict = nil
	u.set = nil
	u.returning = nil
	u.err = nil

	return u
}
