package qb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnjsx/sqlkit/pkg/sqlkit/datasource"
)

var (
	errMissingTable     = errors.New("[builder] table name is required")
	errEmptyColumn      = errors.New("[builder] column name cannot be empty")
	errNilCallback      = errors.New("[builder] callback cannot be nil")
	errEmptyJoinCond    = errors.New("[builder] join requires an ON condition")
	errInvalidDirection = errors.New("[builder] order direction must be ASC or DESC")
	errNegativeLimit    = errors.New("[builder] limit and offset cannot be negative")
)

// Direction is a sort direction for OrderBy.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

var tablePattern = columnPattern

type joinClause struct {
	kind  string
	table string
	on    *Cond
}

type unionClause struct {
	all    bool
	query  string
	values []any
}

// SelectBuilder accumulates a SELECT statement configuration and renders it on
// Build. Rendering order is fixed: SELECT [DISTINCT] columns FROM table, joins,
// WHERE, GROUP BY, HAVING, ORDER BY, LIMIT, OFFSET, unions. Bound values are
// collected per clause and flattened in that same order so the value list
// matches the placeholders left to right.
type SelectBuilder struct {
	statement
	table    string
	columns  []string
	distinct bool
	joins    []joinClause
	where    *Cond
	groupBy  []string
	having   *Cond
	orderBy  []string
	limit    int
	offset   int
	unions   []unionClause
	err      error
}

// NewSelect creates a SELECT builder bound to conn. The dialect is inherited
// from the connection.
func NewSelect(conn Connection) *SelectBuilder {
	s := &SelectBuilder{limit: -1, offset: -1}

	if err := s.bind(conn); err != nil {
		s.err = err
	}

	return s
}

func (s *SelectBuilder) fail(err error) *SelectBuilder {
	if s.err == nil {
		s.err = err
	}

	return s
}

// Err returns the first structural violation recorded on the builder.
func (s *SelectBuilder) Err() error {
	return s.err
}

// UseLogger attaches a debug logger used by LogQuery and LogValues.
func (s *SelectBuilder) UseLogger(logger datasource.Logger) *SelectBuilder {
	s.logger = logger
	return s
}

// From sets the table the statement selects from.
func (s *SelectBuilder) From(table string) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if !tablePattern.MatchString(table) {
		return s.fail(fmt.Errorf("%w: %q", errInvalidColumn, table))
	}

	s.table = table

	return s
}

// Col replaces the default `*` column list. Each name must be non-empty.
func (s *SelectBuilder) Col(columns ...string) *SelectBuilder {
	if s.err != nil {
		return s
	}

	for _, column := range columns {
		if strings.TrimSpace(column) == "" {
			return s.fail(errEmptyColumn)
		}

		s.columns = append(s.columns, column)
	}

	return s
}

// Distinct adds the DISTINCT keyword.
func (s *SelectBuilder) Distinct() *SelectBuilder {
	if s.err != nil {
		return s
	}

	s.distinct = true

	return s
}

// Join adds an INNER JOIN. The callback populates the join's ON condition.
func (s *SelectBuilder) Join(table string, fn func(on *Cond)) *SelectBuilder {
	return s.join("INNER", table, fn)
}

// LeftJoin adds a LEFT JOIN. The callback populates the join's ON condition.
func (s *SelectBuilder) LeftJoin(table string, fn func(on *Cond)) *SelectBuilder {
	return s.join("LEFT", table, fn)
}

// RightJoin adds a RIGHT JOIN. The callback populates the join's ON condition.
func (s *SelectBuilder) RightJoin(table string, fn func(on *Cond)) *SelectBuilder {
	return s.join("RIGHT", table, fn)
}

func (s *SelectBuilder) join(kind, table string, fn func(on *Cond)) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if !tablePattern.MatchString(table) {
		return s.fail(fmt.Errorf("%w: %q", errInvalidColumn, table))
	}

	if fn == nil {
		return s.fail(errNilCallback)
	}

	on := NewCond(s.dialect)
	fn(on)

	if err := on.Err(); err != nil {
		return s.fail(err)
	}

	if on.empty() {
		return s.fail(errEmptyJoinCond)
	}

	s.joins = append(s.joins, joinClause{kind: kind, table: table, on: on})

	return s
}

// Where extends the statement's WHERE condition. The condition builder is
// created lazily on first use, so repeated calls extend one expression.
func (s *SelectBuilder) Where(fn func(c *Cond)) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if fn == nil {
		return s.fail(errNilCallback)
	}

	if s.where == nil {
		s.where = NewCond(s.dialect)
	}

	fn(s.where)

	if err := s.where.Err(); err != nil {
		return s.fail(err)
	}

	return s
}

// Having extends the statement's HAVING condition, independently of Where.
func (s *SelectBuilder) Having(fn func(c *Cond)) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if fn == nil {
		return s.fail(errNilCallback)
	}

	if s.having == nil {
		s.having = NewCond(s.dialect)
	}

	fn(s.having)

	if err := s.having.Err(); err != nil {
		return s.fail(err)
	}

	return s
}

// GroupBy appends grouping columns. Each name must be non-empty.
func (s *SelectBuilder) GroupBy(columns ...string) *SelectBuilder {
	if s.err != nil {
		return s
	}

	for _, column := range columns {
		if strings.TrimSpace(column) == "" {
			return s.fail(errEmptyColumn)
		}

		s.groupBy = append(s.groupBy, column)
	}

	return s
}

// OrderBy appends an ordering term with an explicit direction.
func (s *SelectBuilder) OrderBy(column string, direction Direction) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if !columnPattern.MatchString(column) {
		return s.fail(fmt.Errorf("%w: %q", errInvalidColumn, column))
	}

	if direction != Asc && direction != Desc {
		return s.fail(fmt.Errorf("%w: %q", errInvalidDirection, direction))
	}

	s.orderBy = append(s.orderBy, column+" "+string(direction))

	return s
}

// Random appends the dialect's random function to the order list, useful for
// random sampling before Limit.
func (s *SelectBuilder) Random() *SelectBuilder {
	if s.err != nil {
		return s
	}

	fn, err := randomFunc(s.dialect)
	if err != nil {
		return s.fail(err)
	}

	s.orderBy = append(s.orderBy, fn)

	return s
}

// Limit sets the LIMIT clause.
func (s *SelectBuilder) Limit(n int) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if n < 0 {
		return s.fail(errNegativeLimit)
	}

	s.limit = n

	return s
}

// Offset sets the OFFSET clause.
func (s *SelectBuilder) Offset(n int) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if n < 0 {
		return s.fail(errNegativeLimit)
	}

	s.offset = n

	return s
}

// Union appends a UNION with a subquery built by the callback on a nested
// Select bound to the same connection. Unions always render last.
func (s *SelectBuilder) Union(fn func(sub *SelectBuilder)) *SelectBuilder {
	return s.union(false, fn)
}

// UnionAll appends a UNION ALL subquery.
func (s *SelectBuilder) UnionAll(fn func(sub *SelectBuilder)) *SelectBuilder {
	return s.union(true, fn)
}

func (s *SelectBuilder) union(all bool, fn func(sub *SelectBuilder)) *SelectBuilder {
	if s.err != nil {
		return s
	}

	if fn == nil {
		return s.fail(errNilCallback)
	}

	sub := &SelectBuilder{statement: s.statement, limit: -1, offset: -1}
	fn(sub)

	query, values, err := sub.render(true, false)
	if err != nil {
		return s.fail(err)
	}

	s.unions = append(s.unions, unionClause{all: all, query: query, values: values})

	return s
}

// Build renders the statement and repopulates the bound-value list from
// scratch, in clause order: join conditions, where, having, union subqueries.
// It is deterministic and may be called many times.
func (s *SelectBuilder) Build() (string, []any, error) {
	return s.render(true, true)
}

func (s *SelectBuilder) render(ordering, terminate bool) (string, []any, error) {
	if s.err != nil {
		return "", nil, s.err
	}

	if s.table == "" {
		return "", nil, errMissingTable
	}

	var (
		bd     strings.Builder
		groups [][]any
	)

	bd.WriteString("SELECT ")

	if s.distinct {
		bd.WriteString("DISTINCT ")
	}

	if len(s.columns) == 0 {
		bd.WriteString("*")
	} else {
		bd.WriteString(strings.Join(s.columns, ", "))
	}

	bd.WriteString(" FROM ")
	bd.WriteString(s.table)

	for _, j := range s.joins {
		sql, values, err := j.on.Build()
		if err != nil {
			return "", nil, err
		}

		bd.WriteString(" " + j.kind + " JOIN " + j.table + " ON " + sql)
		groups = append(groups, values)
	}

	if s.where != nil && !s.where.empty() {
		sql, values, err := s.where.Build()
		if err != nil {
			return "", nil, err
		}

		bd.WriteString(" WHERE " + sql)
		groups = append(groups, values)
	}

	if len(s.groupBy) > 0 {
		bd.WriteString(" GROUP BY " + strings.Join(s.groupBy, ", "))
	}

	if s.having != nil && !s.having.empty() {
		sql, values, err := s.having.Build()
		if err != nil {
			return "", nil, err
		}

		bd.WriteString(" HAVING " + sql)
		groups = append(groups, values)
	}

	if ordering {
		if len(s.orderBy) > 0 {
			bd.WriteString(" ORDER BY " + strings.Join(s.orderBy, ", "))
		}

		if s.limit >= 0 {
			bd.WriteString(" LIMIT " + strconv.Itoa(s.limit))
		}

		if s.offset >= 0 {
			bd.WriteString(" OFFSET " + strconv.Itoa(s.offset))
		}
	}

	for _, u := range s.unions {
		if u.all {
			bd.WriteString(" UNION ALL " + u.query)
		} else {
			bd.WriteString(" UNION " + u.query)
		}

		groups = append(groups, u.values)
	}

	if terminate {
		bd.WriteString(";")
	}

	// One explicit flattening step keeps the value order matching the
	// placeholder order by construction.
	values := make([]any, 0)
	for _, group := range groups {
		values = append(values, group...)
	}

	return bd.String(), values, nil
}

// Query builds and executes the statement, returning generic rows.
func (s *SelectBuilder) Query(ctx context.Context) ([]Row, error) {
	query, values, err := s.Build()
	if err != nil {
		return nil, err
	}

	return s.runQuery(ctx, query, values)
}

// First executes the statement and returns the first row, or nil when the
// result is empty.
func (s *SelectBuilder) First(ctx context.Context) (Row, error) {
	rows, err := s.Query(ctx)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rows[0], nil
}

// Last executes the statement and returns the last row, or nil when the
// result is empty.
func (s *SelectBuilder) Last(ctx context.Context) (Row, error) {
	rows, err := s.Query(ctx)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rows[len(rows)-1], nil
}

// CountOptions configures Count and Paginate.
type CountOptions struct {
	Column   string
	Distinct bool
}

// Count wraps the configured query, minus its ordering and pagination, as a
// subquery and returns the matching row count. The subquery reuses the same
// bound values.
func (s *SelectBuilder) Count(ctx context.Context, opts *CountOptions) (int64, error) {
	query, values, err := s.buildCount(opts)
	if err != nil {
		return 0, err
	}

	rows, err := s.runQuery(ctx, query, values)
	if err != nil {
		return 0, err
	}

	if len(rows) == 0 {
		return 0, nil
	}

	for _, value := range rows[0] {
		return resolveCount(value), nil
	}

	return 0, nil
}

func (s *SelectBuilder) buildCount(opts *CountOptions) (string, []any, error) {
	expr := "*"

	if opts != nil && opts.Column != "" {
		if !columnPattern.MatchString(opts.Column) {
			return "", nil, fmt.Errorf("%w: %q", errInvalidColumn, opts.Column)
		}

		expr = opts.Column
	}

	if opts != nil && opts.Distinct {
		expr = "DISTINCT " + expr
	}

	sub, values, err := s.render(false, false)
	if err != nil {
		return "", nil, err
	}

	return "SELECT COUNT(" + expr + ") FROM (" + sub + ") AS sub;", values, nil
}

// Page describes the cursor of one result page. Prev and Next are zero when
// there is no previous or next page.
type Page struct {
	Current int
	Prev    int
	Next    int
	Items   int
}

// Total describes the overall result set a pagination ran against.
type Total struct {
	Items int64
	Pages int
}

// Pagination bundles one page of rows with its page and total math.
type Pagination struct {
	Result []Row
	Page   Page
	Total  Total
}

// Paginate counts the configured query, then fetches the requested page by
// setting LIMIT/OFFSET. Non-positive page or itemsPerPage silently clamp to
// 1 and 10 respectively.
func (s *SelectBuilder) Paginate(ctx context.Context, page, itemsPerPage int, opts *CountOptions) (*Pagination, error) {
	if page < 1 {
		page = 1
	}

	if itemsPerPage < 1 {
		itemsPerPage = 10
	}

	total, err := s.Count(ctx, opts)
	if err != nil {
		return nil, err
	}

	pages := int((total + int64(itemsPerPage) - 1) / int64(itemsPerPage))

	s.Limit(itemsPerPage).Offset((page - 1) * itemsPerPage)

	rows, err := s.Query(ctx)
	if err != nil {
		return nil, err
	}

	prev := 0
	if page > 1 {
		prev = page - 1
	}

	next := 0
	if page < pages {
		next = page + 1
	}

	return &Pagination{
		Result: rows,
		Page:   Page{Current: page, Prev: prev, Next: next, Items: itemsPerPage},
		Total:  Total{Items: total, Pages: pages},
	}, nil
}

// LogQuery logs the rendered SQL without executing it.
func (s *SelectBuilder) LogQuery() *SelectBuilder {
	query, _, err := s.Build()
	s.logQuery(query, err)

	return s
}

// LogValues logs the bound values without executing.
func (s *SelectBuilder) LogValues() *SelectBuilder {
	_, values, err := s.Build()
	s.logValues(values, err)

	return s
}

// Reset returns the builder to its empty state for reuse on the same
// connection.
func (s *SelectBuilder) Reset() *SelectBuilder {
	s.table = ""
	s.columns = nil
	s.distinct = false
	s.joins = nil
	s.where = nil
	s.groupBy = nil
	s.having = nil
	s.orderBy = nil
	s.limit = -1
	s.offset = -1
	s.unions = nil
	s.err = nil

	return s
}
