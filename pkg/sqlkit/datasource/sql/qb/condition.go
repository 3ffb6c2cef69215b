package qb

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	errInvalidColumn     = errors.New("[builder] invalid column name")
	errNoColumn          = errors.New("[builder] no column selected before operator")
	errEmptyInValues     = errors.New("[builder] IN requires at least one value")
	errLeadingConnective = errors.New("[builder] condition cannot begin with a connective")
	errUnopenedParen     = errors.New("[builder] no open parenthesis to close")
	errDatePartRange     = errors.New("[builder] date part out of range")
	errNilOperand        = errors.New("[builder] nil operand is only valid with Equal or IsNull")
)

// Column names are snake_case identifiers, optionally dotted as table.column.
var columnPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Ref marks an identifier that must be inlined literally as a comparison
// operand rather than bound as a parameter, e.g. comparing one column to
// another: cond.Col("orders.user_id").Equal(qb.Ref("users.id")).
type Ref string

type tokenKind uint8

const (
	tokenLiteral tokenKind = iota
	tokenPlaceholder
	tokenRef
)

// condToken is one unit of the flattened condition stack: a literal SQL
// fragment, a placeholder contributing a bound value, or an inlined reference.
type condToken struct {
	kind tokenKind
	text string
}

// Cond accumulates a boolean expression as a token stack plus the parallel
// bound-value list. Mutators return the receiver for chaining; the first
// structural violation is recorded at the offending call and surfaces from
// Err, Build and any execution path. Later calls after an error are no-ops.
type Cond struct {
	dialect Dialect
	tokens  []condToken
	values  []any
	column  string
	negate  bool
	depth   int
	err     error
}

// NewCond creates a condition builder for the given dialect.
func NewCond(dialect Dialect) *Cond {
	c := &Cond{}

	d, err := normalizeDialect(string(dialect))
	if err != nil {
		c.err = err
		return c
	}

	c.dialect = d

	return c
}

func (c *Cond) fail(err error) *Cond {
	if c.err == nil {
		c.err = err
	}

	return c
}

// Err returns the first structural violation recorded on the builder.
func (c *Cond) Err() error {
	return c.err
}

// Reset clears the condition for reuse on the same dialect.
func (c *Cond) Reset() *Cond {
	c.tokens = nil
	c.values = nil
	c.column = ""
	c.negate = false
	c.depth = 0
	c.err = nil

	return c
}

// Col selects the active column for subsequent comparisons. The column stays
// active until replaced by another Col call.
func (c *Cond) Col(name string) *Cond {
	if c.err != nil {
		return c
	}

	if !columnPattern.MatchString(name) {
		return c.fail(fmt.Errorf("%w: %q", errInvalidColumn, name))
	}

	c.column = name

	return c
}

// Not negates exactly the next comparison. It is a one-shot modifier.
func (c *Cond) Not() *Cond {
	if c.err != nil {
		return c
	}

	c.negate = true

	return c
}

func (c *Cond) takeColumn() (string, bool) {
	if c.column == "" {
		c.fail(errNoColumn)
		return "", false
	}

	return c.column, true
}

// applyNot consumes a pending Not by prefixing the fragment being emitted.
func (c *Cond) applyNot() {
	if c.negate {
		c.pushLiteral("NOT")
		c.negate = false
	}
}

func (c *Cond) pushLiteral(texts ...string) {
	for _, text := range texts {
		c.tokens = append(c.tokens, condToken{kind: tokenLiteral, text: text})
	}
}

func (c *Cond) pushValue(value any) {
	c.tokens = append(c.tokens, condToken{kind: tokenPlaceholder})
	c.values = append(c.values, value)
}

// pushOperand appends a comparison operand: a Ref is inlined with no bound
// value, anything else becomes a placeholder plus one bound value.
func (c *Cond) pushOperand(operand any) bool {
	if ref, ok := operand.(Ref); ok {
		if !columnPattern.MatchString(string(ref)) {
			c.fail(fmt.Errorf("%w: %q", errInvalidColumn, string(ref)))
			return false
		}

		c.tokens = append(c.tokens, condToken{kind: tokenRef, text: string(ref)})

		return true
	}

	c.pushValue(operand)

	return true
}

// operandText renders an operand for use inside a composite fragment such as
// an IN list, pushing the bound value when the operand is not a Ref.
func (c *Cond) operandText(operand any) (string, bool) {
	if ref, ok := operand.(Ref); ok {
		if !columnPattern.MatchString(string(ref)) {
			c.fail(fmt.Errorf("%w: %q", errInvalidColumn, string(ref)))
			return "", false
		}

		return string(ref), true
	}

	c.values = append(c.values, operand)

	return "?", true
}

func (c *Cond) compare(op string, operand any) *Cond {
	if c.err != nil {
		return c
	}

	column, ok := c.takeColumn()
	if !ok {
		return c
	}

	c.applyNot()

	// Only equality degrades to a NULL test; NULL is not ordered, so a nil
	// operand on any other operator is a mistake at the call site.
	if operand == nil {
		if op != "=" {
			return c.fail(fmt.Errorf("%w: %s", errNilOperand, op))
		}

		c.pushLiteral(column, "IS NULL")

		return c
	}

	c.pushLiteral(column, op)
	c.pushOperand(operand)

	return c
}

// Equal compares the active column with value. Equal(nil) renders IS NULL and
// binds nothing.
func (c *Cond) Equal(value any) *Cond {
	return c.compare("=", value)
}

func (c *Cond) LessThan(value any) *Cond {
	return c.compare("<", value)
}

func (c *Cond) LessThanOrEqual(value any) *Cond {
	return c.compare("<=", value)
}

func (c *Cond) GreaterThan(value any) *Cond {
	return c.compare(">", value)
}

func (c *Cond) GreaterThanOrEqual(value any) *Cond {
	return c.compare(">=", value)
}

func (c *Cond) Like(value any) *Cond {
	return c.compare("LIKE", value)
}

// IsNull renders `<column> IS NULL` without binding a value.
func (c *Cond) IsNull() *Cond {
	if c.err != nil {
		return c
	}

	column, ok := c.takeColumn()
	if !ok {
		return c
	}

	c.applyNot()
	c.pushLiteral(column, "IS NULL")

	return c
}

func (c *Cond) IsTrue() *Cond {
	return c.isBool("IS TRUE")
}

func (c *Cond) IsFalse() *Cond {
	return c.isBool("IS FALSE")
}

func (c *Cond) isBool(op string) *Cond {
	if c.err != nil {
		return c
	}

	column, ok := c.takeColumn()
	if !ok {
		return c
	}

	c.applyNot()
	c.pushLiteral(column, op)

	return c
}

// Between renders `<column> BETWEEN ? AND ?`. Ref operands are inlined.
func (c *Cond) Between(low, high any) *Cond {
	if c.err != nil {
		return c
	}

	column, ok := c.takeColumn()
	if !ok {
		return c
	}

	c.applyNot()
	c.pushLiteral(column, "BETWEEN")

	if !c.pushOperand(low) {
		return c
	}

	c.pushLiteral("AND")
	c.pushOperand(high)

	return c
}

// In renders `<column> IN (?, ...)`. The value list must not be empty; Ref
// elements are inlined with no corresponding bound value.
func (c *Cond) In(values ...any) *Cond {
	if c.err != nil {
		return c
	}

	if len(values) == 0 {
		return c.fail(errEmptyInValues)
	}

	column, ok := c.takeColumn()
	if !ok {
		return c
	}

	c.applyNot()

	parts := make([]string, 0, len(values))

	for _, value := range values {
		text, ok := c.operandText(value)
		if !ok {
			return c
		}

		parts = append(parts, text)
	}

	c.pushLiteral(column, "IN", "("+strings.Join(parts, ", ")+")")

	return c
}

// InDate compares the date part of the active column, e.g. DATE(col) = ?.
func (c *Cond) InDate(value any) *Cond {
	return c.datePartCompare(partDate, value)
}

// InTime compares the time-of-day part of the active column.
func (c *Cond) InTime(value any) *Cond {
	return c.datePartCompare(partTime, value)
}

func (c *Cond) InYear(year int) *Cond {
	if c.err == nil && year <= 0 {
		return c.fail(fmt.Errorf("%w: year %d", errDatePartRange, year))
	}

	return c.datePartCompare(partYear, year)
}

func (c *Cond) InMonth(month int) *Cond {
	if c.err == nil && (month < 1 || month > 12) {
		return c.fail(fmt.Errorf("%w: month %d", errDatePartRange, month))
	}

	return c.datePartCompare(partMonth, month)
}

func (c *Cond) InDay(day int) *Cond {
	if c.err == nil && (day < 1 || day > 31) {
		return c.fail(fmt.Errorf("%w: day %d", errDatePartRange, day))
	}

	return c.datePartCompare(partDay, day)
}

func (c *Cond) InHour(hour int) *Cond {
	if c.err == nil && (hour < 0 || hour > 23) {
		return c.fail(fmt.Errorf("%w: hour %d", errDatePartRange, hour))
	}

	return c.datePartCompare(partHour, hour)
}

func (c *Cond) InMinute(minute int) *Cond {
	if c.err == nil && (minute < 0 || minute > 59) {
		return c.fail(fmt.Errorf("%w: minute %d", errDatePartRange, minute))
	}

	return c.datePartCompare(partMinute, minute)
}

func (c *Cond) InSecond(second int) *Cond {
	if c.err == nil && (second < 0 || second > 59) {
		return c.fail(fmt.Errorf("%w: second %d", errDatePartRange, second))
	}

	return c.datePartCompare(partSecond, second)
}

func (c *Cond) datePartCompare(part datePart, value any) *Cond {
	if c.err != nil {
		return c
	}

	column, ok := c.takeColumn()
	if !ok {
		return c
	}

	expr, err := datePartExpr(c.dialect, part, column)
	if err != nil {
		return c.fail(err)
	}

	c.applyNot()
	c.pushLiteral(expr, "=")
	c.pushOperand(value)

	return c
}

// And appends the AND connective. A condition cannot begin with a connective.
func (c *Cond) And() *Cond {
	return c.connective("AND")
}

// Or appends the OR connective. A condition cannot begin with a connective.
func (c *Cond) Or() *Cond {
	return c.connective("OR")
}

func (c *Cond) connective(word string) *Cond {
	if c.err != nil {
		return c
	}

	if len(c.tokens) == 0 {
		return c.fail(fmt.Errorf("%w: %s", errLeadingConnective, word))
	}

	c.pushLiteral(word)

	return c
}

// Open inserts an opening parenthesis.
func (c *Cond) Open() *Cond {
	if c.err != nil {
		return c
	}

	c.pushLiteral("(")
	c.depth++

	return c
}

// Close inserts a closing parenthesis. It errors when none is open.
func (c *Cond) Close() *Cond {
	if c.err != nil {
		return c
	}

	if c.depth == 0 {
		return c.fail(errUnopenedParen)
	}

	c.pushLiteral(")")
	c.depth--

	return c
}

// Paren toggles: it opens a parenthesis when none is open, else closes one.
func (c *Cond) Paren() *Cond {
	if c.err != nil {
		return c
	}

	if c.depth == 0 {
		return c.Open()
	}

	return c.Close()
}

// Raw appends a literal SQL fragment plus its bound values, for expressions
// the fluent surface cannot express.
func (c *Cond) Raw(sql string, values ...any) *Cond {
	if c.err != nil {
		return c
	}

	c.pushLiteral(sql)
	c.values = append(c.values, values...)

	return c
}

// Build joins the token stack with single spaces and returns the fragment and
// its bound values. It is a pure function of the current state.
func (c *Cond) Build() (string, []any, error) {
	if c.err != nil {
		return "", nil, c.err
	}

	parts := make([]string, 0, len(c.tokens))

	for _, token := range c.tokens {
		switch token.kind {
		case tokenPlaceholder:
			parts = append(parts, "?")
		case tokenLiteral, tokenRef:
			parts = append(parts, token.text)
		}
	}

	values := make([]any, len(c.values))
	copy(values, c.values)

	return strings.Join(parts, " "), values, nil
}

// empty reports whether nothing has been accumulated yet.
func (c *Cond) empty() bool {
	return len(c.tokens) == 0
}
