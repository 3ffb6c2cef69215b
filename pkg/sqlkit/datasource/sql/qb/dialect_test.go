package qb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDialect_Aliases(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Dialect
	}{
		{name: "mysql", input: "mysql", expected: DialectMySQL},
		{name: "mariadb alias", input: "mariadb", expected: DialectMySQL},
		{name: "postgres", input: "postgres", expected: DialectPostgres},
		{name: "postgresql alias", input: "postgresql", expected: DialectPostgres},
		{name: "supabase alias", input: "supabase", expected: DialectPostgres},
		{name: "cockroach alias", input: "cockroachdb", expected: DialectPostgres},
		{name: "sqlite", input: "sqlite", expected: DialectSQLite},
		{name: "sqlite3 alias", input: "sqlite3", expected: DialectSQLite},
		{name: "mixed case with spaces", input: "  MySQL ", expected: DialectMySQL},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d, err := normalizeDialect(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, d)
		})
	}
}

func TestNormalizeDialect_Unknown(t *testing.T) {
	_, err := normalizeDialect("oracle")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnsupportedDialect)
	assert.Contains(t, err.Error(), `"oracle"`)
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM users WHERE age > ? AND name = ?;"

	assert.Equal(t, query, rebind(DialectMySQL, query))
	assert.Equal(t, query, rebind(DialectSQLite, query))
	assert.Equal(t,
		"SELECT * FROM users WHERE age > $1 AND name = $2;",
		rebind(DialectPostgres, query))
}

func TestRebind_NoPlaceholders(t *testing.T) {
	query := "SELECT 1;"
	assert.Equal(t, query, rebind(DialectPostgres, query))
}

func TestRandomFunc(t *testing.T) {
	fn, err := randomFunc(DialectMySQL)
	require.NoError(t, err)
	assert.Equal(t, "RAND()", fn)

	fn, err = randomFunc(DialectPostgres)
	require.NoError(t, err)
	assert.Equal(t, "RANDOM()", fn)

	fn, err = randomFunc(DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, "RANDOM()", fn)

	_, err = randomFunc(Dialect("oracle"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnsupportedDialect)
}

func TestDatePartExpr(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		part     datePart
		expected string
	}{
		{name: "mysql date", dialect: DialectMySQL, part: partDate, expected: "DATE(created_at)"},
		{name: "mysql time", dialect: DialectMySQL, part: partTime, expected: "TIME(created_at)"},
		{name: "mysql year", dialect: DialectMySQL, part: partYear, expected: "YEAR(created_at)"},
		{name: "mysql month", dialect: DialectMySQL, part: partMonth, expected: "MONTH(created_at)"},
		{name: "mysql day", dialect: DialectMySQL, part: partDay, expected: "DAY(created_at)"},
		{name: "mysql hour", dialect: DialectMySQL, part: partHour, expected: "HOUR(created_at)"},
		{name: "mysql minute", dialect: DialectMySQL, part: partMinute, expected: "MINUTE(created_at)"},
		{name: "mysql second", dialect: DialectMySQL, part: partSecond, expected: "SECOND(created_at)"},
		{name: "postgres date", dialect: DialectPostgres, part: partDate, expected: "DATE(created_at)"},
		{name: "postgres time", dialect: DialectPostgres, part: partTime, expected: "TO_CHAR(created_at,'HH24:MI:SS')"},
		{name: "postgres year", dialect: DialectPostgres, part: partYear, expected: "EXTRACT(YEAR FROM created_at)"},
		{name: "postgres month", dialect: DialectPostgres, part: partMonth, expected: "EXTRACT(MONTH FROM created_at)"},
		{name: "postgres second", dialect: DialectPostgres, part: partSecond, expected: "EXTRACT(SECOND FROM created_at)"},
		{name: "sqlite date", dialect: DialectSQLite, part: partDate, expected: "DATE(created_at)"},
		{name: "sqlite time", dialect: DialectSQLite, part: partTime, expected: "STRFTIME('%H:%M:%S',created_at)"},
		{name: "sqlite year", dialect: DialectSQLite, part: partYear, expected: "STRFTIME('%Y',created_at)"},
		{name: "sqlite month", dialect: DialectSQLite, part: partMonth, expected: "STRFTIME('%m',created_at)"},
		{name: "sqlite day", dialect: DialectSQLite, part: partDay, expected: "STRFTIME('%d',created_at)"},
		{name: "sqlite hour", dialect: DialectSQLite, part: partHour, expected: "STRFTIME('%H',created_at)"},
		{name: "sqlite minute", dialect: DialectSQLite, part: partMinute, expected: "STRFTIME('%M',created_at)"},
		{name: "sqlite second", dialect: DialectSQLite, part: partSecond, expected: "STRFTIME('%S',created_at)"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			expr, err := datePartExpr(tc.dialect, tc.part, "created_at")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, expr)
		})
	}
}

func TestDatePartExpr_UnsupportedDialect(t *testing.T) {
	_, err := datePartExpr(Dialect("oracle"), partYear, "created_at")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnsupportedDialect)
}
