package qb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies a SQL back-end family that qb can generate queries for.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

var (
	errUnsupportedDialect = errors.New("[builder] unsupported dialect")
	errNilConnection      = errors.New("[builder] connection is nil")
)

// normalizeDialect maps a dialect tag (including driver aliases) onto one of
// the three supported dialects. An unrecognized tag is a hard error, never a
// silent fallback.
func normalizeDialect(dialect string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case string(DialectMySQL), "mariadb":
		return DialectMySQL, nil
	case string(DialectPostgres), "postgresql", "supabase", "cockroachdb":
		return DialectPostgres, nil
	case string(DialectSQLite), "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedDialect, dialect)
	}
}

// rebind rewrites `?` placeholders into the `$N` format for PostgreSQL.
// Builders always render `?`; rebinding happens once, immediately before the
// query is handed to the connection.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}

	var (
		counter = 1
		out     strings.Builder
	)

	out.Grow(len(query) + 8)

	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			out.WriteByte(query[i])
			continue
		}

		out.WriteByte('$')
		out.WriteString(strconv.Itoa(counter))
		counter++
	}

	return out.String()
}

// randomFunc returns the dialect's random-ordering function call.
func randomFunc(dialect Dialect) (string, error) {
	switch dialect {
	case DialectMySQL:
		return "RAND()", nil
	case DialectPostgres, DialectSQLite:
		return "RANDOM()", nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedDialect, dialect)
	}
}

// datePart is a date/time component extracted from a column before comparison.
type datePart string

const (
	partDate   datePart = "date"
	partTime   datePart = "time"
	partYear   datePart = "year"
	partMonth  datePart = "month"
	partDay    datePart = "day"
	partHour   datePart = "hour"
	partMinute datePart = "minute"
	partSecond datePart = "second"
)

// datePartExpr wraps column in the dialect's extraction expression for part.
func datePartExpr(dialect Dialect, part datePart, column string) (string, error) {
	switch dialect {
	case DialectMySQL:
		return mysqlDatePartExpr(part, column), nil
	case DialectPostgres:
		return postgresDatePartExpr(part, column), nil
	case DialectSQLite:
		return sqliteDatePartExpr(part, column), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedDialect, dialect)
	}
}

func mysqlDatePartExpr(part datePart, column string) string {
	switch part {
	case partDate:
		return "DATE(" + column + ")"
	case partTime:
		return "TIME(" + column + ")"
	case partYear:
		return "YEAR(" + column + ")"
	case partMonth:
		return "MONTH(" + column + ")"
	case partDay:
		return "DAY(" + column + ")"
	case partHour:
		return "HOUR(" + column + ")"
	case partMinute:
		return "MINUTE(" + column + ")"
	case partSecond:
		return "SECOND(" + column + ")"
	}

	return ""
}

func postgresDatePartExpr(part datePart, column string) string {
	switch part {
	case partDate:
		return "DATE(" + column + ")"
	case partTime:
		return "TO_CHAR(" + column + ",'HH24:MI:SS')"
	default:
		return "EXTRACT(" + strings.ToUpper(string(part)) + " FROM " + column + ")"
	}
}

func sqliteDatePartExpr(part datePart, column string) string {
	formats := map[datePart]string{
		partTime:   "%H:%M:%S",
		partYear:   "%Y",
		partMonth:  "%m",
		partDay:    "%d",
		partHour:   "%H",
		partMinute: "%M",
		partSecond: "%S",
	}

	if part == partDate {
		return "DATE(" + column + ")"
	}

	return "STRFTIME('" + formats[part] + "'," + column + ")"
}
