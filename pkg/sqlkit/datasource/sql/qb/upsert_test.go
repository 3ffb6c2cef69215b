package qb

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsert_PostgresUpdate(t *testing.T) {
	sql, values, err := NewUpsert(stubConn{dialect: "postgres"}).
		Into("users").
		Row(map[string]any{"id": 1, "name": "alice"}).
		Conflict("id").
		Set("name").
		Build()

	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO users (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name;",
		sql)
	assert.Equal(t, []any{1, "alice"}, values)
}

func TestUpsert_SQLiteUpdate(t *testing.T) {
	sql, values, err := NewUpsert(stubConn{dialect: "sqlite"}).
		Into("users").
		Row(map[string]any{"id": 1, "name": "alice"}).
		Conflict("id").
		Set("name").
		Build()

	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO users (id, name) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET name = excluded.name;",
		sql)
	assert.Equal(t, []any{1, "alice"}, values)
}

func TestUpsert_MySQLUpdate(t *testing.T) {
	sql, values, err := NewUpsert(stubConn{dialect: "mysql"}).
		Into("users").
		Row(map[string]any{"id": 1, "name": "alice"}).
		Conflict("id").
		Set("name").
		Build()

	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO users (id, name) VALUES (?, ?) ON DUPLICATE KEY UPDATE name = VALUES(name);",
		sql)
	assert.Equal(t, []any{1, "alice"}, values)
}

func TestUpsert_PostgresDoNothing(t *testing.T) {
	sql, values, err := NewUpsert(stubConn{dialect: "postgres"}).
		Into("users").
		Row(map[string]any{"id": 1, "name": "alice"}).
		Conflict("id").
		Build()

	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO users (id, name) VALUES (?, ?) ON CONFLICT (id) DO NOTHING;",
		sql)
	assert.Equal(t, []any{1, "alice"}, values)
}

func TestUpsert_MySQLInsertIgnore(t *testing.T) {
	sql, values, err := NewUpsert(stubConn{dialect: "mysql"}).
		Into("users").
		Row(map[string]any{"id": 1, "name": "alice"}).
		Conflict("id").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "INSERT IGNORE INTO users (id, name) VALUES (?, ?);", sql)
	assert.Equal(t, []any{1, "alice"}, values)
}

func TestUpsert_ColumnsSortedOnce(t *testing.T) {
	// Map iteration order must not leak into the rendered column list.
	sql, values, err := NewUpsert(stubConn{dialect: "sqlite"}).
		Into("users").
		Row(map[string]any{"name": "alice", "email": "a@x.io", "id": 1}).
		Conflict("id").
		Build()

	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO users (email, id, name) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING;",
		sql)
	assert.Equal(t, []any{"a@x.io", 1, "alice"}, values)
}

func TestUpsert_MultipleRows(t *testing.T) {
	sql, values, err := NewUpsert(stubConn{dialect: "postgres"}).
		Into("users").
		Rows([]map[string]any{
			{"id": 1, "name": "alice"},
			{"name": "bob", "id": 2},
		}).
		Conflict("id").
		Set("name").
		Build()

	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO users (id, name) VALUES (?, ?), (?, ?)"+
			" ON CONFLICT (id) DO UPDATE SET name = excluded.name;",
		sql)
	assert.Equal(t, []any{1, "alice", 2, "bob"}, values)
}

func TestUpsert_NullValuesAreInlined(t *testing.T) {
	sql, values, err := NewUpsert(stubConn{dialect: "sqlite"}).
		Into("users").
		Row(map[string]any{"id": 1, "name": nil}).
		Conflict("id").
		Build()

	require.NoError(t, err)
	assert.Equal(t,
		"INSERT INTO users (id, name) VALUES (?, NULL) ON CONFLICT (id) DO NOTHING;",
		sql)
	assert.Equal(t, []any{1}, values)
}

func TestUpsert_ReturningPostgresOnly(t *testing.T) {
	build := func(dialect string) string {
		sql, _, err := NewUpsert(stubConn{dialect: dialect}).
			Into("users").
			Row(map[string]any{"id": 1, "name": "alice"}).
			Conflict("id").
			Set("name").
			Returning("id", "name").
			Build()
		require.NoError(t, err)

		return sql
	}

	assert.Equal(t,
		"INSERT INTO users (id, name) VALUES (?, ?)"+
			" ON CONFLICT (id) DO UPDATE SET name = excluded.name RETURNING id, name;",
		build("postgres"))
	assert.NotContains(t, build("sqlite"), "RETURNING")
	assert.NotContains(t, build("mysql"), "RETURNING")
}

func TestUpsert_StructuralErrors(t *testing.T) {
	tests := []struct {
		name     string
		build    func(u *UpsertBuilder) *UpsertBuilder
		expected error
	}{
		{
			name:     "invalid table",
			build:    func(u *UpsertBuilder) *UpsertBuilder { return u.Into("users; drop") },
			expected: errInvalidColumn,
		},
		{
			name:     "empty row",
			build:    func(u *UpsertBuilder) *UpsertBuilder { return u.Into("users").Row(map[string]any{}) },
			expected: errEmptyRow,
		},
		{
			name: "row shape mismatch",
			build: func(u *UpsertBuilder) *UpsertBuilder {
				return u.Into("users").
					Row(map[string]any{"id": 1, "name": "alice"}).
					Row(map[string]any{"id": 2})
			},
			expected: errRowShape,
		},
		{
			name: "row columns renamed",
			build: func(u *UpsertBuilder) *UpsertBuilder {
				return u.Into("users").
					Row(map[string]any{"id": 1, "name": "alice"}).
					Row(map[string]any{"id": 2, "email": "b@x.io"})
			},
			expected: errRowShape,
		},
		{
			name: "bulk rows below minimum",
			build: func(u *UpsertBuilder) *UpsertBuilder {
				return u.Into("users").Rows([]map[string]any{{"id": 1}})
			},
			expected: errTooFewRows,
		},
		{
			name:     "empty conflict target",
			build:    func(u *UpsertBuilder) *UpsertBuilder { return u.Into("users").Conflict() },
			expected: errMissingConflict,
		},
		{
			name: "invalid conflict column",
			build: func(u *UpsertBuilder) *UpsertBuilder {
				return u.Into("users").Conflict("id; drop")
			},
			expected: errInvalidColumn,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u := tc.build(NewUpsert(stubConn{dialect: "mysql"}))

			require.Error(t, u.Err())
			assert.ErrorIs(t, u.Err(), tc.expected)

			_, _, err := u.Build()
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func TestUpsert_BuildTimeErrors(t *testing.T) {
	_, _, err := NewUpsert(stubConn{dialect: "mysql"}).
		Row(map[string]any{"id": 1}).
		Conflict("id").
		Build()
	assert.ErrorIs(t, err, errMissingTable)

	_, _, err = NewUpsert(stubConn{dialect: "mysql"}).
		Into("users").
		Conflict("id").
		Build()
	assert.ErrorIs(t, err, errNoRows)

	_, _, err = NewUpsert(stubConn{dialect: "mysql"}).
		Into("users").
		Row(map[string]any{"id": 1}).
		Build()
	assert.ErrorIs(t, err, errMissingConflict)

	_, _, err = NewUpsert(stubConn{dialect: "mysql"}).
		Into("users").
		Row(map[string]any{"id": 1}).
		Conflict("id").
		Set("name").
		Build()
	assert.ErrorIs(t, err, errUnknownSetCol)
}

func TestUpsert_Exec(t *testing.T) {
	conn, mock := newMockConn(t, "mysql")

	id := uuid.NewString()

	mock.ExpectExec("INSERT IGNORE INTO users (id, name) VALUES (?, ?);").
		WithArgs(id, "alice").
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := NewUpsert(conn).
		Into("users").
		Row(map[string]any{"id": id, "name": "alice"}).
		Conflict("id").
		Exec(context.Background())

	require.NoError(t, err)

	affected, err := result.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_QueryReturning(t *testing.T) {
	conn, mock := newMockConn(t, "postgres")

	mock.ExpectQuery(
		"INSERT INTO users (id, name) VALUES ($1, $2)"+
			" ON CONFLICT (id) DO UPDATE SET name = excluded.name RETURNING id;").
		WithArgs(1, "alice").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	rows, err := NewUpsert(conn).
		Into("users").
		Row(map[string]any{"id": 1, "name": "alice"}).
		Conflict("id").
		Set("name").
		Returning("id").
		Query(context.Background())

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_Reset(t *testing.T) {
	u := NewUpsert(stubConn{dialect: "mysql"}).
		Into("users").
		Row(map[string]any{"id": 1}).
		Conflict("id")

	_, _, err := u.Build()
	require.NoError(t, err)

	sql, values, err := u.Reset().
		Into("accounts").
		Row(map[string]any{"id": 2}).
		Conflict("id").
		Build()

	require.NoError(t, err)
	assert.Equal(t, "INSERT IGNORE INTO accounts (id) VALUES (?);", sql)
	assert.Equal(t, []any{2}, values)
}
