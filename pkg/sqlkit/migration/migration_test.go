package migration

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sqlkitSql "github.com/bnjsx/sqlkit/pkg/sqlkit/datasource/sql"
)

func expectSetup(mock sqlmock.Sqlmock, lastVersion int64) {
	mock.ExpectExec(createMigrationsTable).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(getLastMigrationQuery).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(lastVersion))
}

func TestRun_AppliesPendingMigrationsInOrder(t *testing.T) {
	db, mock := sqlkitSql.NewSQLMocks(t, "mysql")

	expectSetup(mock, 0)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users (id INT);").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertMigrationRowMySQL).
		WithArgs(int64(1), "UP", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE orders (id INT);").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertMigrationRowMySQL).
		WithArgs(int64(2), "UP", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var applied []int64

	migrations := map[int64]Migrate{
		2: {UP: func(d Datasource) error {
			applied = append(applied, 2)
			_, err := d.SQL.Exec("CREATE TABLE orders (id INT);")

			return err
		}},
		1: {UP: func(d Datasource) error {
			applied = append(applied, 1)
			_, err := d.SQL.Exec("CREATE TABLE users (id INT);")

			return err
		}},
	}

	err := Run(migrations, Datasource{SQL: db})

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_SkipsAppliedMigrations(t *testing.T) {
	db, mock := sqlkitSql.NewSQLMocks(t, "mysql")

	expectSetup(mock, 5)

	ran := false

	err := Run(map[int64]Migrate{
		3: {UP: func(Datasource) error {
			ran = true
			return nil
		}},
	}, Datasource{SQL: db})

	require.NoError(t, err)
	assert.False(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_PostgresUsesDollarPlaceholders(t *testing.T) {
	db, mock := sqlkitSql.NewSQLMocks(t, "postgres")

	expectSetup(mock, 0)

	mock.ExpectBegin()
	mock.ExpectExec(insertMigrationRowPostgres).
		WithArgs(int64(1), "UP", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := Run(map[int64]Migrate{
		1: {UP: func(Datasource) error { return nil }},
	}, Datasource{SQL: db})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RollsBackFailedMigration(t *testing.T) {
	db, mock := sqlkitSql.NewSQLMocks(t, "mysql")

	expectSetup(mock, 0)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("columns went missing")

	err := Run(map[int64]Migrate{
		1: {UP: func(Datasource) error { return boom }},
	}, Datasource{SQL: db})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ValidatesMigrations(t *testing.T) {
	db, _ := sqlkitSql.NewSQLMocks(t, "mysql")

	err := Run(map[int64]Migrate{
		-1: {UP: func(Datasource) error { return nil }},
	}, Datasource{SQL: db})
	assert.ErrorIs(t, err, errInvalidVersion)

	err = Run(map[int64]Migrate{
		1: {},
	}, Datasource{SQL: db})
	assert.ErrorIs(t, err, errMissingUP)

	err = Run(map[int64]Migrate{}, Datasource{})
	assert.ErrorIs(t, err, errNoDatasource)
}
