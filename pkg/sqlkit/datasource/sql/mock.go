package sql

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// NewSQLMocks wraps a sqlmock connection in a DB tagged with the given
// dialect, for use in tests of code that consumes the wrapper.
func NewSQLMocks(t *testing.T, dialect string) (*DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("creating sqlmock: %v", err)
	}

	t.Cleanup(func() {
		_ = mockDB.Close()
	})

	db := &DB{
		DB: mockDB,
		config: &DBConfig{
			Dialect:  dialect,
			HostName: "localhost",
			Database: "test",
		},
	}

	return db, mock
}
