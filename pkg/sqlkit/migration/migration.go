// Package migration runs versioned schema migrations against the managed SQL
// connection, recording applied versions in a sqlkit_migrations table so every
// migration runs at most once.
package migration

import (
	"errors"
	"fmt"
	"sort"
	"time"

	sqlkitSql "github.com/bnjsx/sqlkit/pkg/sqlkit/datasource/sql"
)

// MigrateFunc applies one schema change through the given datasource.
type MigrateFunc func(d Datasource) error

// Migrate is one versioned migration. Only forward (UP) migrations are
// supported.
type Migrate struct {
	UP MigrateFunc
}

var (
	errNoDatasource   = errors.New("migration datasource has no SQL connection")
	errInvalidVersion = errors.New("migration version must be positive")
	errMissingUP      = errors.New("migration has no UP function")
)

// transactional is satisfied by the managed connection; an already-open
// transaction is not, and runs migrations without nesting.
type transactional interface {
	Begin() (*sqlkitSql.Tx, error)
}

// Run applies every migration with a version greater than the last recorded
// one, in ascending version order. Each migration runs inside its own
// transaction when the datasource supports one, and its version is recorded
// in the same transaction so a failed migration leaves no trace.
func Run(migrationsMap map[int64]Migrate, d Datasource) error {
	if d.SQL == nil {
		return errNoDatasource
	}

	versions := make([]int64, 0, len(migrationsMap))

	for version, m := range migrationsMap {
		if version <= 0 {
			return fmt.Errorf("%w: %d", errInvalidVersion, version)
		}

		if m.UP == nil {
			return fmt.Errorf("%w: version %d", errMissingUP, version)
		}

		versions = append(versions, version)
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	if err := ensureMigrationTable(d); err != nil {
		return err
	}

	last, err := lastMigration(d)
	if err != nil {
		return err
	}

	for _, version := range versions {
		if version <= last {
			if d.Logger != nil {
				d.Debugf("skipping migration %v, already applied", version)
			}

			continue
		}

		if err := runMigration(d, version, migrationsMap[version]); err != nil {
			return err
		}

		if d.Logger != nil {
			d.Infof("migration %v ran successfully", version)
		}
	}

	return nil
}

func runMigration(d Datasource, version int64, m Migrate) error {
	start := time.Now()

	conn, ok := d.SQL.(transactional)
	if !ok {
		if err := m.UP(d); err != nil {
			return fmt.Errorf("migration %v failed: %w", version, err)
		}

		return insertMigrationRecord(d.SQL, version, start)
	}

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("migration %v failed to begin transaction: %w", version, err)
	}

	scoped := Datasource{Logger: d.Logger, SQL: tx}

	if err := m.UP(scoped); err != nil {
		rollback(d, tx, version)
		return fmt.Errorf("migration %v failed: %w", version, err)
	}

	if err := insertMigrationRecord(tx, version, start); err != nil {
		rollback(d, tx, version)
		return fmt.Errorf("migration %v failed to record: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %v failed to commit: %w", version, err)
	}

	return nil
}

func rollback(d Datasource, tx *sqlkitSql.Tx, version int64) {
	if err := tx.Rollback(); err != nil && d.Logger != nil {
		d.Errorf("unable to roll back migration %v: %v", version, err)
	}
}
