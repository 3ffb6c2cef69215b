package migration

import (
	"context"
	"fmt"
	"time"
)

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS sqlkit_migrations (
    version BIGINT not null ,
    method VARCHAR(4) not null ,
    start_time TIMESTAMP not null ,
    duration BIGINT,
    constraint primary_key primary key (version, method)
);`

	getLastMigrationQuery = `SELECT COALESCE(MAX(version), 0) FROM sqlkit_migrations;`

	insertMigrationRowMySQL = `INSERT INTO sqlkit_migrations (version, method, start_time, duration) VALUES (?, ?, ?, ?);`

	insertMigrationRowPostgres = `INSERT INTO sqlkit_migrations (version, method, start_time, duration) VALUES ($1, $2, $3, $4);`
)

func ensureMigrationTable(d Datasource) error {
	if _, err := d.SQL.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("creating migration table: %w", err)
	}

	return nil
}

func lastMigration(d Datasource) (int64, error) {
	var version int64

	err := d.SQL.QueryRowContext(context.Background(), getLastMigrationQuery).Scan(&version)
	if err != nil {
		return -1, fmt.Errorf("fetching last migration: %w", err)
	}

	if d.Logger != nil {
		d.Debugf("last applied migration is %v", version)
	}

	return version, nil
}

func insertMigrationRecord(s SQL, version int64, startTime time.Time) error {
	query := insertMigrationRowMySQL
	if s.Dialect() == "postgres" {
		query = insertMigrationRowPostgres
	}

	_, err := s.Exec(query, version, "UP", startTime, time.Since(startTime).Milliseconds())

	return err
}
