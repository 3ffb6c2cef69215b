// Package qb provides portable SQL statement builders for the MySQL,
// PostgreSQL and SQLite dialect families.
//
// Builders render queries with `?` placeholders and a matching value list;
// PostgreSQL `$N` rebinding happens only when a statement executes. Use
// NewCond for standalone conditions, NewSelect for SELECT statements with
// joins, grouping, unions and pagination, and NewUpsert for conflict-resolving
// inserts. All builders bind to a Connection that exposes Dialect().
//
// Structural mistakes are recorded at the offending call: later calls become
// no-ops and the first error surfaces from Err, Build or any execution method.
package qb
