// Package store is the database/sql storage driver of the mapper.
//
// A Store writes rows compiled by querysql and implements command.Driver, so
// a unit of work can run against it directly. Two backends are supported:
//
//   - SQLite through github.com/mattn/go-sqlite3 (Open)
//   - Postgres through the pgx database/sql driver (OpenPostgres)
//
// # Transactions
//
// The first Begin opens a database transaction; nested Begin calls create
// savepoints (sp_1, sp_2, ...). Commit and Rollback act on the innermost
// level. TransactionLevel reports the depth, which lets a unit of work join
// a transaction opened by its caller.
//
// # SQLite configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// A Store is single-writer: it holds one connection and is not safe for
// concurrent use while a transaction is open.
package store
