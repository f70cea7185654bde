package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/orbit/internal/querysql"
)

// ErrNoTransaction is returned by Commit and Rollback without Begin.
var ErrNoTransaction = errors.New("no transaction in progress")

// Statement is one executed SQL statement, as passed to a StatementHook.
type Statement struct {
	Op    string // insert, update, delete, select
	Table string
	SQL   string
	Args  []any
}

// StatementHook observes every statement after it succeeded.
type StatementHook func(Statement)

// Option configures a Store.
type Option func(*Store)

// WithStatementHook registers hook to observe executed statements.
func WithStatementHook(hook StatementHook) Option {
	return func(s *Store) {
		s.hook = hook
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l == nil {
			l = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		s.logger = l
	}
}

// Store is a row storage driver over database/sql.
type Store struct {
	db       *sql.DB
	compiler *querysql.Compiler
	hook     StatementHook
	logger   *slog.Logger

	mu    sync.Mutex
	tx    *sql.Tx
	level int
}

var sqlOpen = sql.Open

// Open creates or opens a SQLite database at the given path and applies the
// required pragmas.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlOpen("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	return newStore(db, querysql.SQLite, opts), nil
}

// OpenPostgres connects to Postgres through the pgx driver.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	// Transactions and savepoints must stay on one connection
	db.SetMaxOpenConns(1)
	return newStore(db, querysql.Postgres, opts), nil
}

func newStore(db *sql.DB, dialect querysql.Dialect, opts []Option) *Store {
	s := &Store{
		db:       db,
		compiler: querysql.NewCompiler(dialect),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close rolls back an open transaction and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
		s.level = 0
	}
	s.mu.Unlock()
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the SQL dialect of the backend.
func (s *Store) Dialect() querysql.Dialect {
	return s.compiler.Dialect()
}

// Exec runs a raw statement, inside the open transaction if any.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execer().ExecContext(ctx, query, args...)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer returns the open transaction or the database. Callers hold mu.
func (s *Store) execer() execer {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) observe(op, table string, st querysql.Statement) {
	s.logger.Debug("sql statement", "op", op, "table", table, "sql", st.SQL, "args", len(st.Args))
	if s.hook != nil {
		s.hook(Statement{Op: op, Table: table, SQL: st.SQL, Args: st.Args})
	}
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
