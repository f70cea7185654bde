package command

import (
	"context"

	"github.com/roach88/orbit/internal/heap"
)

// Command is a node of the command tree.
//
// Every Command is a heap.Consumer: values forwarded to it arrive through
// Register.
type Command interface {
	// IsReady reports whether every required value is known.
	IsReady() bool
	// IsExecuted reports whether the command has nothing left to do.
	IsExecuted() bool
	// WaitContext declares a dependency on key.
	WaitContext(key string, required bool, stream heap.Stream)
	// Register supplies a value for key.
	Register(key string, value any, fresh bool, stream heap.Stream)
}

// Executable is a command the runner can execute directly.
type Executable interface {
	Command
	// Database names the connection the command writes to.
	Database() string
	// Execute performs the write.
	Execute(ctx context.Context, drv Driver) error
	// Complete runs after the surrounding transaction committed.
	Complete()
	// Rollback undoes the in-memory effects of Execute so the command can
	// run again.
	Rollback()
}

// OptionalContext is implemented by commands that may prefer to wait for
// values they do not strictly need.
type OptionalContext interface {
	HasOptionalContext() bool
}

// StoreCommand is an executable write whose columns can be extended.
type StoreCommand interface {
	Executable
	// Table returns the target table.
	Table() string
	// Columns returns the values that will be written.
	Columns() map[string]any
	// MergeColumns adds columns to the write.
	MergeColumns(columns map[string]any)
	// Satisfy marks the command executed without running it.
	Satisfy()
}

// Driver executes single parameterized writes and exposes transaction
// demarcation for the runner.
type Driver interface {
	// Insert writes a row. When pk names a column without a value, the
	// generated key is returned.
	Insert(ctx context.Context, table string, values map[string]any, pk string) (any, error)
	Update(ctx context.Context, table string, values, scope map[string]any) (int64, error)
	Delete(ctx context.Context, table string, scope map[string]any) (int64, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// TransactionLevel returns the current nesting depth, 0 outside any
	// transaction.
	TransactionLevel() int
}

// HasOptionalContext reports whether c prefers to wait.
func HasOptionalContext(c Command) bool {
	if oc, ok := c.(OptionalContext); ok {
		return oc.HasOptionalContext()
	}
	return false
}
