package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/testutil"
)

func TestRunner_RollbackInReverseOrder(t *testing.T) {
	ctx := context.Background()
	orm := newFakeORM(testutil.NewMemoryDriver())
	r := NewRunner(PolicyIgnore, orm, false, quietLogger())

	var order []string
	for _, table := range []string{"a", "b", "c"} {
		table := table
		w := command.Wrap(command.NewDelete("default", table, map[string]any{"id": 1})).
			OnRollback(func() { order = append(order, table) })
		require.NoError(t, r.Run(ctx, w))
	}

	require.NoError(t, r.Rollback(ctx))

	assert.Equal(t, []string{"c", "b", "a"}, order)
	assert.Empty(t, r.Executed())
}

func TestRunner_OpensOneTransactionPerDatabase(t *testing.T) {
	ctx := context.Background()
	primary := &countingDriver{MemoryDriver: testutil.NewMemoryDriver()}
	audit := &countingDriver{MemoryDriver: testutil.NewMemoryDriver()}
	orm := newFakeORM(primary)
	orm.drivers["audit"] = audit
	r := NewRunner(PolicyOpen, orm, false, quietLogger())

	require.NoError(t, r.Run(ctx, command.NewDelete("default", "a", map[string]any{"id": 1})))
	require.NoError(t, r.Run(ctx, command.NewDelete("audit", "b", map[string]any{"id": 1})))
	require.NoError(t, r.Run(ctx, command.NewDelete("default", "c", map[string]any{"id": 1})))
	require.NoError(t, r.Complete(ctx))

	assert.Equal(t, 1, primary.begins)
	assert.Equal(t, 1, primary.commits)
	assert.Equal(t, 1, audit.begins)
	assert.Equal(t, 1, audit.commits)
}

func TestRunner_UnknownDatabase(t *testing.T) {
	orm := newFakeORM(testutil.NewMemoryDriver())
	r := NewRunner(PolicyOpen, orm, false, quietLogger())

	err := r.Run(context.Background(), command.NewDelete("missing", "a", map[string]any{"id": 1}))

	assert.ErrorContains(t, err, `unknown database "missing"`)
}

func TestRunner_RollbackErrorsAreJoined(t *testing.T) {
	ctx := context.Background()
	drv := testutil.NewMemoryDriver()
	orm := newFakeORM(drv)
	r := NewRunner(PolicyOpen, orm, false, quietLogger())
	require.NoError(t, r.Run(ctx, command.NewDelete("default", "a", map[string]any{"id": 1})))

	// Roll back underneath the runner so its own rollback fails.
	require.NoError(t, drv.Rollback(ctx))

	err := r.Rollback(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, testutil.ErrNotInTransaction))
}

func TestError_Format(t *testing.T) {
	err := &Error{
		Code:    ErrCodeExecution,
		Message: "command failed",
		RunID:   "r1",
		Command: "insert users",
		Err:     errConnectionLost,
	}

	assert.Equal(t, "EXECUTION_FAILED: command failed (command=insert users) (run=r1): connection lost", err.Error())
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(nil))
	assert.False(t, errors.Is(err, ErrAlreadySucceeded))
}

func TestRunner_PartialCommitKeepsCommittedCommands(t *testing.T) {
	ctx := context.Background()
	orm := newFakeORM(testutil.NewMemoryDriver())
	orm.drivers["audit"] = &commitFailingDriver{MemoryDriver: testutil.NewMemoryDriver()}
	r := NewRunner(PolicyOpen, orm, false, quietLogger())

	var undone []string
	primary := command.Wrap(command.NewDelete("default", "a", map[string]any{"id": 1})).
		OnRollback(func() { undone = append(undone, "default") })
	audit := command.Wrap(command.NewDelete("audit", "b", map[string]any{"id": 1})).
		OnRollback(func() { undone = append(undone, "audit") })
	require.NoError(t, r.Run(ctx, primary))
	require.NoError(t, r.Run(ctx, audit))

	err := r.Complete(ctx)
	require.ErrorIs(t, err, errConnectionLost)
	assert.True(t, r.Partial())
	assert.True(t, r.Committed("default"))
	assert.False(t, r.Committed("audit"))

	_ = r.Rollback(ctx)

	assert.Equal(t, []string{"audit"}, undone)
	assert.True(t, primary.IsExecuted(), "committed command stays executed")
	assert.False(t, audit.IsExecuted())
}

func TestRunner_FirstCommitFailureIsNotPartial(t *testing.T) {
	ctx := context.Background()
	orm := newFakeORM(&commitFailingDriver{MemoryDriver: testutil.NewMemoryDriver()})
	r := NewRunner(PolicyOpen, orm, false, quietLogger())
	require.NoError(t, r.Run(ctx, command.NewDelete("default", "a", map[string]any{"id": 1})))

	require.Error(t, r.Complete(ctx))

	assert.False(t, r.Partial())
	assert.False(t, r.Committed("default"))
}
