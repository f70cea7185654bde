package transaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/orbit/internal/command"
	"github.com/roach88/orbit/internal/heap"
	"github.com/roach88/orbit/internal/pool"
)

// ORM is what a unit of work needs from the mapper around it.
type ORM interface {
	DriverProvider
	// Heap returns the identity map.
	Heap() heap.Heap
	// Node returns the node of entity, creating and attaching a new one for
	// an untracked entity.
	Node(entity any) (*heap.Node, error)
	// Indexes returns the heap index definitions of role.
	Indexes(role string) [][]string
	// Hydrate writes changed values back into entity.
	Hydrate(entity any, data map[string]any)
}

// Generator turns a tuple into a command. It may attach more tuples to the
// pool (cascaded relations). A nil command means there is nothing to do.
//
// Generate must be deterministic for the same node state.
type Generator interface {
	Generate(ctx context.Context, p *pool.Pool, t *pool.Tuple) (command.Command, error)
}

// UnitOfWork collects entities to store or delete and persists them in one
// run.
//
// A UnitOfWork is single-use and not safe for concurrent use.
type UnitOfWork struct {
	orm       ORM
	generator Generator
	pool      *pool.Pool
	root      *command.Sequence

	policy      Policy
	strictOuter bool
	logger      *slog.Logger
	metrics     *Metrics
	ids         RunIDGenerator

	runID string
	ran   bool
}

// New returns a unit of work over orm.
func New(orm ORM, generator Generator, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{
		orm:       orm,
		generator: generator,
		pool:      pool.New(),
		root:      command.NewSequence(),
		policy:    PolicyOpen,
		logger:    slog.Default(),
		ids:       UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Persist registers entity, and through the generator its relations, to be
// stored.
func (u *UnitOfWork) Persist(entity any) error {
	return u.register(entity, pool.TaskStore)
}

// Delete registers entity to be deleted.
func (u *UnitOfWork) Delete(entity any) error {
	return u.register(entity, pool.TaskDelete)
}

func (u *UnitOfWork) register(entity any, task pool.Task) error {
	if u.ran {
		return ErrAlreadyRun
	}
	var node *heap.Node
	if t, ok := u.pool.Get(entity); ok && t.Node != nil {
		node = t.Node
	} else {
		n, err := u.orm.Node(entity)
		if err != nil {
			return fmt.Errorf("register %s: %w", task, err)
		}
		node = n
	}
	if _, err := u.pool.Attach(entity, task, node, false); err != nil {
		return fmt.Errorf("register %s %s: %w", task, node.Role(), err)
	}
	return nil
}

// superseded reports whether a later unit of work claimed a node of this run.
func (u *UnitOfWork) superseded() bool {
	for _, t := range u.pool.Tuples() {
		if t.Node != nil && t.Node.Owner() != any(u.pool) {
			return true
		}
	}
	return false
}

// Pool returns the tuples of the run.
func (u *UnitOfWork) Pool() *pool.Pool {
	return u.pool
}

// Root returns the command tree. It is empty until Run built it.
func (u *UnitOfWork) Root() *command.Sequence {
	return u.root
}

// Run builds the command tree and executes it.
//
// The returned error is non-nil only for build failures: a generator error
// or a malformed tree. Execution failures are reported through the Result.
func (u *UnitOfWork) Run(ctx context.Context) (*Result, error) {
	if u.ran {
		return nil, ErrAlreadyRun
	}
	u.ran = true
	u.runID = u.ids.Generate()

	log := u.logger.With("run_id", u.runID)
	log.Debug("unit of work starting", "tuples", u.pool.Len(), "policy", u.policy.String())

	if err := u.build(ctx); err != nil {
		log.Error("unit of work build failed", "error", err)
		return nil, err
	}

	r := &Result{uow: u}
	r.finish(u.execute(ctx))
	return r, nil
}

func (u *UnitOfWork) build(ctx context.Context) (err error) {
	it := u.pool.Iterator()
	defer it.Close()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		be, ok := r.(*command.BuildError)
		if !ok {
			panic(r)
		}
		err = fmt.Errorf("build command tree: %w", be)
	}()

	for t, ok := it.Next(); ok; t, ok = it.Next() {
		if !t.Pending() {
			continue
		}
		cmd, err := u.generator.Generate(ctx, u.pool, t)
		if err != nil {
			return fmt.Errorf("generate %s: %w", t, err)
		}
		t.Command = cmd
		if cmd == nil {
			t.Status = pool.StatusProcessed
			continue
		}
		t.Status = pool.StatusDeferred
		u.root.AddCommand(cmd)
	}

	if err := command.Validate(u.root); err != nil {
		return fmt.Errorf("build command tree: %w", err)
	}
	return nil
}

// execute runs one attempt over the prepared tree.
func (u *UnitOfWork) execute(ctx context.Context) error {
	runner := NewRunner(u.policy, u.orm, u.strictOuter, u.logger)

	err := u.loop(ctx, runner)
	if err == nil {
		if cerr := runner.Complete(ctx); cerr != nil {
			err = &Error{Code: ErrCodeExecution, Message: "commit failed", RunID: u.runID, Err: cerr}
			if runner.Partial() {
				err = &Error{Code: ErrCodePartialCommit, Message: "commit failed after other databases committed", RunID: u.runID, Err: cerr}
			}
		}
	}
	if err != nil {
		stored := u.rollback(ctx, runner)
		// Rows already committed stay tracked as stored.
		u.sync(stored)
		u.metrics.run(false)
		u.logger.Warn("unit of work failed", "run_id", u.runID, "error", err)
		return err
	}

	u.sync(u.pool.Tuples())
	u.metrics.run(true)
	u.logger.Debug("unit of work completed", "run_id", u.runID, "commands", len(runner.Executed()))
	return nil
}

func (u *UnitOfWork) loop(ctx context.Context, runner *Runner) error {
	for {
		if err := ctx.Err(); err != nil {
			return &Error{Code: ErrCodeExecution, Message: "cancelled", RunID: u.runID, Err: err}
		}

		progressed, remaining, err := u.pass(ctx, runner, true)
		u.updateStatuses()
		if err != nil {
			return err
		}
		if remaining == 0 {
			return nil
		}
		if progressed {
			continue
		}

		progressed, _, err = u.pass(ctx, runner, false)
		u.updateStatuses()
		if err != nil {
			return err
		}
		if !progressed {
			return u.unresolved()
		}
	}
}

// pass executes ready commands. A strict pass skips commands with optional
// context and runs everything else that is ready; a relaxed pass runs only
// the first ready command.
func (u *UnitOfWork) pass(ctx context.Context, runner *Runner, strict bool) (progressed bool, remaining int, err error) {
	it := command.NewIterator(u.root)
	for c, ok := it.Next(); ok; c, ok = it.Next() {
		remaining++
		if !c.IsReady() {
			continue
		}
		if strict && command.HasOptionalContext(c) {
			continue
		}

		if err := runner.Run(ctx, c); err != nil {
			return progressed, remaining, u.wrap(c, err)
		}
		u.metrics.command(kind(c))
		progressed = true
		if !strict {
			return progressed, remaining, nil
		}
	}
	return progressed, remaining, nil
}

func (u *UnitOfWork) wrap(c command.Executable, err error) error {
	if command.IsBuildError(err) || hasCode(err, ErrCodeNoOuterTransaction) {
		return err
	}
	return &Error{
		Code:    ErrCodeExecution,
		Message: "command failed",
		RunID:   u.runID,
		Command: Describe(c),
		Err:     err,
	}
}

func (u *UnitOfWork) unresolved() error {
	var waiting []string
	for _, c := range command.Remaining(u.root) {
		waiting = append(waiting, Describe(c))
	}
	return &Error{
		Code:    ErrCodeUnresolved,
		Message: ErrUnresolved.Message + ": " + strings.Join(waiting, ", "),
		RunID:   u.runID,
	}
}

func (u *UnitOfWork) updateStatuses() {
	for _, t := range u.pool.Tuples() {
		if t.Command == nil || t.Status == pool.StatusProcessed {
			continue
		}
		if t.Command.IsExecuted() {
			t.Status = pool.StatusProcessed
		} else {
			t.Status = pool.StatusWaiting
		}
	}
}

// rollback restores the tree and every node state so the same tree can run
// again. Tuples whose writes all committed are left alone and returned.
func (u *UnitOfWork) rollback(ctx context.Context, runner *Runner) []*pool.Tuple {
	u.metrics.rollback()
	done := make(map[command.Executable]bool)
	for _, c := range runner.Executed() {
		done[c] = true
	}
	_ = runner.Rollback(ctx)

	// Commands that never ran may still hold values forwarded during this
	// attempt.
	for _, c := range command.Executables(u.root) {
		if !done[c] {
			c.Rollback()
		}
	}
	var stored []*pool.Tuple
	for _, t := range u.pool.Tuples() {
		if committed(runner, t) {
			t.Status = pool.StatusProcessed
			stored = append(stored, t)
			continue
		}
		if t.Node != nil && t.Node.HasState() {
			t.Node.State().Rollback()
		}
		if t.Command != nil {
			t.Status = pool.StatusDeferred
		}
	}
	return stored
}

// committed reports whether every write of t ran in a committed transaction.
func committed(runner *Runner, t *pool.Tuple) bool {
	if t.Command == nil {
		return false
	}
	exes := command.Executables(t.Command)
	if len(exes) == 0 {
		return false
	}
	for _, c := range exes {
		if !c.IsExecuted() || !runner.Committed(c.Database()) {
			return false
		}
	}
	return true
}

// sync commits the node states of tuples and refreshes the identity map.
func (u *UnitOfWork) sync(tuples []*pool.Tuple) {
	h := u.orm.Heap()
	for _, t := range tuples {
		node := t.Node
		if node == nil {
			continue
		}
		diff := node.SyncState()

		if node.Status() == heap.StatusDeleted || (t.Task == pool.TaskDelete && node.Status() == heap.StatusNew) {
			h.Detach(t.Entity)
			continue
		}
		if err := h.Attach(t.Entity, node, u.orm.Indexes(node.Role())); err != nil {
			u.logger.Warn("reindex failed", "run_id", u.runID, "role", node.Role(), "error", err)
		}
		if len(diff) > 0 {
			u.orm.Hydrate(t.Entity, diff)
		}
	}
}

// Describe names a command for logs and errors.
func Describe(c command.Command) string {
	switch c := c.(type) {
	case *command.Insert:
		return "insert " + c.Table()
	case *command.Update:
		return "update " + c.Table()
	case *command.Delete:
		return "delete " + c.Table()
	case *command.Split:
		return "split(" + Describe(c.Head()) + ", " + Describe(c.Tail()) + ")"
	case *command.Merge:
		return "merge " + c.Table()
	case *command.Wrapped:
		return Describe(c.Inner())
	case *command.Sequence:
		return fmt.Sprintf("sequence(%d)", c.Len())
	}
	return fmt.Sprintf("%T", c)
}

func kind(c command.Command) string {
	switch c := c.(type) {
	case *command.Insert:
		return "insert"
	case *command.Update:
		return "update"
	case *command.Delete:
		return "delete"
	case *command.Merge:
		return "merge"
	case *command.Split:
		if c.Head().IsExecuted() && c.Tail().IsExecuted() {
			return kind(c.Tail())
		}
		return kind(c.Head())
	case *command.Wrapped:
		return kind(c.Inner())
	}
	return "other"
}
