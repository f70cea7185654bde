package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/orbit/internal/orm"
	"github.com/roach88/orbit/internal/schema"
	"github.com/roach88/orbit/internal/store"
	"github.com/roach88/orbit/internal/testutil"
	"github.com/roach88/orbit/internal/transaction"
)

// Option configures a scenario run.
type Option func(*config)

type config struct {
	database string
	policy   string
	logger   *slog.Logger
	metrics  *transaction.Metrics
}

// WithDatabase runs the scenario against the SQLite database at path.
// Default: a fresh in-memory database.
func WithDatabase(path string) Option {
	return func(c *config) {
		c.database = path
	}
}

// WithPolicy overrides the transaction policy of the scenario.
func WithPolicy(policy string) Option {
	return func(c *config) {
		c.policy = policy
	}
}

// WithLogger sets the logger of the store, the ORM and every unit of work.
// Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records unit-of-work metrics into m.
func WithMetrics(m *transaction.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// Harness holds the state of one scenario run.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	orm      *orm.ORM
	entities map[string]*orm.Entity
	policy   transaction.Policy
	runIDs   transaction.RunIDGenerator
	metrics  *transaction.Metrics
	logger   *slog.Logger

	result    *Result
	unit      int
	recording bool
}

// Run executes a scenario and returns the result.
//
// The returned error is non-nil when the scenario could not be set up or a
// unit could not be built. Units that fail while executing, missed
// expectations and failed assertions are reported through the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{
		database: ":memory:",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	policyName := scenario.Policy
	if cfg.policy != "" {
		policyName = cfg.policy
	}
	policy, err := transaction.ParsePolicy(policyName)
	if err != nil {
		return nil, err
	}

	reg, err := schema.LoadFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		entities: make(map[string]*orm.Entity, len(scenario.Entities)),
		policy:   policy,
		runIDs:   testutil.NewFixedRunIDGenerator(scenario.RunID),
		metrics:  cfg.metrics,
		logger:   cfg.logger,
		result:   NewResult(),
	}

	st, err := store.Open(cfg.database, store.WithLogger(cfg.logger), store.WithStatementHook(h.record))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	h.store = st

	if err := st.CreateTables(ctx, reg); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed: %w", err)
	}

	ormOpts := []orm.Option{orm.WithLogger(cfg.logger)}
	seen := make(map[string]bool)
	for _, name := range reg.Roles() {
		role, err := reg.Role(name)
		if err != nil {
			return nil, err
		}
		if role.Embeddable || seen[role.Database] {
			continue
		}
		seen[role.Database] = true
		ormOpts = append(ormOpts, orm.WithDriver(role.Database, st))
	}
	h.orm = orm.New(reg, ormOpts...)

	if err := h.materialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to materialize entities: %w", err)
	}

	for i, u := range scenario.Units {
		if err := h.runUnit(ctx, i, u); err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
	}

	actx := &AssertionContext{
		Store:    st,
		ORM:      h.orm,
		Entities: h.entities,
		Ctx:      ctx,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// record is the statement hook of the store. Only statements issued by a
// running unit enter the trace.
func (h *Harness) record(st store.Statement) {
	if h.recording {
		h.result.AddStatement(h.unit, st)
	}
}

func (h *Harness) seed(ctx context.Context) error {
	for i, row := range h.scenario.Seed {
		if _, err := h.store.Insert(ctx, row.Table, row.Row, ""); err != nil {
			return fmt.Errorf("seed[%d]: %w", i, err)
		}
	}
	return nil
}

// materialize creates the declared entities in name order, then links them.
func (h *Harness) materialize(ctx context.Context) error {
	names := sortedKeys(h.scenario.Entities)
	for _, name := range names {
		spec := h.scenario.Entities[name]
		if spec.Load == nil {
			h.entities[name] = orm.NewEntity(spec.Role, spec.Fields)
			continue
		}

		rows, err := h.orm.Load(ctx, spec.Role, spec.Load)
		if err != nil {
			return fmt.Errorf("entities.%s: %w", name, err)
		}
		if len(rows) != 1 {
			return fmt.Errorf("entities.%s: load matched %d rows, want 1", name, len(rows))
		}
		e, ok := rows[0].(*orm.Entity)
		if !ok {
			return fmt.Errorf("entities.%s: loaded %T, want *orm.Entity", name, rows[0])
		}
		for _, field := range sortedKeys(spec.Fields) {
			e.Set(field, spec.Fields[field])
		}
		h.entities[name] = e
	}

	for _, name := range names {
		spec := h.scenario.Entities[name]
		e := h.entities[name]
		for _, rel := range sortedKeys(spec.Links) {
			e.Link(rel, h.entities[spec.Links[rel]])
		}
		for _, rel := range sortedKeys(spec.Append) {
			for _, target := range spec.Append[rel] {
				e.Append(rel, h.entities[target])
			}
		}
	}
	return nil
}

func (h *Harness) runUnit(ctx context.Context, index int, u Unit) error {
	for _, name := range sortedKeys(u.Set) {
		e := h.entities[name]
		for _, field := range sortedKeys(u.Set[name]) {
			e.Set(field, u.Set[name][field])
		}
	}

	opts := []transaction.Option{
		transaction.WithPolicy(h.policy),
		transaction.WithRunIDGenerator(h.runIDs),
	}
	if h.metrics != nil {
		opts = append(opts, transaction.WithMetrics(h.metrics))
	}
	uow := h.orm.NewUnitOfWork(opts...)
	for _, name := range u.Persist {
		if err := uow.Persist(h.entities[name]); err != nil {
			return fmt.Errorf("persist %s: %w", name, err)
		}
	}
	for _, name := range u.Delete {
		if err := uow.Delete(h.entities[name]); err != nil {
			return fmt.Errorf("delete %s: %w", name, err)
		}
	}

	// Under the continue policy the caller owns the transaction.
	if h.policy == transaction.PolicyContinue {
		if err := h.store.Begin(ctx); err != nil {
			return err
		}
	}

	h.unit, h.recording = index, true
	res, err := uow.Run(ctx)
	h.recording = false
	if err != nil {
		if h.policy == transaction.PolicyContinue {
			_ = h.store.Rollback(ctx)
		}
		return err
	}

	if h.policy == transaction.PolicyContinue {
		if res.Success() {
			if err := h.store.Commit(ctx); err != nil {
				return err
			}
		} else if err := h.store.Rollback(ctx); err != nil {
			return err
		}
	}

	outcome := UnitOutcome{RunID: res.RunID(), Success: res.Success()}
	if !res.Success() {
		outcome.Error = res.LastError().Error()
	}
	h.result.Units = append(h.result.Units, outcome)
	h.logger.Debug("unit finished", "unit", index, "run_id", outcome.RunID, "success", outcome.Success)

	want := u.Expect
	if want == "" {
		want = ExpectSuccess
	}
	switch {
	case want == ExpectSuccess && !res.Success():
		h.result.AddError(fmt.Sprintf("units[%d]: expected success, got failure: %s", index, outcome.Error))
	case want == ExpectFailure && res.Success():
		h.result.AddError(fmt.Sprintf("units[%d]: expected failure, got success", index))
	}
	return nil
}
