package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/orbit/internal/command"
)

// Policy selects how a run demarcates transactions.
type Policy int

const (
	// PolicyOpen begins a transaction on every database the run writes to,
	// commits on completion and rolls back on failure.
	PolicyOpen Policy = iota + 1
	// PolicyContinue joins a transaction opened by the caller. Commit and
	// rollback are left to the caller.
	PolicyContinue
	// PolicyIgnore runs without any transaction demarcation.
	PolicyIgnore
)

func (p Policy) String() string {
	switch p {
	case PolicyOpen:
		return "open"
	case PolicyContinue:
		return "continue"
	case PolicyIgnore:
		return "ignore"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses the name of a policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "open", "":
		return PolicyOpen, nil
	case "continue":
		return PolicyContinue, nil
	case "ignore":
		return PolicyIgnore, nil
	}
	return 0, fmt.Errorf("unknown transaction policy %q (want open, continue or ignore)", s)
}

// DriverProvider resolves the driver of a database.
type DriverProvider interface {
	Driver(database string) (command.Driver, error)
}

type openTx struct {
	database string
	driver   command.Driver
}

// Runner executes commands and owns the transaction boundary of one attempt.
// It is the only component that calls driver Begin, Commit and Rollback.
type Runner struct {
	policy   Policy
	strict   bool
	drivers  DriverProvider
	logger   *slog.Logger
	executed []command.Executable
	seen     map[command.Executable]bool
	open     []openTx

	committed map[string]bool
	partial   bool
}

// NewRunner returns a runner for one attempt.
func NewRunner(policy Policy, drivers DriverProvider, strict bool, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		policy:  policy,
		strict:  strict,
		drivers: drivers,
		logger:  logger,
		seen:    make(map[command.Executable]bool),

		committed: make(map[string]bool),
	}
}

// Run executes c on the driver of its database, opening a transaction first
// when the policy asks for it.
func (r *Runner) Run(ctx context.Context, c command.Executable) error {
	drv, err := r.drivers.Driver(c.Database())
	if err != nil {
		return fmt.Errorf("resolve driver %q: %w", c.Database(), err)
	}
	if err := r.prepare(ctx, c.Database(), drv); err != nil {
		return err
	}

	if !r.seen[c] {
		r.seen[c] = true
		r.executed = append(r.executed, c)
	}
	return c.Execute(ctx, drv)
}

func (r *Runner) prepare(ctx context.Context, database string, drv command.Driver) error {
	switch r.policy {
	case PolicyOpen:
		for _, tx := range r.open {
			if tx.database == database {
				return nil
			}
		}
		if err := drv.Begin(ctx); err != nil {
			return fmt.Errorf("begin transaction on %q: %w", database, err)
		}
		r.open = append(r.open, openTx{database: database, driver: drv})
	case PolicyContinue:
		if r.strict && drv.TransactionLevel() == 0 {
			return &Error{Code: ErrCodeNoOuterTransaction, Message: ErrNoOuterTransaction.Message + " on " + database}
		}
	}
	return nil
}

// Executed returns the commands run so far, in order.
func (r *Runner) Executed() []command.Executable {
	return r.executed
}

// Complete commits the transactions opened by the runner and completes
// every executed command.
//
// When a commit fails after others succeeded, the commands of the committed
// databases are completed anyway and Partial reports true.
func (r *Runner) Complete(ctx context.Context) error {
	for i, tx := range r.open {
		if err := tx.driver.Commit(ctx); err != nil {
			r.open = r.open[i+1:]
			if i > 0 {
				r.partial = true
				for _, c := range r.executed {
					if r.committed[c.Database()] {
						c.Complete()
					}
				}
			}
			return fmt.Errorf("commit transaction on %q: %w", tx.database, err)
		}
		r.committed[tx.database] = true
	}
	r.open = nil

	for _, c := range r.executed {
		c.Complete()
	}
	r.executed = nil
	r.seen = make(map[command.Executable]bool)
	return nil
}

// Partial reports whether Complete failed after committing some databases.
func (r *Runner) Partial() bool {
	return r.partial
}

// Committed reports whether the transaction on database committed.
func (r *Runner) Committed(database string) bool {
	return r.committed[database]
}

// Rollback undoes every executed command in reverse order and rolls back the
// transactions opened by the runner. Commands of committed databases are
// left executed. Errors are joined and logged; they never hide the failure
// that triggered the rollback.
func (r *Runner) Rollback(ctx context.Context) error {
	for i := len(r.executed) - 1; i >= 0; i-- {
		if r.committed[r.executed[i].Database()] {
			continue
		}
		r.executed[i].Rollback()
	}
	r.executed = nil
	r.seen = make(map[command.Executable]bool)

	var errs []error
	for i := len(r.open) - 1; i >= 0; i-- {
		tx := r.open[i]
		if err := tx.driver.Rollback(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rollback transaction on %q: %w", tx.database, err))
		}
	}
	r.open = nil

	err := errors.Join(errs...)
	if err != nil {
		r.logger.Warn("transaction rollback failed", "error", err)
	}
	return err
}
