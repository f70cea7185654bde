package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
)

// Result is the outcome of a unit-of-work run. A failed Result keeps the
// prepared command tree and can be retried.
type Result struct {
	uow       *UnitOfWork
	err       error
	attempts  int
	succeeded bool
}

// Success reports whether the last attempt committed.
func (r *Result) Success() bool {
	return r.succeeded
}

// LastError returns the failure of the last attempt, nil on success.
func (r *Result) LastError() error {
	return r.err
}

// RunID identifies the run across attempts.
func (r *Result) RunID() string {
	return r.uow.runID
}

// Attempts returns how many times the tree was executed.
func (r *Result) Attempts() int {
	return r.attempts
}

// Retry executes the same command tree again in a new transaction. Calling
// Retry after success, after a structural failure, or once a later unit of
// work claimed one of the entities, is a usage error.
func (r *Result) Retry(ctx context.Context) error {
	if r.succeeded {
		return ErrAlreadySucceeded
	}
	if !IsRetryable(r.err) {
		return &Error{Code: ErrCodeNotRetryable, Message: ErrNotRetryable.Message, RunID: r.uow.runID, Err: r.err}
	}
	if r.uow.superseded() {
		return &Error{Code: ErrCodeNotRetryable, Message: "run superseded by a later unit of work", RunID: r.uow.runID, Err: r.err}
	}

	r.uow.metrics.retry()
	r.uow.logger.Info("retrying unit of work", "run_id", r.uow.runID, "attempt", r.attempts+1)
	r.finish(r.uow.execute(ctx))
	return r.err
}

func (r *Result) finish(err error) {
	r.attempts++
	r.err = err
	r.succeeded = err == nil
}

// RetryWithBackoff retries a failed Result up to maxRetries times with a
// Fibonacci backoff starting at base. It stops at the first success or at
// the first failure that is not retryable.
func RetryWithBackoff(ctx context.Context, r *Result, maxRetries uint64, base time.Duration) error {
	if r.Success() {
		return nil
	}
	b := retry.WithMaxRetries(maxRetries, retry.NewFibonacci(base))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := r.Retry(ctx)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("retry run %s: %w", r.RunID(), err)
	}
	return nil
}
