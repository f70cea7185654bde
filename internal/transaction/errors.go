package transaction

import (
	"errors"
	"fmt"

	"github.com/roach88/orbit/internal/command"
)

// ErrorCode categorizes unit-of-work errors.
type ErrorCode string

const (
	// ErrCodeExecution: the storage driver failed while executing a command.
	// Recoverable; the Result can be retried.
	ErrCodeExecution ErrorCode = "EXECUTION_FAILED"

	// ErrCodeUnresolved: no command can run and some are still pending.
	// Structural; retrying cannot help.
	ErrCodeUnresolved ErrorCode = "UNRESOLVED_DEPENDENCY"

	// ErrCodeAlreadySucceeded: Retry was called on a successful Result.
	ErrCodeAlreadySucceeded ErrorCode = "ALREADY_SUCCEEDED"

	// ErrCodeNotRetryable: Retry was called on a structural failure.
	ErrCodeNotRetryable ErrorCode = "NOT_RETRYABLE"

	// ErrCodeAlreadyRun: Run was called twice on the same unit of work.
	ErrCodeAlreadyRun ErrorCode = "ALREADY_RUN"

	// ErrCodeNoOuterTransaction: the continue policy in strict mode found no
	// open transaction to join.
	ErrCodeNoOuterTransaction ErrorCode = "NO_OUTER_TRANSACTION"

	// ErrCodePartialCommit: a commit failed after the transactions of other
	// databases committed. Their rows are stored; retrying would write them
	// twice.
	ErrCodePartialCommit ErrorCode = "PARTIAL_COMMIT"
)

// Error is a unit-of-work error with a category and run context.
type Error struct {
	Code ErrorCode

	Message string

	// RunID identifies the run that failed.
	RunID string

	// Command describes the command that failed, if any.
	Command string

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Command != "" {
		msg += fmt.Sprintf(" (command=%s)", e.Command)
	}
	if e.RunID != "" {
		msg += fmt.Sprintf(" (run=%s)", e.RunID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same code, so errors.Is(err, ErrAlreadySucceeded)
// holds for any error carrying that code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrAlreadySucceeded   = &Error{Code: ErrCodeAlreadySucceeded, Message: "result already succeeded"}
	ErrNotRetryable       = &Error{Code: ErrCodeNotRetryable, Message: "failure is not retryable"}
	ErrAlreadyRun         = &Error{Code: ErrCodeAlreadyRun, Message: "unit of work already ran"}
	ErrNoOuterTransaction = &Error{Code: ErrCodeNoOuterTransaction, Message: "no outer transaction to continue"}
	ErrUnresolved         = &Error{Code: ErrCodeUnresolved, Message: "unresolved command dependencies"}
)

// IsExecutionError reports whether err is a recoverable driver failure.
func IsExecutionError(err error) bool {
	return hasCode(err, ErrCodeExecution)
}

// IsUsageError reports whether err is caused by misuse of the API.
func IsUsageError(err error) bool {
	return hasCode(err, ErrCodeAlreadySucceeded) ||
		hasCode(err, ErrCodeNotRetryable) ||
		hasCode(err, ErrCodeAlreadyRun) ||
		hasCode(err, ErrCodeNoOuterTransaction)
}

// IsPartialCommit reports whether err left some databases committed.
func IsPartialCommit(err error) bool {
	return hasCode(err, ErrCodePartialCommit)
}

// IsStructural reports whether err comes from a malformed command tree.
func IsStructural(err error) bool {
	return hasCode(err, ErrCodeUnresolved) || command.IsBuildError(err)
}

// IsRetryable reports whether running the same tree again may succeed.
func IsRetryable(err error) bool {
	return err != nil && IsExecutionError(err) && !IsStructural(err)
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
