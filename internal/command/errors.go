package command

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPrimary is reported when a sequence is used as a dependency
	// target before its primary command was set.
	ErrNoPrimary = errors.New("sequence has no primary command")

	// ErrEmptyScope is reported when an update or delete has no resolved
	// scope.
	ErrEmptyScope = errors.New("command scope is empty")

	// ErrNotReady is reported when a command is executed before its
	// required context is known.
	ErrNotReady = errors.New("command is not ready")
)

// BuildError reports a malformed command tree. Build errors are structural:
// running the same tree again cannot fix them.
type BuildError struct {
	Op    string
	Table string
	Err   error
}

func (e *BuildError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// IsBuildError reports whether err is (or wraps) a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}

// Validator is implemented by commands that can detect a malformed tree.
type Validator interface {
	Validate() error
}

// Validate walks the tree below root and returns the build errors found.
func Validate(root Command) error {
	var errs []error
	walk(root, func(c Command) {
		if v, ok := c.(Validator); ok {
			if err := v.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// walk visits every command below root, including commands hidden by a
// false condition.
func walk(root Command, fn func(Command)) {
	if root == nil {
		return
	}
	fn(root)
	switch c := root.(type) {
	case *Sequence:
		for _, child := range c.commands {
			walk(child, fn)
		}
	case *Condition:
		walk(c.command, fn)
	case *Split:
		walk(c.head, fn)
		walk(c.tail, fn)
	case *Merge:
		walk(c.primary, fn)
		for _, p := range c.parts {
			walk(p, fn)
		}
	case *Wrapped:
		walk(c.inner, fn)
	}
}
