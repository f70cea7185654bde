package heap

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIndex is returned when an index definition is empty or names
	// an empty field.
	ErrInvalidIndex = errors.New("invalid index definition")

	// ErrNotComparable is returned when an entity cannot be used as an
	// identity key (maps, slices, funcs, or nil).
	ErrNotComparable = errors.New("entity is not usable as an identity key")

	// ErrNilNode is returned when attaching an entity without a node.
	ErrNilNode = errors.New("nil node")
)

// TransitionError reports a rejected status change.
type TransitionError struct {
	Role string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for %q: %s -> %s", e.Role, e.From, e.To)
}

// IsTransitionError reports whether err is (or wraps) a TransitionError.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}
