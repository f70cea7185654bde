package schema

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

var (
	// ErrUnknownRole is returned when a role name is not registered.
	ErrUnknownRole = errors.New("unknown role")

	// ErrUnbreakableCycle is returned when roles reference each other only
	// through required keys, so no insert order exists.
	ErrUnbreakableCycle = errors.New("unbreakable reference cycle")
)

// Validation error codes (E200-E299)
const (
	ErrCodeDuplicateRole    = "E201" // role defined twice
	ErrCodeMissingTable     = "E202" // role has no table
	ErrCodeMissingPrimary   = "E203" // role has no primary key
	ErrCodeUnknownTarget    = "E204" // relation target is not a role
	ErrCodeInvalidRelation  = "E205" // relation type does not fit its target
	ErrCodeUnknownParent    = "E206" // extends names an unknown role
	ErrCodeInheritanceCycle = "E207" // extends chain loops
	ErrCodeDiscriminator    = "E208" // inherited roles without discriminator
	ErrCodeDuplicateName    = "E209" // duplicate relation name
)

// ValidationError is one problem found while building a Registry.
type ValidationError struct {
	Role    string `json:"role"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] %s.%s: %s", e.Code, e.Role, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Role, e.Message)
}

// IsValidationError reports whether err is (or joins) a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// CompileError reports a malformed role definition in a source file.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
