package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                     `json:"valid"`
	Roles    []string                 `json:"roles,omitempty"`
	Errors   []schema.ValidationError `json:"errors,omitempty"`
	Cycles   []schema.CycleWarning    `json:"cycles,omitempty"`
	Problems []string                 `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a schema file",
		Long: `Validate the roles of a CUE or YAML schema file.

Checks role definitions, relation targets, inheritance chains and
reference cycles. A cycle made only of required keys has no insert
order and fails validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := schema.LoadFile(path)
	if err != nil {
		if verrs := validationErrors(err); len(verrs) > 0 {
			return outputValidationErrors(formatter, ValidationResult{Errors: verrs})
		}
		_ = formatter.Error(ErrCodeSchemaLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	roles := reg.Roles()
	formatter.VerboseLog("Loaded %d role(s) from %s", len(roles), path)

	cycles, err := schema.AnalyzeCycles(reg)
	if err != nil {
		return outputValidationErrors(formatter, ValidationResult{
			Roles:    roles,
			Cycles:   cycles,
			Problems: splitJoined(err),
		})
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Roles: roles, Cycles: cycles})
	}

	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d roles)\n", len(roles))
	for _, c := range cycles {
		if c.Level == schema.LevelWarning {
			fmt.Fprintf(formatter.Writer, "  %s\n", formatCycle(c))
		}
	}
	return nil
}

// validationErrors collects the ValidationErrors joined into err.
func validationErrors(err error) []schema.ValidationError {
	var out []schema.ValidationError
	for _, e := range flatten(err) {
		var ve schema.ValidationError
		if errors.As(e, &ve) {
			out = append(out, ve)
		}
	}
	return out
}

func flatten(err error) []error {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range joined.Unwrap() {
			out = append(out, flatten(e)...)
		}
		return out
	}
	return []error{err}
}

func splitJoined(err error) []string {
	errs := flatten(err)
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

// outputValidationErrors reports a failed validation. Failures exit with
// ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	count := len(result.Errors) + len(result.Problems)
	if formatter.JSON() {
		code, message := ErrCodeCycle, ""
		if len(result.Problems) > 0 {
			message = result.Problems[0]
		}
		if len(result.Errors) > 0 {
			code, message = result.Errors[0].Code, result.Errors[0].Message
		}
		if err := formatter.Failure(result, code, message); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
	}
	for _, p := range result.Problems {
		fmt.Fprintf(formatter.Writer, "  %s\n", p)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", count))
}
