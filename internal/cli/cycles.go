package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/schema"
)

// NewCyclesCommand creates the cycles command.
func NewCyclesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycles <schema-file>",
		Short: "List reference cycles between roles",
		Long: `List every reference cycle of a schema with its level:

  info     broken by a refersTo relation
  warning  broken only by nullable keys
  error    required keys only, no insert order exists`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycles(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runCycles(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	reg, err := schema.LoadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeSchemaLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load schema", err)
	}

	cycles, cycleErr := schema.AnalyzeCycles(reg)

	if formatter.JSON() {
		if cycleErr != nil {
			if err := formatter.Failure(cycles, ErrCodeCycle, cycleErr.Error()); err != nil {
				return err
			}
		} else if err := formatter.Success(cycles); err != nil {
			return err
		}
	} else {
		if len(cycles) == 0 {
			fmt.Fprintln(formatter.Writer, "No reference cycles")
		}
		for _, c := range cycles {
			fmt.Fprintln(formatter.Writer, formatCycle(c))
		}
	}

	if cycleErr != nil {
		return WrapExitError(ExitFailure, "unbreakable cycle", cycleErr)
	}
	return nil
}

func formatCycle(c schema.CycleWarning) string {
	return fmt.Sprintf("[%s] %s: %s", c.Level, strings.Join(c.Path, " → "), c.Message)
}
