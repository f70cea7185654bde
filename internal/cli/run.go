package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/harness"
	"github.com/roach88/orbit/internal/transaction"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Policy   string
	Metrics  bool
}

// RunReport is the JSON payload of the run command.
type RunReport struct {
	Scenario string `json:"scenario"`
	*harness.Result
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file>",
		Short: "Run one scenario and print its statement trace",
		Long: `Run a scenario file against a fresh database and print every
statement the units of work executed.

The database is in memory unless --db names a SQLite file. --policy
overrides the transaction policy of the scenario.

Example:
  orbit run ./scenarios/user_comment.yaml
  orbit run --db /tmp/orbit.db --policy continue ./scenarios/user_comment.yaml
  orbit run --metrics --format json ./scenarios/rollback_on_failure.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", ":memory:", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Policy, "policy", "", "transaction policy (open|continue|ignore)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print unit-of-work metrics after the trace")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	if opts.Policy != "" {
		if _, err := transaction.ParsePolicy(opts.Policy); err != nil {
			return WrapExitError(ExitCommandError, "invalid --policy", err)
		}
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = formatter.Error(ErrCodeScenarioLoad, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runOpts := []harness.Option{
		harness.WithDatabase(opts.Database),
		harness.WithPolicy(opts.Policy),
		harness.WithLogger(logger),
	}
	var registry *prometheus.Registry
	if opts.Metrics {
		registry = prometheus.NewRegistry()
		runOpts = append(runOpts, harness.WithMetrics(transaction.NewMetrics(registry)))
	}

	logger.Info("running scenario", "name", scenario.Name, "db", opts.Database)
	result, err := harness.Run(ctx, scenario, runOpts...)
	if err != nil {
		_ = formatter.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario setup failed", err)
	}
	logger.Info("scenario finished", "name", scenario.Name, "pass", result.Pass, "statements", len(result.Trace))

	if formatter.JSON() {
		report := RunReport{Scenario: scenario.Name, Result: result}
		if result.Pass {
			err = formatter.Success(report)
		} else {
			err = formatter.Failure(report, ErrCodeScenario, firstError(result.Errors))
		}
		if err != nil {
			return err
		}
	} else {
		printTrace(formatter.Writer, scenario.Name, result)
	}

	if registry != nil {
		if err := writeMetrics(formatter.GetErrWriter(), registry); err != nil {
			return err
		}
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func printTrace(w io.Writer, name string, result *harness.Result) {
	unit := -1
	for _, e := range result.Trace {
		if e.Unit != unit {
			unit = e.Unit
			fmt.Fprintf(w, "unit %d\n", unit)
		}
		fmt.Fprintf(w, "  [%d] %s %v\n", e.Seq, e.SQL, e.Args)
	}
	for i, u := range result.Units {
		if !u.Success {
			fmt.Fprintf(w, "unit %d rolled back: %s\n", i, u.Error)
		}
	}

	if result.Pass {
		fmt.Fprintf(w, "✓ %s (%d statements)\n", name, len(result.Trace))
		return
	}
	fmt.Fprintf(w, "✗ %s\n", name)
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// writeMetrics prints the gathered metrics in the Prometheus text format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func firstError(errs []string) string {
	if len(errs) == 0 {
		return "scenario failed"
	}
	return errs[0]
}
