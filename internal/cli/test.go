package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/harness"
)

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run reconciliation scenarios",
		Long: `Run every YAML scenario in a directory. Each scenario seeds a store,
runs a flow of push, delete, pull and refresh passes against a sheet and
checks the summaries, bindings and final store state it declares.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  gridsync test ./scenarios
  gridsync test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runTests(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return formatter.Fail(fmt.Errorf("scenarios directory not found: %s", dir), CodeCommand, ExitCommandError)
	}

	result, err := harness.RunDir(cmd.Context(), dir)
	if err != nil {
		return formatter.Fail(err, CodeCommand, ExitCommandError)
	}

	if opts.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		printSuite(formatter, result)
	}

	if result.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed), Reported: true}
	}
	return nil
}

func printSuite(f *OutputFormatter, result *harness.SuiteResult) {
	if result.Total == 0 {
		fmt.Fprintln(f.Writer, "No scenarios found.")
		return
	}
	for _, fail := range result.Failures {
		name := fail.Scenario
		if name == "" {
			name = fail.Path
		}
		fmt.Fprintf(f.Writer, "✗ %s\n", name)
		for _, e := range fail.Errors {
			fmt.Fprintf(f.Writer, "    %s\n", e)
		}
	}
	fmt.Fprintf(f.Writer, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
