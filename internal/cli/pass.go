package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/reconcile"
)

// PassOptions holds flags for push and delete.
type PassOptions struct {
	SheetOptions
	Yes bool // skip the delete confirmation
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassOptions{SheetOptions: SheetOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "push <table> <sheet.csv>",
		Short: "Insert or update the selected rows",
		Long: `Push the selected rows of a CSV sheet to the record store as one upsert.

Rows without an id are inserted, rows with an id are updated. The ids and
versions the store assigns are written back into the sheet.

Exit codes:
  0 - Every row was accepted
  1 - The pass failed or some rows did not reconcile
  2 - Command error (unreadable sheet, unknown table, etc.)

Examples:
  gridsync push cargo_types cargo.csv
  gridsync push cargo_types cargo.csv --rows 2-5,9
  gridsync push cargo_types cargo.csv --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, ir.IntentUpsert, args[0], args[1], cmd)
		},
	}
	opts.bindFlags(cmd)
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PassOptions{SheetOptions: SheetOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "delete <table> <sheet.csv>",
		Short: "Delete the selected rows from the store",
		Long: `Delete the records behind the selected rows. Rows without an id are
skipped; deleted rows are marked inactive in the sheet.

Examples:
  gridsync delete cargo_types cargo.csv --rows 3
  gridsync delete cargo_types cargo.csv --rows 3-4 --yes`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPass(opts, ir.IntentDelete, args[0], args[1], cmd)
		},
	}
	opts.bindFlags(cmd)
	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "delete without asking for confirmation")
	return cmd
}

func runPass(opts *PassOptions, intent ir.Intent, tableName, sheetPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, &opts.SheetOptions, cmd, tableName, sheetPath, false)
	if err != nil {
		return formatter.Fail(err, CodeCommand, ExitCommandError)
	}
	formatter.VerboseLog("Selected %d row(s) of %s for %s", len(s.sheet.Selection()), sheetPath, intent)

	if intent == ir.IntentDelete && !opts.Yes {
		if !confirm(cmd, fmt.Sprintf("Delete the selected rows from %s?", s.table.Name)) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled.")
			return nil
		}
	}

	report, passErr := s.reconciler().Run(ctx, s.sheet, s.table, intent)
	if report == nil {
		return formatter.Fail(passErr, CodeCommand, ExitFailure)
	}
	if err := s.finish(&opts.SheetOptions, sheetPath); err != nil {
		return formatter.Fail(err, CodeCommand, ExitCommandError)
	}

	// A pass that failed before demultiplexing has no summary to show.
	if passErr != nil && !ir.IsCompletedPass(passErr) {
		return formatter.Fail(passErr, CodeCommand, ExitFailure)
	}

	if err := formatter.Pass(report.PassID, report.Summary, report); err != nil {
		return err
	}
	if opts.Format != "json" {
		printRowErrors(formatter, report)
	}
	if err := report.IntegrityError(); err != nil {
		fmt.Fprintf(formatter.GetErrWriter(), "warning: %v\n", err)
	}
	if passErr != nil {
		exitErr := WrapExitError(ExitFailure, string(ir.CodeOf(passErr)), passErr)
		exitErr.Reported = true
		return exitErr
	}
	return nil
}

// printRowErrors lists the rows the store rejected and the rows whose
// write-back failed, with 1-based row numbers.
func printRowErrors(f *OutputFormatter, report *reconcile.Report) {
	for _, e := range report.Result.Errors {
		fmt.Fprintf(f.Writer, "  row %d: %s\n", e.RowPosition+1, e.Message)
	}
	for _, e := range report.WriteBack.Failed {
		fmt.Fprintf(f.Writer, "  row %d: write-back failed: %s\n", e.RowPosition+1, e.Message)
	}
}

// confirm asks a yes/no question on the command's input. Anything but
// y or yes declines.
func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", question)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
