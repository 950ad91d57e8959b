package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/ir"
)

// NewPullCommand creates the pull command.
func NewPullCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SheetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pull <table> <sheet.csv>",
		Short: "Load every active record of a table into a sheet",
		Long: `Replace the sheet's contents with the table's active records. Nested
records are flattened into their leaf fields; the id column leads and the
other system columns follow the data. The sheet is created when it does
not exist.

Examples:
  gridsync pull cargo_types cargo.csv
  gridsync pull ports ports.csv --out ports-snapshot.csv`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, false, args[0], args[1], cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the sheet here instead of over the input")
	return cmd
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SheetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh <table> <sheet.csv>",
		Short: "Overwrite the selected rows with the store's current version",
		Long: `Fetch the table and overwrite each selected row that carries an id with
the store's current version of that record. Columns the record does not
carry are left as they are.

Examples:
  gridsync refresh cargo_types cargo.csv --rows 2-4`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, true, args[0], args[1], cmd)
		},
	}
	opts.bindFlags(cmd)
	return cmd
}

// runSync runs a pull, or a refresh of the selection.
func runSync(opts *SheetOptions, refresh bool, tableName, sheetPath string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	s, err := openSession(ctx, opts, cmd, tableName, sheetPath, !refresh)
	if err != nil {
		return formatter.Fail(err, CodeCommand, ExitCommandError)
	}

	r := s.reconciler()
	var summary ir.Summary
	if refresh {
		summary, err = r.Refresh(ctx, s.sheet, s.table)
	} else {
		summary, err = r.Pull(ctx, s.sheet, s.table)
	}
	if err != nil {
		return formatter.Fail(err, CodeCommand, ExitFailure)
	}
	if err := s.finish(opts, sheetPath); err != nil {
		return formatter.Fail(err, CodeCommand, ExitCommandError)
	}
	formatter.VerboseLog("Wrote %d row(s) to %s", s.sheet.Len(), sheetPath)
	return formatter.Pass("", summary, summary)
}
