package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/catalog"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/remote"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	Remote  bool // read the store's catalog instead of the CUE files
	Publish bool // upsert the CUE catalog into the store
}

// TableGroup is one table type with its tables, in JSON output.
type TableGroup struct {
	Type   string         `json:"type"`
	Tables []ir.TableSpec `json:"tables"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the table catalog grouped by type",
		Long: `List every table with its type and unique keys.

The catalog is read from the CUE files in catalog_dir, or from the store's
table_catalog target with --remote. --publish upserts the CUE catalog into
the store so other clients can resolve the tables.

Examples:
  gridsync tables
  gridsync tables --remote --format json
  gridsync tables --publish`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, cmd)
		},
	}
	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "read the catalog from the store")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "publish the CUE catalog to the store")
	cmd.MarkFlagsMutuallyExclusive("remote", "publish")
	return cmd
}

func runTables(opts *TablesOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	cfg, err := opts.Config()
	if err != nil {
		return formatter.Fail(err, CodeCommand, ExitCommandError)
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	var st remote.Store
	if opts.Remote || opts.Publish {
		if st, err = opts.storeClient(cfg, logger); err != nil {
			return formatter.Fail(err, CodeCommand, ExitCommandError)
		}
	}

	var cat *catalog.Catalog
	if opts.Remote {
		cat, err = remoteCatalog(ctx, st)
		if err != nil {
			return formatter.Fail(err, CodeCatalog, ExitFailure)
		}
	} else {
		var errs []error
		cat, errs = catalog.Load(cfg.CatalogDir, catalog.LoadModeFailFast)
		if len(errs) > 0 {
			return formatter.Fail(errs[0], CodeCatalog, ExitCommandError)
		}
	}

	if opts.Publish {
		resp, err := publishCatalog(ctx, st, cat, cfg.CallerID)
		if err != nil {
			return formatter.Fail(err, CodeCatalog, ExitFailure)
		}
		if len(resp.Errors) > 0 {
			return formatter.Fail(fmt.Errorf("store rejected %d catalog row(s): %s",
				len(resp.Errors), resp.Errors[0].Error), CodeCatalog, ExitFailure)
		}
		formatter.VerboseLog("Published %d table(s) to %s", len(resp.Data), catalog.RemoteTarget)
	}

	groups := make([]TableGroup, 0, len(cat.Types()))
	byType := cat.GroupByType()
	for _, typ := range cat.Types() {
		groups = append(groups, TableGroup{Type: typ, Tables: byType[typ]})
	}
	if opts.Format == "json" {
		return formatter.Success(groups)
	}
	return printTables(formatter, groups)
}

// publishCatalog upserts cat into the store's catalog target. Tables the
// target already holds are versioned rather than duplicated.
func publishCatalog(ctx context.Context, st remote.Store, cat *catalog.Catalog, callerID string) (ir.BulkResponse, error) {
	existing, err := st.Fetch(ctx, catalog.RemoteTarget)
	if err != nil {
		return ir.BulkResponse{}, fmt.Errorf("fetch %s: %w", catalog.RemoteTarget, err)
	}
	resp, err := st.Bulk(ctx, cat.BatchRequest(callerID, existing))
	if err != nil {
		return ir.BulkResponse{}, fmt.Errorf("publish catalog: %w", err)
	}
	return resp, nil
}

func printTables(f *OutputFormatter, groups []TableGroup) error {
	if len(groups) == 0 {
		fmt.Fprintln(f.Writer, "No tables.")
		return nil
	}
	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	for _, g := range groups {
		typ := g.Type
		if typ == "" {
			typ = "(untyped)"
		}
		fmt.Fprintf(tw, "%s\n", typ)
		for _, t := range g.Tables {
			keys := "-"
			if len(t.UniqueKeys) > 0 {
				keys = strings.Join(t.UniqueKeys, ", ")
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.Name, keys, t.Description)
		}
	}
	return tw.Flush()
}
