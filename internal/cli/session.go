package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/catalog"
	"github.com/roach88/gridsync/internal/config"
	"github.com/roach88/gridsync/internal/grid"
	"github.com/roach88/gridsync/internal/ir"
	"github.com/roach88/gridsync/internal/metrics"
	"github.com/roach88/gridsync/internal/reconcile"
	"github.com/roach88/gridsync/internal/remote"
)

// SheetOptions holds the flags shared by commands that work on a sheet.
type SheetOptions struct {
	*RootOptions
	Rows        string // 1-based row list, empty selects every row
	Out         string // where the sheet is written, defaults to the input
	MetricsFile string // Prometheus textfile written after the pass
}

func (o *SheetOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Rows, "rows", "r", "", `rows to select, e.g. "1-3,7" (default all rows)`)
	cmd.Flags().StringVarP(&o.Out, "out", "o", "", "write the sheet here instead of over the input")
	cmd.Flags().StringVar(&o.MetricsFile, "metrics-file", "", "write pass metrics in Prometheus textfile format")
}

// session is everything one sheet command needs.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     remote.Store
	collector *metrics.Collectors
	sheet     *grid.Sheet
	table     ir.TableSpec
}

// openSession loads the config and the sheet, selects rows and resolves
// the target table. With create set a missing sheet starts empty.
func openSession(ctx context.Context, opts *SheetOptions, cmd *cobra.Command, tableName, sheetPath string, create bool) (*session, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	s := &session{
		cfg:       cfg,
		logger:    opts.Logger(cmd.ErrOrStderr()),
		collector: metrics.New(false),
	}

	s.sheet, err = loadSheet(sheetPath)
	if create && errors.Is(err, os.ErrNotExist) {
		s.sheet, err = grid.NewSheet(nil), nil
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read sheet", err)
	}
	if err := selectRows(s.sheet, opts.Rows); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid row selection", err)
	}

	s.store, err = opts.storeClient(cfg, s.logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid store endpoint", err)
	}

	s.table, err = resolveTable(ctx, cfg.CatalogDir, s.store, tableName)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to resolve table", err)
	}
	return s, nil
}

func (s *session) reconciler() *reconcile.Reconciler {
	opts := []reconcile.Option{
		reconcile.WithLogger(s.logger),
		reconcile.WithCallerID(s.cfg.CallerID),
		reconcile.WithObserver(s.collector),
	}
	if s.cfg.TenantID != nil {
		opts = append(opts, reconcile.WithSystemField("tenant_id", ir.IRInt(*s.cfg.TenantID)))
	}
	return reconcile.New(s.store, opts...)
}

// finish writes the sheet and the metrics file.
func (s *session) finish(opts *SheetOptions, sheetPath string) error {
	out := opts.Out
	if out == "" {
		out = sheetPath
	}
	if err := saveSheet(out, s.sheet); err != nil {
		return WrapExitError(ExitCommandError, "failed to write sheet", err)
	}
	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, s.collector.Registry()); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}
	return nil
}

func loadSheet(path string) (*grid.Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return grid.ReadCSV(f)
}

// saveSheet writes through a temp file in the same directory so a failed
// write leaves the previous sheet intact.
func saveSheet(path string, sheet *grid.Sheet) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".gridsync-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // No-op after rename

	if err := sheet.WriteCSV(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func selectRows(sheet *grid.Sheet, spec string) error {
	if spec == "" {
		sheet.SelectAll()
		return nil
	}
	positions, err := grid.ParseRows(spec)
	if err != nil {
		return err
	}
	return sheet.Select(positions...)
}

// errUnknownTable is returned when neither catalog names the table.
var errUnknownTable = errors.New("unknown table")

// resolveTable looks name up in the local CUE catalog when dir exists,
// then in the store's catalog target.
func resolveTable(ctx context.Context, dir string, st remote.Store, name string) (ir.TableSpec, error) {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			cat, errs := catalog.Load(dir, catalog.LoadModeFailFast)
			if len(errs) > 0 {
				return ir.TableSpec{}, errs[0]
			}
			if t, ok := cat.Lookup(name); ok {
				return t, nil
			}
		}
	}

	cat, err := remoteCatalog(ctx, st)
	if err != nil {
		return ir.TableSpec{}, err
	}
	if t, ok := cat.Lookup(name); ok {
		return t, nil
	}
	return ir.TableSpec{}, fmt.Errorf("%w %q", errUnknownTable, name)
}

func remoteCatalog(ctx context.Context, st remote.Store) (*catalog.Catalog, error) {
	records, err := st.Fetch(ctx, catalog.RemoteTarget)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", catalog.RemoteTarget, err)
	}
	return catalog.FromRecords(records)
}
