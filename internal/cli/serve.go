package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/gridsync/internal/catalog"
	"github.com/roach88/gridsync/internal/metrics"
	"github.com/roach88/gridsync/internal/server"
	"github.com/roach88/gridsync/internal/store"
)

// shutdownTimeout bounds how long in-flight requests may run after a stop
// signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen      string
	Database    string
	SeedCatalog bool

	// Ready is called with the bound address once the listener is open
	// (for testing).
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference record store",
		Long: `Serve the bulk endpoint over a versioned record store.

The database is a SQLite file path or a postgres:// URL. With
--seed-catalog the CUE table catalog is published to the table_catalog
target before the listener opens.

Example:
  gridsync serve --db ./gridsync.db --listen :8080
  gridsync serve --db postgres://localhost/gridsync --seed-catalog`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite path or postgres:// URL (overrides config)")
	cmd.Flags().BoolVar(&opts.SeedCatalog, "seed-catalog", false, "publish the CUE catalog on startup")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	listen, dsn := cfg.Listen, cfg.Database
	if opts.Listen != "" {
		listen = opts.Listen
	}
	if opts.Database != "" {
		dsn = opts.Database
	}

	logger.Info("opening database", "dialect", string(store.DialectFor(dsn)))
	st, err := store.Open(dsn, store.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.SeedCatalog {
		cat, errs := catalog.Load(cfg.CatalogDir, catalog.LoadModeFailFast)
		if len(errs) > 0 {
			return WrapExitError(ExitCommandError, "failed to load catalog", errs[0])
		}
		resp, err := publishCatalog(ctx, st, cat, cfg.CallerID)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to seed catalog", err)
		}
		logger.Info("catalog seeded", "tables", len(resp.Data), "rejected", len(resp.Errors))
	}

	collectors := metrics.New(true)
	srv := &http.Server{
		Handler: server.New(st,
			server.WithAPIKey(cfg.APIKey),
			server.WithMetrics(collectors),
			server.WithLogger(logger),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	addr := ln.Addr().String()
	logger.Info("serving", "addr", addr, "auth", cfg.APIKey != "")
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s\n", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
