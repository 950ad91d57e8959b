package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/config"
	"github.com/roach88/gridsync/internal/remote"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Flag overrides, applied over the file and the environment.
	Endpoint string
	APIKey   string
	CallerID string

	cfg   *config.Config
	store remote.Store // replaces the HTTP client (for testing)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the gridsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "gridsync",
		Short: "gridsync - batch reconciliation between a grid and a record store",
		Long: `gridsync pushes selected sheet rows to a versioned record store as one
batch, matches the store's per-row results back to the rows that caused
them and writes identifiers and versions into the sheet.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath, "path to the config file")
	cmd.PersistentFlags().StringVar(&opts.Endpoint, "endpoint", "", "record store base URL (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", "", "record store API key (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.CallerID, "caller", "", "caller id recorded on written rows (overrides config)")

	cmd.AddCommand(NewPushCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewPullCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewTablesCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Config loads the configuration once and applies the flag overrides.
func (o *RootOptions) Config() (*config.Config, error) {
	if o.cfg != nil {
		return o.cfg, nil
	}
	path := o.ConfigPath
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.Endpoint != "" {
		cfg.Endpoint = o.Endpoint
	}
	if o.APIKey != "" {
		cfg.APIKey = o.APIKey
	}
	if o.CallerID != "" {
		cfg.CallerID = o.CallerID
	}
	o.cfg = cfg
	return cfg, nil
}

// Logger installs a text handler on w as the default logger, at debug
// level when --verbose is set.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if o.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// storeClient returns the store the command talks to: the HTTP client for
// the configured endpoint unless a store was injected.
func (o *RootOptions) storeClient(cfg *config.Config, logger *slog.Logger) (remote.Store, error) {
	if o.store != nil {
		return o.store, nil
	}
	c, err := remote.NewClient(cfg.Endpoint, cfg.APIKey,
		remote.WithLogger(logger),
		remote.WithTimeout(time.Duration(cfg.Timeout)))
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
