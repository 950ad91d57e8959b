package cli

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/gridsync/internal/catalog"
)

// ValidationError is one catalog problem in JSON output.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Tables int               `json:"tables"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [catalog-dir]",
		Short: "Validate the CUE table catalog",
		Long: `Validate the CUE table catalog and report every problem found: table
names, missing types, malformed or reserved unique keys and tables
defined twice. Defaults to catalog_dir from the config.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(rootOpts, dir, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if dir == "" {
		cfg, err := opts.Config()
		if err != nil {
			return formatter.Fail(err, CodeCommand, ExitCommandError)
		}
		dir = cfg.CatalogDir
	}
	formatter.VerboseLog("Validating catalog in %s", dir)

	cat, errs := catalog.Load(dir, catalog.LoadModeCollectAll)
	if len(errs) == 0 {
		if opts.Format == "json" {
			return formatter.Success(ValidationResult{Valid: true, Tables: cat.Len()})
		}
		fmt.Fprintf(formatter.Writer, "✓ Catalog valid (%d table(s))\n", cat.Len())
		return nil
	}

	result := ValidationResult{Errors: make([]ValidationError, 0, len(errs))}
	for _, err := range errs {
		result.Errors = append(result.Errors, toValidationError(err))
	}

	if opts.Format == "json" {
		if err := formatter.Error(catalog.ErrCodeGeneric, "catalog validation failed", result); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Catalog invalid (%d error(s))\n", len(result.Errors))
		for _, e := range result.Errors {
			loc := ""
			if e.File != "" {
				loc = fmt.Sprintf("%s:%d: ", e.File, e.Line)
			}
			fmt.Fprintf(formatter.Writer, "  %s[%s] %s\n", loc, e.Code, e.Message)
		}
	}
	return &ExitError{Code: ExitFailure, Message: "catalog validation failed", Reported: true}
}

func toValidationError(err error) ValidationError {
	var loadErr *catalog.LoadError
	if !errors.As(err, &loadErr) {
		return ValidationError{Code: catalog.ErrCodeGeneric, Message: err.Error()}
	}
	ve := ValidationError{Code: loadErr.Code, Message: loadErr.Message}
	if pos := loadErr.Pos; pos != token.NoPos && pos.IsValid() {
		ve.File = pos.Filename()
		ve.Line = pos.Line()
	}
	return ve
}
