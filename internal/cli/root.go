// Package cli implements shelfctl, the operational command line of shelf.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/backend"
	"github.com/MrSnakeDoc/shelf/internal/config"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// RootOptions holds the global flags.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"

	// OpenBackend opens the configured backend. Defaults to the environment.
	OpenBackend func(ctx context.Context, log logger.Logger) (*backend.Handle, error)
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds shelfctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.OpenBackend == nil {
		opts.OpenBackend = openFromEnv
	}

	cmd := &cobra.Command{
		Use:   "shelfctl",
		Short: "Operate a shelf bookmark server",
		Long: `shelfctl checks and prepares the persistence backend, audits a checkout
for committed credentials and helps with local development.

The backend is selected with SHELF_BACKEND (redis, postgres or memory) and
configured with the same environment variables as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log backend activity to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")

	cmd.AddCommand(newSetupCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newTokenCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newEditCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func openFromEnv(ctx context.Context, log logger.Logger) (*backend.Handle, error) {
	b, err := config.LoadBackend()
	if err != nil {
		return nil, err
	}
	return backend.Open(ctx, b, log)
}

func (o *RootOptions) logger() logger.Logger {
	if !o.Verbose {
		return logger.Nop()
	}
	return logger.New("debug", true)
}

// open opens the backend, turning failures into command errors.
func (o *RootOptions) open(ctx context.Context) (*backend.Handle, error) {
	h, err := o.OpenBackend(ctx, o.logger())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot open backend", err)
	}
	return h, nil
}

func (o *RootOptions) jsonOutput() bool { return o.Format == "json" }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
