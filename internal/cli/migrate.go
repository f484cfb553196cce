package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/backend"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			err = h.Migrate(ctx)
			switch {
			case errors.Is(err, backend.ErrNoMigrations):
				fmt.Fprintf(cmd.OutOrStdout(), "backend %s has no migrations\n", h.Kind)
				return nil
			case err != nil:
				return WrapExitError(ExitFailure, "migration failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend %s is up to date\n", h.Kind)
			return nil
		},
	}
}
