package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/setup"
)

type setupResult struct {
	Backend string        `json:"backend"`
	OK      bool          `json:"ok"`
	Checks  []setup.Check `json:"checks"`
}

func newSetupCommand(opts *RootOptions) *cobra.Command {
	var initSchema bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Verify that the backend is ready",
		Long: `Verify that the backend holds everything the server relies on: for
Postgres the bookmarks table, forced row-level security, its owner policies
and the change trigger; for Redis reachability, pub/sub and the key layout.

Exits with status 1 and remediation steps when a check fails. With --init,
missing schema is created first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			if initSchema {
				if err := h.Store.InitSchema(ctx); err != nil {
					return WrapExitError(ExitCommandError, "schema initialization failed", err)
				}
			}

			checks := h.Store.CheckSchema(ctx)
			ok := setup.Passed(checks)

			if opts.jsonOutput() {
				if err := writeJSON(cmd.OutOrStdout(), setupResult{Backend: h.Kind, OK: ok, Checks: checks}); err != nil {
					return err
				}
			} else {
				setup.Print(cmd.OutOrStdout(), h.Kind, checks)
			}

			if !ok {
				return NewExitError(ExitFailure, "backend is not ready")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&initSchema, "init", false, "create missing schema before checking")
	return cmd
}
