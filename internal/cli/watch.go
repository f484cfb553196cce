package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/reconcile"
	"github.com/MrSnakeDoc/shelf/internal/session"
)

func newWatchCommand(opts *RootOptions) *cobra.Command {
	var (
		owner string
		dur   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print an owner's collection and every change to it",
		Long: `Open a reconciling session for an owner, exactly like the server
does, and print the collection each time it changes. Useful to check that
change notifications flow from the backend.

Runs until interrupted, or for --for when set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if dur > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, dur)
				defer cancel()
			}

			h, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			s, err := session.Open(ctx, owner, h.Store, h.Store, session.Options{Logger: opts.logger()})
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot open session", err)
			}
			defer s.Close()

			changes, stop := s.Store().Watch()
			defer stop()

			if err := s.EnsureLoaded(ctx); err != nil {
				return WrapExitError(ExitFailure, "initial load failed", err)
			}

			show := func() error {
				snap := s.Store().Snapshot()
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), snap)
				}
				printSnapshot(cmd.OutOrStdout(), snap)
				return nil
			}
			if err := show(); err != nil {
				return err
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-s.Done():
					return nil
				case <-changes:
					if err := show(); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner (user id) to watch")
	cmd.Flags().DurationVar(&dur, "for", 0, "stop after this long (0 = until interrupted)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func printSnapshot(w io.Writer, snap reconcile.Snapshot) {
	fmt.Fprintf(w, "# %s v%d: %d bookmark(s)\n", snap.Owner, snap.Version, len(snap.Items))
	for _, b := range snap.Items {
		fmt.Fprintf(w, "%s  %s  %s  %s\n", b.CreatedAt.Format(time.RFC3339), b.ID, b.Title, b.Target)
	}
}
