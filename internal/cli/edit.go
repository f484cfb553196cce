package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

func newEditCommand(opts *RootOptions) *cobra.Command {
	var owner, title, target string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a bookmark out of band",
		Long: `Change the title or URL of one of an owner's bookmarks directly in the
backend. Open sessions receive the change as an update event; the web
surface itself never edits in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if title == "" && target == "" {
				return NewExitError(ExitCommandError, "nothing to change: pass --title and/or --url")
			}

			ctx := cmd.Context()
			h, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			editor, ok := h.Store.(domain.Editor)
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("backend %s cannot edit bookmarks", h.Kind))
			}

			if title == "" || target == "" {
				current, err := find(cmd, h.Store, owner, id)
				if err != nil {
					return err
				}
				if title == "" {
					title = current.Title
				}
				if target == "" {
					target = current.Target
				}
			}

			b, err := editor.Update(ctx, owner, id, title, target)
			switch {
			case errors.Is(err, domain.ErrValidation):
				return WrapExitError(ExitCommandError, "invalid bookmark", err)
			case err != nil:
				return WrapExitError(ExitFailure, "edit failed", err)
			}

			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), b)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s: %s  %s\n", b.ID, b.Title, b.Target)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner (user id) of the bookmark")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&target, "url", "", "new URL")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func find(cmd *cobra.Command, g domain.Gateway, owner, id string) (domain.Bookmark, error) {
	list, err := g.List(cmd.Context(), owner)
	if err != nil {
		return domain.Bookmark{}, WrapExitError(ExitFailure, "cannot list bookmarks", err)
	}
	for _, b := range list {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bookmark{}, WrapExitError(ExitFailure, "edit failed", domain.Persistence("update", domain.ErrNotFound))
}
