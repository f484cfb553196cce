package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/sources/homepage"
)

type importResult struct {
	Owner    string             `json:"owner"`
	Created  int                `json:"created"`
	Existing int                `json:"existing"`
	Skipped  []homepage.Skipped `json:"skipped,omitempty"`
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	var owner, file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a Homepage bookmarks.yaml for one owner",
		Long: `Import the bookmarks of a Homepage dashboard (bookmarks.yaml) into
an owner's collection. URLs the owner already saved are left alone, so the
import can be repeated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := homepage.NewLoader(file).Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot read bookmarks", err)
			}

			ctx := cmd.Context()
			h, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			res, err := homepage.NewImporter(h.Store, opts.logger()).Import(ctx, owner, config)
			out := importResult{Owner: owner, Created: res.Created, Existing: res.Existing, Skipped: res.Skipped}
			if opts.jsonOutput() {
				if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
					return werr
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d, already present %d, skipped %d\n",
					out.Created, out.Existing, len(out.Skipped))
				for _, s := range out.Skipped {
					fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s/%s: %s\n", s.Category, s.Name, s.Reason)
				}
			}
			if err != nil {
				return WrapExitError(ExitFailure, "import failed", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner (user id) receiving the bookmarks")
	cmd.Flags().StringVarP(&file, "file", "f", "bookmarks.yaml", "Homepage bookmarks.yaml")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
