package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/auth"
	"github.com/MrSnakeDoc/shelf/internal/config"
)

type tokenResult struct {
	Owner     string    `json:"owner"`
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		owner, email string
		ttl          time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local development",
		Long: `Mint an access token signed with SHELF_JWT_SECRET, as the identity
provider would. Use it as "Authorization: Bearer <token>" or exchange it for a
session cookie at POST /auth/session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, issuer, err := config.LoadSigning()
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot sign tokens", err)
			}

			tok, exp, err := auth.NewIssuer(secret, issuer, ttl).Issue(owner, email)
			if err != nil {
				return WrapExitError(ExitCommandError, "cannot sign token", err)
			}

			if opts.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), tokenResult{Owner: owner, Token: tok, ExpiresAt: exp})
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "owner (user id) placed in the sub claim")
	cmd.Flags().StringVar(&email, "email", "", "optional email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
