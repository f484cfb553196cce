package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/shelf/internal/audit"
)

type auditResult struct {
	Clean    bool            `json:"clean"`
	Findings []audit.Finding `json:"findings"`
}

func newAuditCommand(opts *RootOptions) *cobra.Command {
	var (
		staged bool
		repo   string
	)

	cmd := &cobra.Command{
		Use:   "audit [paths...]",
		Short: "Scan files and the git staging area for credentials",
		Long: `Scan the given paths (default ".") and the staged changes of the
enclosing git repository for committed credentials: private keys, JWTs, cloud
keys, database passwords and secret-looking assignments.

Exits with status 1 when anything is found. Append "` + audit.AllowMarker + `" to a
line to silence a known false positive.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			s := audit.NewScanner()

			findings, err := s.ScanPaths(args...)
			if err != nil {
				return WrapExitError(ExitCommandError, "scan failed", err)
			}

			if staged {
				sf, err := s.ScanStaged(cmd.Context(), repo)
				switch {
				case errors.Is(err, audit.ErrNotRepository):
					if opts.Verbose {
						fmt.Fprintln(cmd.ErrOrStderr(), "not a git repository, staging area skipped")
					}
				case err != nil:
					return WrapExitError(ExitCommandError, "staging area scan failed", err)
				default:
					findings = append(findings, sf...)
				}
			}

			if opts.jsonOutput() {
				if findings == nil {
					findings = []audit.Finding{}
				}
				if err := writeJSON(cmd.OutOrStdout(), auditResult{Clean: len(findings) == 0, Findings: findings}); err != nil {
					return err
				}
			} else {
				for _, f := range findings {
					fmt.Fprintln(cmd.OutOrStdout(), f.String())
				}
			}

			if len(findings) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d possible credential(s) found", len(findings)))
			}
			if !opts.jsonOutput() {
				fmt.Fprintln(cmd.OutOrStdout(), "no credentials found")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", true, "also scan the git staging area")
	cmd.Flags().StringVar(&repo, "repo", ".", "git repository whose staging area is scanned")
	return cmd
}
