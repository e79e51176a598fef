// Package commands implements the crmctl CLI: ad-hoc reconciliation jobs
// against the same SQLite store the server uses. Useful when the cache
// needs rebuilding outside the scheduler, or for inspecting engine output
// without going through HTTP.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/revenue-engine/internal/buildinfo"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	var dbPath string

	rootCmd := &cobra.Command{
		Use:     "crmctl",
		Short:   "Revenue attribution and account risk engine",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "crm.db", "SQLite database path")

	rootCmd.AddCommand(newRefreshCommand(&dbPath))
	rootCmd.AddCommand(newAtRiskCommand(&dbPath))
	rootCmd.AddCommand(newSegmentsCommand(&dbPath))

	return rootCmd
}
