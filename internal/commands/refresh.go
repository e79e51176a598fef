package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/revenue-engine/engine"
	"github.com/warp/revenue-engine/store/sqlite"
)

// newRefreshCommand runs one full refresh pass and prints a summary.
func newRefreshCommand(dbPath *string) *cobra.Command {
	var year int
	var verbose bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Run a reconciliation pass and rebuild the cache snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(*dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			targetYear := year
			if targetYear == 0 {
				targetYear = time.Now().Year()
			}

			eng := engine.New(store, store)
			result, err := eng.Refresh(cmd.Context(), targetYear)
			if err != nil {
				return err
			}

			if verbose {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"run %s: year %d, %d at-risk, %d new duplicate groups, %d segments changed\n",
				result.RunID, result.TargetYear, len(result.AtRisk),
				len(result.NewGroups), result.SegmentsChanged)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "target year (0 = current year)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print full result as JSON")
	return cmd
}
