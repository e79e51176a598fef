package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/revenue-engine/crm"
	"github.com/warp/revenue-engine/store/sqlite"
)

// newSegmentsCommand classifies every account for a year and prints the
// assignments alongside the attributed revenue behind them.
func newSegmentsCommand(dbPath *string) *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "segments",
		Short: "Classify accounts into A/B/C/D revenue segments",
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

			ctx := cmd.Context()
			accounts, err := store.ListAccounts(ctx)
			if err != nil {
				return err
			}
			estimates, err := store.ListEstimates(ctx)
			if err != nil {
				return err
			}

			byAccount := crm.GroupByAccount(estimates)
			total := crm.TotalRevenue(accounts, byAccount, targetYear)
			segments := crm.ClassifyAll(accounts, estimates, targetYear)

			sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "total attributed revenue for %d: %s\n\n", targetYear, total)
			fmt.Fprintln(tw, "SEGMENT\tACCOUNT\tREVENUE")
			for _, a := range accounts {
				segment, ok := segments[a.ID]
				if !ok {
					continue
				}
				revenue := crm.AccountRevenue(a, byAccount[a.ID], targetYear)
				fmt.Fprintf(tw, "%s\t%s\t%s\n", segment, a.Name, revenue)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "target year (0 = current year)")
	return cmd
}
