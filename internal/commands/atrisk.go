package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/revenue-engine/risk"
	"github.com/warp/revenue-engine/store/sqlite"
)

// newAtRiskCommand runs an at-risk scan directly against the store and
// prints the results, bypassing the cache entirely.
func newAtRiskCommand(dbPath *string) *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "at-risk",
		Short: "List accounts with contracts expiring in the next 180 days",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(*dbPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			now := time.Now()
			if asOf != "" {
				parsed, err := time.Parse("2006-01-02", asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of date: %w", err)
				}
				now = parsed
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
			snoozes, err := store.ListSnoozes(ctx)
			if err != nil {
				return err
			}

			detection := risk.Detect(accounts, estimates, snoozes, now)
			if len(detection.AtRisk) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no at-risk accounts")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DAYS\tACCOUNT\tCONTRACT END\tESTIMATE")
			for _, a := range detection.AtRisk {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
					a.DaysUntilRenewal, a.AccountName, a.ContractEnd, a.EstimateID)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "evaluate the window as of this date (YYYY-MM-DD)")
	return cmd
}
