/*
aggregate.go - Revenue sums over a consistent snapshot

PURPOSE:
  Sums attributed revenue per account and across all accounts for a target
  year. TotalRevenue is the classification denominator; it must be computed
  once per classification pass over one consistent snapshot of accounts and
  estimates. Recomputing it mid-pass with partially updated data would make
  segment assignments depend on iteration order.

ELIGIBILITY:
  An estimate contributes to year-based revenue totals only when its status
  normalizes to "won", it is neither excluded from stats nor archived, and
  its resolved price is positive. Attribution itself (attribution.go)
  additionally decides WHICH years it contributes to.

SEE ALSO:
  - attribution.go: per-estimate, per-year contribution
  - segment.go: consumes these sums
*/
package crm

import "github.com/shopspring/decimal"

// revenueEligible applies the invariant above: won, counted, positive price.
func revenueEligible(e Estimate) bool {
	if !e.Countable() {
		return false
	}
	price, ok := ResolvePrice(e)
	return ok && price.IsPositive()
}

// AccountRevenue sums the target-year contributions of one account's
// estimates. Pure function: no shared state, safe to call concurrently
// over the same snapshot.
func AccountRevenue(account Account, estimates []Estimate, targetYear int) decimal.Decimal {
	total := decimal.Zero
	for _, e := range estimates {
		if e.AccountID == "" || e.AccountID != account.ID {
			continue
		}
		if !revenueEligible(e) {
			continue
		}
		contrib, ok := ResolveYearContribution(e, targetYear)
		if !ok || !contrib.AppliesToYear {
			continue
		}
		total = total.Add(contrib.Amount)
	}
	return total
}

// GroupByAccount indexes estimates by owning account. Unlinked estimates
// (empty AccountID) are dropped; they can never be attributed.
func GroupByAccount(estimates []Estimate) map[AccountID][]Estimate {
	byAccount := make(map[AccountID][]Estimate)
	for _, e := range estimates {
		if e.AccountID == "" {
			continue
		}
		byAccount[e.AccountID] = append(byAccount[e.AccountID], e)
	}
	return byAccount
}

// TotalRevenue sums AccountRevenue across every account. This is the
// denominator for segmentation and must come from the same snapshot as the
// per-account numerators.
func TotalRevenue(accounts []Account, estimatesByAccount map[AccountID][]Estimate, targetYear int) decimal.Decimal {
	total := decimal.Zero
	for _, a := range accounts {
		total = total.Add(AccountRevenue(a, estimatesByAccount[a.ID], targetYear))
	}
	return total
}
