/*
segment.go - A/B/C/D revenue segmentation

PURPOSE:
  Assigns each account a classification tier from its share of total
  attributed revenue for the target year.

POLICY (in order, first match wins):
  1. Project-only override: at least one won "standard" estimate applying
     to the target year and zero "service" ones -> D, unconditionally.
     This short-circuits the percentage logic entirely; a project-only
     account with a 40% revenue share is still D.
  2. Revenue <= 0 falls back to the account's manual annual_revenue
     override when that is positive.
  3. Still no revenue signal (revenue <= 0 or total <= 0) -> C.
  4. pct = revenue/total*100; >= 15 -> A; >= 5 -> B; else C.
     Band lower bounds are inclusive; there is no upper bound.

IDEMPOTENCE:
  ClassifyAll is a pure function of (accounts, estimates, targetYear).
  Re-running it over an unchanged snapshot yields identical assignments;
  the engine relies on this on every cache refresh and reconciliation job.
*/
package crm

import (
	"github.com/shopspring/decimal"
)

var (
	segmentAThreshold = decimal.NewFromInt(15)
	segmentBThreshold = decimal.NewFromInt(5)
	hundred           = decimal.NewFromInt(100)
)

// ClassifySegment assigns one account's tier given the precomputed total.
// The estimates slice may contain estimates for other accounts; only those
// owned by the account are considered.
func ClassifySegment(account Account, totalRevenue decimal.Decimal, estimates []Estimate, targetYear int) Segment {
	if projectOnly(account, estimates, targetYear) {
		return SegmentD
	}

	revenue := AccountRevenue(account, estimates, targetYear)
	if !revenue.IsPositive() && account.AnnualRevenue != nil && account.AnnualRevenue.IsPositive() {
		revenue = *account.AnnualRevenue
	}

	if !revenue.IsPositive() || !totalRevenue.IsPositive() {
		return SegmentC
	}

	pct := revenue.Div(totalRevenue).Mul(hundred)
	switch {
	case pct.GreaterThanOrEqual(segmentAThreshold):
		return SegmentA
	case pct.GreaterThanOrEqual(segmentBThreshold):
		return SegmentB
	default:
		return SegmentC
	}
}

// projectOnly reports whether the account's won estimates applying to the
// target year include at least one "standard" type and no "service" type.
func projectOnly(account Account, estimates []Estimate, targetYear int) bool {
	sawStandard := false
	for _, e := range estimates {
		if e.AccountID != account.ID || !e.Countable() {
			continue
		}
		contrib, ok := ResolveYearContribution(e, targetYear)
		if !ok || !contrib.AppliesToYear {
			continue
		}
		switch NormalizeStatus(e.EstimateType) {
		case TypeService:
			return false
		case TypeStandard:
			sawStandard = true
		}
	}
	return sawStandard
}

// ClassifyAll runs one classification pass over a consistent snapshot and
// returns the tier for every non-archived account. The denominator is
// computed exactly once, before any account is classified.
func ClassifyAll(accounts []Account, estimates []Estimate, targetYear int) map[AccountID]Segment {
	byAccount := GroupByAccount(estimates)
	total := TotalRevenue(accounts, byAccount, targetYear)

	segments := make(map[AccountID]Segment, len(accounts))
	for _, a := range accounts {
		if a.Archived {
			continue
		}
		segments[a.ID] = ClassifySegment(a, total, byAccount[a.ID], targetYear)
	}
	return segments
}
