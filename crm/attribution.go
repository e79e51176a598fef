/*
attribution.go - Per-year revenue attribution for a single estimate

PURPOSE:
  Decides whether one estimate contributes revenue to a target calendar
  year, and how much. This is the heart of the engine: multi-year contract
  prices are amortized equally across their attributed years, so querying
  2025 and 2026 for the same two-year contract each yields half the price.

ATTRIBUTION POLICY (in priority order):
  1. No usable price           -> never contributes, to any year
  2. Full contract span        -> amortize price/years over the contiguous
                                  run starting at contract_start's year;
                                  an inverted span (months <= 0) excludes
                                  the estimate entirely
  3. Only contract_start       -> single-year attribution to its year
  4. Only estimate_date        -> single-year attribution to its year
  5. No usable date at all     -> attribute the full price to whatever year
                                  is queried

  Rule 5 is deliberate: dateless records are never silently dropped from
  totals. Rule 2's exclusion of inverted spans is equally deliberate and
  asymmetric with rule 5 - a contract that claims to end before it starts
  is bad data, a record with no dates is merely incomplete.

SEE ALSO:
  - date.go: DurationMonths and ContractYears
  - aggregate.go: sums these contributions per account
*/
package crm

import "github.com/shopspring/decimal"

// YearContribution is the result of attributing one estimate to one year.
type YearContribution struct {
	// AppliesToYear is true when the estimate's attributed-year set
	// contains the target year.
	AppliesToYear bool

	// Amount is the revenue attributed to the target year: price/years for
	// an applying multi-year contract, the full price for an applying
	// single-year estimate, zero otherwise.
	Amount decimal.Decimal
}

// ResolveYearContribution attributes an estimate to a target year.
// The second return value is false when the estimate is excluded from
// attribution entirely (no usable price, or an inverted contract span).
func ResolveYearContribution(e Estimate, targetYear int) (YearContribution, bool) {
	price, ok := ResolvePrice(e)
	if !ok {
		return YearContribution{}, false
	}

	if e.ContractStart != nil && e.ContractEnd != nil {
		months := DurationMonths(*e.ContractStart, *e.ContractEnd)
		if months <= 0 {
			// Malformed span: end before start. Excluded, not defaulted.
			return YearContribution{}, false
		}
		years := ContractYears(months)
		firstYear := e.ContractStart.Year()
		lastYear := firstYear + years - 1
		if targetYear < firstYear || targetYear > lastYear {
			return YearContribution{AppliesToYear: false, Amount: decimal.Zero}, true
		}
		return YearContribution{
			AppliesToYear: true,
			Amount:        price.Div(decimal.NewFromInt(int64(years))),
		}, true
	}

	if e.ContractStart != nil {
		return singleYearContribution(price, e.ContractStart.Year(), targetYear), true
	}

	if e.EstimateDate != nil {
		return singleYearContribution(price, e.EstimateDate.Year(), targetYear), true
	}

	// No usable date at all: the estimate applies to whatever year the
	// caller asks about, with the full price.
	return YearContribution{AppliesToYear: true, Amount: price}, true
}

func singleYearContribution(price decimal.Decimal, estimateYear, targetYear int) YearContribution {
	if estimateYear != targetYear {
		return YearContribution{AppliesToYear: false, Amount: decimal.Zero}
	}
	return YearContribution{AppliesToYear: true, Amount: price}
}

// AttributedYears returns the contiguous set of calendar years an estimate
// with a full contract span is attributed to, or nil when the estimate has
// no such span (or is excluded). Mostly useful for reporting and tests.
func AttributedYears(e Estimate) []int {
	if e.ContractStart == nil || e.ContractEnd == nil {
		return nil
	}
	months := DurationMonths(*e.ContractStart, *e.ContractEnd)
	if months <= 0 {
		return nil
	}
	years := ContractYears(months)
	out := make([]int, 0, years)
	for y := e.ContractStart.Year(); y < e.ContractStart.Year()+years; y++ {
		out = append(out, y)
	}
	return out
}
