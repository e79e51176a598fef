/*
Package crm provides the revenue attribution core.

PURPOSE:
  This package contains the typed records and pure functions that turn a
  flat snapshot of accounts and estimates into per-year revenue figures and
  A/B/C/D segment assignments. Everything here is deterministic and
  side-effect free: the same snapshot and target year always produce the
  same numbers, no matter how many times the engine is re-run.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a customer record with an optional manual revenue override
  - Estimate: an immutable sales estimate, possibly a multi-year contract
  - Snooze: an externally-managed suppression of at-risk reporting
  - Segment: the A/B/C/D classification tier

DESIGN PRINCIPLES:
  1. Immutability: estimates are inputs; the engine never mutates them
  2. Precision: decimal.Decimal for all money, no float drift
  3. Explicit optionality: missing dates and prices are nil pointers,
     never sentinel values
  4. Explicit time: the target year is a parameter everywhere, never
     package state

SEE ALSO:
  - date.go: calendar math and contract-year bucketing
  - attribution.go: per-year contribution of a single estimate
  - aggregate.go: account and total revenue sums
  - segment.go: the classifier
*/
package crm

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type EstimateID string
type SnoozeID string

// =============================================================================
// SEGMENT - Classification tier
// =============================================================================

type Segment string

const (
	SegmentA    Segment = "A" // >= 15% of total attributed revenue
	SegmentB    Segment = "B" // >= 5%
	SegmentC    Segment = "C" // everything else, and the degenerate default
	SegmentD    Segment = "D" // project-only accounts (standard, no service)
	SegmentNone Segment = ""  // not yet classified
)

// Valid reports whether s is one of the four assigned tiers.
func (s Segment) Valid() bool {
	switch s {
	case SegmentA, SegmentB, SegmentC, SegmentD:
		return true
	}
	return false
}

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a customer record. Accounts are created by upstream import and
// never deleted, only archived. RevenueSegment is the last computed tier;
// only the classifier writes it.
type Account struct {
	ID       AccountID
	Name     string
	Archived bool

	// AnnualRevenue is a manual override used when no estimate-derived
	// revenue exists for the target year. Nil when unset.
	AnnualRevenue *decimal.Decimal

	RevenueSegment Segment
}

// =============================================================================
// ESTIMATE
// =============================================================================

// Estimate statuses are free text upstream; only the normalized value
// below contributes revenue.
const StatusWon = "won"

// Estimate type values recognized by the project-only override.
const (
	TypeStandard = "standard"
	TypeService  = "service"
)

// Estimate is an immutable sales estimate. When both ContractStart and
// ContractEnd are present the estimate represents a multi-year service
// contract whose price is amortized across calendar years.
type Estimate struct {
	ID     EstimateID
	Number string

	// AccountID is empty for unlinked estimates, which are excluded from
	// attribution entirely.
	AccountID AccountID

	Status       string // free text, interpreted case-insensitively
	EstimateType string // e.g. "standard", "service"

	TotalPrice        *decimal.Decimal
	TotalPriceWithTax *decimal.Decimal

	EstimateDate  *Date // creation date
	ContractStart *Date
	ContractEnd   *Date

	// Division and Address identify the contracting branch; the duplicate
	// detector groups on them.
	Division string
	Address  string

	ExcludeStats bool
	Archived     bool
}

// NormalizeStatus lowercases and trims a free-text status for comparison.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsWon reports whether the status normalizes to "won".
func (e Estimate) IsWon() bool {
	return NormalizeStatus(e.Status) == StatusWon
}

// Countable reports whether the estimate participates in calculations at
// all: won, not excluded from stats, not archived.
func (e Estimate) Countable() bool {
	return e.IsWon() && !e.ExcludeStats && !e.Archived
}

// ResolvePrice picks the usable price for an estimate: the with-tax value
// when present and non-zero, falling back to the base price when present
// and non-zero. Returns false when neither is usable; such an estimate
// never contributes to any year.
func ResolvePrice(e Estimate) (decimal.Decimal, bool) {
	if e.TotalPriceWithTax != nil && !e.TotalPriceWithTax.IsZero() {
		return *e.TotalPriceWithTax, true
	}
	if e.TotalPrice != nil && !e.TotalPrice.IsZero() {
		return *e.TotalPrice, true
	}
	return decimal.Zero, false
}

// =============================================================================
// SNOOZE - At-risk suppression (externally managed, opaque here)
// =============================================================================

type Snooze struct {
	ID        SnoozeID
	AccountID AccountID
	ExpiresAt time.Time
}

// Active reports whether the snooze suppresses at-risk reporting at the
// given instant.
func (s Snooze) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}
