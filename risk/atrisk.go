/*
Package risk detects expiring contracts and duplicate contract records.

PURPOSE:
  The at-risk detector scans won estimates with contract end dates and
  flags accounts whose soonest-expiring contract falls inside a 0-180 day
  lookahead window. The duplicate detector (duplicates.go) then inspects
  the detector's intermediate candidate sets for likely bad data.

WINDOW SEMANTICS:
  daysUntil = contract_end - asOf, whole days, midnight to midnight.
  Both edges are inclusive: exactly 180 days out is in, 181 is out, and a
  contract that expired yesterday (daysUntil = -1) is out.

REPRESENTATIVE SELECTION:
  One record per account: the smallest daysUntil wins. Ties resolve to the
  lexicographically lowest estimate ID, so results never depend on input
  order.

SNOOZES:
  An account with an active, non-expired snooze is excluded from the
  output. Its candidate set is still computed - snoozing silences the
  renewal alert, not the data-quality scan.
*/
package risk

import (
	"sort"
	"time"

	"github.com/warp/revenue-engine/crm"
)

// WindowDays is the at-risk lookahead window.
const WindowDays = 180

// AtRiskAccount is one account's representative at-risk record.
type AtRiskAccount struct {
	AccountID        crm.AccountID  `json:"account_id"`
	AccountName      string         `json:"account_name"`
	ContractEnd      crm.Date       `json:"contract_end"`
	DaysUntilRenewal int            `json:"days_until_renewal"`
	EstimateID       crm.EstimateID `json:"estimate_id"`
}

// Candidate is an estimate inside the at-risk window, before representative
// selection. The duplicate detector consumes these.
type Candidate struct {
	Estimate  crm.Estimate
	DaysUntil int
}

// Detection is the full output of one at-risk scan.
type Detection struct {
	// AtRisk is sorted ascending by days until renewal, then account ID.
	AtRisk []AtRiskAccount

	// Candidates holds every in-window estimate per account, including
	// accounts later suppressed by a snooze.
	Candidates map[crm.AccountID][]Candidate
}

// Detect runs one at-risk scan over a consistent snapshot as of the given
// instant. Pure: the same inputs always yield the same detection.
func Detect(accounts []crm.Account, estimates []crm.Estimate, snoozes []crm.Snooze, asOf time.Time) Detection {
	today := crm.DateOf(asOf)

	names := make(map[crm.AccountID]crm.Account, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a
	}

	candidates := make(map[crm.AccountID][]Candidate)
	for _, e := range estimates {
		if e.AccountID == "" || !e.Countable() || e.ContractEnd == nil {
			continue
		}
		account, known := names[e.AccountID]
		if !known || account.Archived {
			continue
		}
		days := crm.DaysBetween(today, *e.ContractEnd)
		if days < 0 || days > WindowDays {
			continue
		}
		candidates[e.AccountID] = append(candidates[e.AccountID], Candidate{Estimate: e, DaysUntil: days})
	}

	snoozed := make(map[crm.AccountID]bool)
	for _, s := range snoozes {
		if s.Active(asOf) {
			snoozed[s.AccountID] = true
		}
	}

	var atRisk []AtRiskAccount
	for accountID, cands := range candidates {
		if snoozed[accountID] {
			continue
		}
		rep := representative(cands)
		atRisk = append(atRisk, AtRiskAccount{
			AccountID:        accountID,
			AccountName:      names[accountID].Name,
			ContractEnd:      *rep.Estimate.ContractEnd,
			DaysUntilRenewal: rep.DaysUntil,
			EstimateID:       rep.Estimate.ID,
		})
	}

	sort.Slice(atRisk, func(i, j int) bool {
		if atRisk[i].DaysUntilRenewal != atRisk[j].DaysUntilRenewal {
			return atRisk[i].DaysUntilRenewal < atRisk[j].DaysUntilRenewal
		}
		return atRisk[i].AccountID < atRisk[j].AccountID
	})

	return Detection{AtRisk: atRisk, Candidates: candidates}
}

// representative picks the soonest-expiring candidate; equal daysUntil
// resolves to the lowest estimate ID.
func representative(cands []Candidate) Candidate {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.DaysUntil < best.DaysUntil ||
			(c.DaysUntil == best.DaysUntil && c.Estimate.ID < best.Estimate.ID) {
			best = c
		}
	}
	return best
}
