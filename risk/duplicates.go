/*
duplicates.go - Duplicate contract record detection

PURPOSE:
  Within an account's at-risk candidate set, multiple estimates sharing the
  same (division, address) usually mean the same contract was entered more
  than once. Groups are surfaced for manual review; they never block
  at-risk reporting.

LIFECYCLE:
  detected -> resolved. A scan creates a group as "detected"; a human marks
  it "resolved" (ResolvedAt set). A resolved group is never re-detected for
  the same estimate-ID set: the fingerprint of the sorted IDs identifies
  the group, so the group only reappears when the underlying estimates
  actually change.
*/
package risk

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/revenue-engine/crm"
)

type GroupStatus string

const (
	GroupDetected GroupStatus = "detected"
	GroupResolved GroupStatus = "resolved"
)

// DuplicateGroup is a data-quality finding: two or more in-window estimates
// for one account sharing division and address.
type DuplicateGroup struct {
	ID          string         `json:"id"`
	AccountID   crm.AccountID  `json:"account_id"`
	AccountName string         `json:"account_name"`
	Division    string         `json:"division"`
	Address     string         `json:"address"`

	EstimateIDs     []crm.EstimateID `json:"estimate_ids"`
	EstimateNumbers []string         `json:"estimate_numbers"`
	ContractEnds    []crm.Date       `json:"contract_ends"`

	// Fingerprint identifies the group by its sorted estimate-ID set.
	Fingerprint string      `json:"fingerprint"`
	Status      GroupStatus `json:"status"`
	DetectedAt  time.Time   `json:"detected_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

// Fingerprint derives the stable identity of an estimate-ID set.
func Fingerprint(ids []crm.EstimateID) string {
	sorted := make([]string, len(ids))
	for i, id := range ids {
		sorted[i] = string(id)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, "|")
}

type divisionAddress struct {
	division string
	address  string
}

// DetectDuplicates groups each account's at-risk candidates by
// (division, address) and reports every group with more than one estimate.
// Estimates within a group and groups themselves are sorted so output is
// deterministic regardless of input order.
func DetectDuplicates(accounts []crm.Account, candidates map[crm.AccountID][]Candidate, detectedAt time.Time) []DuplicateGroup {
	names := make(map[crm.AccountID]string, len(accounts))
	for _, a := range accounts {
		names[a.ID] = a.Name
	}

	var groups []DuplicateGroup
	for accountID, cands := range candidates {
		byLocation := make(map[divisionAddress][]Candidate)
		for _, c := range cands {
			k := divisionAddress{
				division: strings.TrimSpace(c.Estimate.Division),
				address:  strings.TrimSpace(c.Estimate.Address),
			}
			byLocation[k] = append(byLocation[k], c)
		}

		for loc, members := range byLocation {
			if len(members) < 2 {
				continue
			}
			sort.Slice(members, func(i, j int) bool {
				return members[i].Estimate.ID < members[j].Estimate.ID
			})

			group := DuplicateGroup{
				ID:          uuid.NewString(),
				AccountID:   accountID,
				AccountName: names[accountID],
				Division:    loc.division,
				Address:     loc.address,
				Status:      GroupDetected,
				DetectedAt:  detectedAt,
			}
			for _, m := range members {
				group.EstimateIDs = append(group.EstimateIDs, m.Estimate.ID)
				group.EstimateNumbers = append(group.EstimateNumbers, m.Estimate.Number)
				group.ContractEnds = append(group.ContractEnds, *m.Estimate.ContractEnd)
			}
			group.Fingerprint = Fingerprint(group.EstimateIDs)
			groups = append(groups, group)
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].AccountID != groups[j].AccountID {
			return groups[i].AccountID < groups[j].AccountID
		}
		if groups[i].Division != groups[j].Division {
			return groups[i].Division < groups[j].Division
		}
		return groups[i].Address < groups[j].Address
	})
	return groups
}

// Resolve marks a group resolved at the given instant.
func (g *DuplicateGroup) Resolve(at time.Time) {
	g.Status = GroupResolved
	g.ResolvedAt = &at
}
