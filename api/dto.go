/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal records from the external contract. Risk findings
  (risk.AtRiskAccount, risk.DuplicateGroup) already carry their wire tags
  and are served as-is; accounts and admin operations get explicit DTOs.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"github.com/warp/revenue-engine/crm"
)

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Archived       bool   `json:"archived"`
	AnnualRevenue  string `json:"annual_revenue,omitempty"`
	RevenueSegment string `json:"revenue_segment,omitempty"`
}

func accountToDTO(a crm.Account) AccountDTO {
	dto := AccountDTO{
		ID:             string(a.ID),
		Name:           a.Name,
		Archived:       a.Archived,
		RevenueSegment: string(a.RevenueSegment),
	}
	if a.AnnualRevenue != nil {
		dto.AnnualRevenue = a.AnnualRevenue.String()
	}
	return dto
}

// CreateSnoozeRequest suppresses at-risk reporting for an account until the
// given instant.
type CreateSnoozeRequest struct {
	AccountID string `json:"account_id"`
	ExpiresAt string `json:"expires_at"` // RFC 3339
}

// SnoozeDTO represents a snooze in API responses.
type SnoozeDTO struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	ExpiresAt string `json:"expires_at"`
}

// RefreshResponse summarizes a completed refresh for the admin endpoint.
type RefreshResponse struct {
	RunID           string `json:"run_id"`
	TargetYear      int    `json:"target_year"`
	StartedAt       string `json:"started_at"`
	AccountsAtRisk  int    `json:"accounts_at_risk"`
	NewGroups       int    `json:"new_duplicate_groups"`
	SegmentsChanged int    `json:"segments_changed"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
