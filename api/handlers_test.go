package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/revenue-engine/crm"
	"github.com/warp/revenue-engine/engine"
	"github.com/warp/revenue-engine/risk"
	"github.com/warp/revenue-engine/store/sqlite"
)

// newTestServer builds the full router over an in-memory store seeded with
// one large at-risk account (duplicated contract) and one small one. The
// returned year is the one the seeded revenue attributes to.
func newTestServer(t *testing.T) (*httptest.Server, int) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveAccount(ctx, crm.Account{ID: "a1", Name: "Acme"}))
	require.NoError(t, store.SaveAccount(ctx, crm.Account{ID: "a2", Name: "Globex"}))

	// Contract dates are relative to the wall clock: the engine's at-risk
	// scan runs against time.Now.
	start := crm.Today().AddDays(-30)
	end := crm.Today().AddDays(45)
	price := decimal.NewFromInt(900000)
	small := decimal.NewFromInt(10000)

	for _, e := range []crm.Estimate{
		{ID: "e1", Number: "EST-1", AccountID: "a1", Status: "won", EstimateType: "service",
			TotalPrice: &price, ContractStart: &start, ContractEnd: &end,
			Division: "East", Address: "1 Main St"},
		{ID: "e2", Number: "EST-2", AccountID: "a1", Status: "won", EstimateType: "service",
			TotalPrice: &price, ContractStart: &start, ContractEnd: &end,
			Division: "East", Address: "1 Main St"},
		{ID: "e3", Number: "EST-3", AccountID: "a2", Status: "won", EstimateType: "service",
			TotalPrice: &small, ContractStart: &start, ContractEnd: &end},
	} {
		require.NoError(t, store.SaveEstimate(ctx, e))
	}

	handler := NewHandler(store, engine.New(store, store))
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)
	return server, start.Year()
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestTriggerRefresh(t *testing.T) {
	server, year := newTestServer(t)

	var result RefreshResponse
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/admin/refresh?year=%d", server.URL, year), nil, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, year, result.TargetYear)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 2, result.AccountsAtRisk)
	assert.Equal(t, 1, result.NewGroups)
	assert.Equal(t, 2, result.SegmentsChanged)

	var last RefreshResponse
	resp = doJSON(t, http.MethodGet, server.URL+"/api/admin/refresh/last", nil, &last)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, result.RunID, last.RunID)
}

func TestLastRefreshBeforeAnyRun(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/admin/refresh/last", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerRefreshBadYear(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/admin/refresh?year=soon", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListAtRiskColdCache(t *testing.T) {
	// GIVEN: no refresh has ever run
	// WHEN: requesting the at-risk list
	// THEN: the handler refreshes on demand and serves the fresh snapshot

	server, _ := newTestServer(t)

	var atRisk []risk.AtRiskAccount
	resp := doJSON(t, http.MethodGet, server.URL+"/api/at-risk", nil, &atRisk)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Len(t, atRisk, 2)
	assert.Equal(t, crm.AccountID("a1"), atRisk[0].AccountID)
	assert.Equal(t, crm.EstimateID("e1"), atRisk[0].EstimateID)
	assert.Equal(t, 45, atRisk[0].DaysUntilRenewal)
}

func TestListSegments(t *testing.T) {
	server, year := newTestServer(t)

	var segments map[crm.AccountID]crm.Segment
	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/segments?year=%d", server.URL, year), nil, &segments)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, crm.SegmentA, segments["a1"])
	assert.Equal(t, crm.SegmentC, segments["a2"])
}

func TestListAccountsReflectsRefresh(t *testing.T) {
	server, year := newTestServer(t)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/admin/refresh?year=%d", server.URL, year), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var accounts []AccountDTO
	resp = doJSON(t, http.MethodGet, server.URL+"/api/accounts", nil, &accounts)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, accounts, 2)
	assert.Equal(t, "A", accounts[0].RevenueSegment)
	assert.Equal(t, "C", accounts[1].RevenueSegment)
}

func TestGetAccountNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/accounts/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSnoozeSuppressesAtRisk(t *testing.T) {
	server, _ := newTestServer(t)

	var snooze SnoozeDTO
	resp := doJSON(t, http.MethodPost, server.URL+"/api/snoozes", CreateSnoozeRequest{
		AccountID: "a1",
		ExpiresAt: time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	}, &snooze)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, snooze.ID)

	var atRisk []risk.AtRiskAccount
	resp = doJSON(t, http.MethodGet, server.URL+"/api/at-risk", nil, &atRisk)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, atRisk, 1)
	assert.Equal(t, crm.AccountID("a2"), atRisk[0].AccountID)
}

func TestCreateSnoozeValidation(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/snoozes", CreateSnoozeRequest{
		ExpiresAt: time.Now().Format(time.RFC3339),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, server.URL+"/api/snoozes", CreateSnoozeRequest{
		AccountID: "a1",
		ExpiresAt: "tomorrow",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteSnooze(t *testing.T) {
	server, _ := newTestServer(t)

	var snooze SnoozeDTO
	doJSON(t, http.MethodPost, server.URL+"/api/snoozes", CreateSnoozeRequest{
		AccountID: "a1",
		ExpiresAt: time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}, &snooze)

	resp := doJSON(t, http.MethodDelete, server.URL+"/api/snoozes/"+snooze.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodDelete, server.URL+"/api/snoozes/"+snooze.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDuplicateReviewFlow(t *testing.T) {
	// GIVEN: a refresh that detected one duplicate group
	// WHEN: resolving it through the API
	// THEN: the status filter reflects the transition

	server, year := newTestServer(t)

	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/admin/refresh?year=%d", server.URL, year), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detected []risk.DuplicateGroup
	resp = doJSON(t, http.MethodGet, server.URL+"/api/duplicates?status=detected", nil, &detected)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, detected, 1)
	assert.Equal(t, []crm.EstimateID{"e1", "e2"}, detected[0].EstimateIDs)

	resp = doJSON(t, http.MethodPost, server.URL+"/api/duplicates/"+detected[0].ID+"/resolve", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var resolved []risk.DuplicateGroup
	resp = doJSON(t, http.MethodGet, server.URL+"/api/duplicates?status=resolved", nil, &resolved)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, resolved, 1)
	assert.NotNil(t, resolved[0].ResolvedAt)

	var stillDetected []risk.DuplicateGroup
	resp = doJSON(t, http.MethodGet, server.URL+"/api/duplicates?status=detected", nil, &stillDetected)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, stillDetected)
}

func TestResolveDuplicateNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/duplicates/missing/resolve", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
