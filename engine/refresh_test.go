package engine_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/revenue-engine/cache"
	"github.com/warp/revenue-engine/crm"
	"github.com/warp/revenue-engine/engine"
	"github.com/warp/revenue-engine/risk"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

var asOf = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	accounts  []crm.Account
	estimates []crm.Estimate
	snoozes   []crm.Snooze
	groups    []risk.DuplicateGroup

	segmentWrites int
}

func (f *fakeStore) ListAccounts(context.Context) ([]crm.Account, error) {
	out := make([]crm.Account, len(f.accounts))
	copy(out, f.accounts)
	return out, nil
}

func (f *fakeStore) ListEstimates(context.Context) ([]crm.Estimate, error) {
	return f.estimates, nil
}

func (f *fakeStore) ListSnoozes(context.Context) ([]crm.Snooze, error) {
	return f.snoozes, nil
}

func (f *fakeStore) UpdateAccountSegment(_ context.Context, id crm.AccountID, segment crm.Segment) error {
	f.segmentWrites++
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			f.accounts[i].RevenueSegment = segment
		}
	}
	return nil
}

func (f *fakeStore) ExistingFingerprints(context.Context) (map[string]bool, error) {
	known := make(map[string]bool)
	for _, g := range f.groups {
		known[g.Fingerprint] = true
	}
	return known, nil
}

func (f *fakeStore) SaveDuplicateGroups(_ context.Context, groups []risk.DuplicateGroup) error {
	f.groups = append(f.groups, groups...)
	return nil
}

func money(s string) *decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func datePtr(d crm.Date) *crm.Date { return &d }

func newTestEngine(store *fakeStore) (*engine.Engine, *cache.Memory) {
	writer := cache.NewMemory()
	writer.Now = func() time.Time { return asOf }

	eng := engine.New(store, writer)
	eng.Now = func() time.Time { return asOf }
	return eng, writer
}

func seededStore() *fakeStore {
	// a1: service contract expiring in 45 days, duplicated at one location.
	// a2: small service estimate, stays C.
	end := crm.DateOf(asOf).AddDays(45)
	farEnd := crm.DateOf(asOf).AddDays(400)

	return &fakeStore{
		accounts: []crm.Account{
			{ID: "a1", Name: "Acme"},
			{ID: "a2", Name: "Globex"},
		},
		estimates: []crm.Estimate{
			{
				ID: "e1", Number: "EST-1", AccountID: "a1", Status: "won",
				EstimateType: "service", TotalPrice: money("900000"),
				ContractStart: datePtr(crm.NewDate(2026, time.January, 1)),
				ContractEnd:   &end,
				Division:      "East", Address: "1 Main St",
			},
			{
				ID: "e2", Number: "EST-2", AccountID: "a1", Status: "won",
				EstimateType: "service", TotalPrice: money("900000"),
				ContractStart: datePtr(crm.NewDate(2026, time.January, 1)),
				ContractEnd:   &end,
				Division:      "East", Address: "1 Main St",
			},
			{
				ID: "e3", Number: "EST-3", AccountID: "a2", Status: "won",
				EstimateType: "service", TotalPrice: money("10000"),
				ContractStart: datePtr(crm.NewDate(2026, time.February, 1)),
				ContractEnd:   &farEnd,
			},
		},
	}
}

// =============================================================================
// REFRESH TESTS
// =============================================================================

func TestRefresh_FullPass(t *testing.T) {
	store := seededStore()
	eng, writer := newTestEngine(store)

	result, err := eng.Refresh(context.Background(), 2026)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Segments written back: a1 dominates, a2 is tiny.
	if store.accounts[0].RevenueSegment != crm.SegmentA {
		t.Errorf("expected a1 segment A, got %s", store.accounts[0].RevenueSegment)
	}
	if store.accounts[1].RevenueSegment != crm.SegmentC {
		t.Errorf("expected a2 segment C, got %s", store.accounts[1].RevenueSegment)
	}

	// a1 is at risk (45 days); a2's contract is outside the window.
	if len(result.AtRisk) != 1 || result.AtRisk[0].AccountID != "a1" {
		t.Fatalf("expected only a1 at risk, got %+v", result.AtRisk)
	}
	if result.AtRisk[0].DaysUntilRenewal != 45 {
		t.Errorf("expected 45 days until renewal, got %d", result.AtRisk[0].DaysUntilRenewal)
	}

	// e1/e2 share (division, address): one duplicate group persisted.
	if len(result.NewGroups) != 1 || len(store.groups) != 1 {
		t.Fatalf("expected 1 new duplicate group, got %d", len(result.NewGroups))
	}

	// Cache snapshots written with the 5-minute TTL.
	for _, key := range []string{cache.KeyAtRisk, cache.KeyDuplicates, cache.SegmentsKey(2026)} {
		snapshot, err := writer.Read(context.Background(), key)
		if err != nil {
			t.Fatalf("read %s: %v", key, err)
		}
		if !snapshot.ExpiresAt.Equal(asOf.Add(5 * time.Minute)) {
			t.Errorf("%s: expected 5-minute TTL, got %v", key, snapshot.ExpiresAt)
		}
	}

	var atRisk []risk.AtRiskAccount
	snapshot, _ := writer.Read(context.Background(), cache.KeyAtRisk)
	if err := json.Unmarshal(snapshot.Data, &atRisk); err != nil {
		t.Fatalf("unmarshal at-risk snapshot: %v", err)
	}
	if len(atRisk) != 1 || atRisk[0].AccountID != "a1" {
		t.Errorf("cached at-risk payload wrong: %+v", atRisk)
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	// GIVEN: an unchanged snapshot
	// WHEN: refreshing twice
	// THEN: identical segments, no new duplicate groups, no extra segment writes

	store := seededStore()
	eng, _ := newTestEngine(store)
	ctx := context.Background()

	first, err := eng.Refresh(ctx, 2026)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	writesAfterFirst := store.segmentWrites

	// Advance the clock so the second refresh's snapshot versions are newer.
	eng.Now = func() time.Time { return asOf.Add(time.Minute) }

	second, err := eng.Refresh(ctx, 2026)
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	for id, segment := range first.Segments {
		if second.Segments[id] != segment {
			t.Errorf("account %s: segment changed between identical runs (%s -> %s)",
				id, segment, second.Segments[id])
		}
	}
	if len(second.NewGroups) != 0 {
		t.Errorf("expected no new duplicate groups on rerun, got %d", len(second.NewGroups))
	}
	if second.SegmentsChanged != 0 || store.segmentWrites != writesAfterFirst {
		t.Errorf("expected no segment writes on rerun, got %d changed", second.SegmentsChanged)
	}
}

func TestRefresh_ResolvedFingerprintNotRecreated(t *testing.T) {
	// GIVEN: a duplicate group already resolved for the same estimate set
	// WHEN: refreshing
	// THEN: the group is not re-detected

	store := seededStore()
	resolvedAt := asOf.Add(-time.Hour)
	store.groups = []risk.DuplicateGroup{{
		ID:          "g1",
		AccountID:   "a1",
		Fingerprint: risk.Fingerprint([]crm.EstimateID{"e1", "e2"}),
		Status:      risk.GroupResolved,
		ResolvedAt:  &resolvedAt,
	}}

	eng, _ := newTestEngine(store)
	result, err := eng.Refresh(context.Background(), 2026)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if len(result.NewGroups) != 0 {
		t.Errorf("resolved fingerprint re-detected: %+v", result.NewGroups)
	}
	if len(store.groups) != 1 {
		t.Errorf("store grew a duplicate group: %d", len(store.groups))
	}
}

func TestRefresh_StaleCacheWriteIsBenign(t *testing.T) {
	// GIVEN: a concurrent refresh already wrote newer snapshots
	// WHEN: an older refresh finishes and writes
	// THEN: it succeeds without error; the newer snapshots survive

	store := seededStore()
	eng, writer := newTestEngine(store)
	ctx := context.Background()

	// Newer refresh completes first.
	eng.Now = func() time.Time { return asOf.Add(time.Minute) }
	if _, err := eng.Refresh(ctx, 2026); err != nil {
		t.Fatalf("newer refresh: %v", err)
	}

	// Older refresh (earlier clock) writes afterwards.
	eng.Now = func() time.Time { return asOf }
	if _, err := eng.Refresh(ctx, 2026); err != nil {
		t.Fatalf("older refresh should not fail on stale snapshots: %v", err)
	}

	snapshot, err := writer.Read(ctx, cache.KeyAtRisk)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !snapshot.WrittenAt.Equal(asOf.Add(time.Minute)) {
		t.Errorf("newer snapshot was clobbered: written at %v", snapshot.WrittenAt)
	}
}
