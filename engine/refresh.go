/*
Package engine orchestrates a full refresh pass.

PURPOSE:
  One refresh reads a consistent snapshot of accounts, estimates, and
  snoozes from the store, then:
    1. Classifies every account (crm.ClassifyAll) and writes changed
       segments back onto the account records
    2. Runs the at-risk scan (risk.Detect)
    3. Runs the duplicate scan over the at-risk candidates, suppressing
       fingerprints already on file
    4. Writes at-risk, duplicate, and segment snapshots to the cache with
       the standard 5-minute TTL

  A refresh either completes and writes, or fails and leaves the previous
  cache snapshot valid until its TTL lapses. There is no cancellation
  beyond the context passed to store reads, and no partial cache write:
  cache writes happen last, after all computation succeeded.

CONCURRENT REFRESH:
  Two refreshes (scheduled + manual) each read their own snapshot and
  write independently. The cache's version check makes the refresh that
  started later win; the loser's ErrStaleSnapshot is logged and swallowed,
  since a newer snapshot being in place is exactly the desired outcome.

SEE ALSO:
  - crm: attribution and segmentation
  - risk: at-risk and duplicate detection
  - cache: snapshot envelope and TTL
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/warp/revenue-engine/cache"
	"github.com/warp/revenue-engine/crm"
	"github.com/warp/revenue-engine/risk"
)

// Store is the persistence collaborator. The engine reads flat collections
// and writes back segments and duplicate groups; fetching, pagination, and
// import belong to the store, not here.
type Store interface {
	ListAccounts(ctx context.Context) ([]crm.Account, error)
	ListEstimates(ctx context.Context) ([]crm.Estimate, error)
	ListSnoozes(ctx context.Context) ([]crm.Snooze, error)

	// UpdateAccountSegment persists a newly computed tier.
	UpdateAccountSegment(ctx context.Context, id crm.AccountID, segment crm.Segment) error

	// ExistingFingerprints returns the fingerprints of every duplicate
	// group on file, detected or resolved. The engine never re-creates a
	// group for a fingerprint already known.
	ExistingFingerprints(ctx context.Context) (map[string]bool, error)

	SaveDuplicateGroups(ctx context.Context, groups []risk.DuplicateGroup) error
}

// Engine runs refresh passes.
type Engine struct {
	Store Store
	Cache cache.Writer
	TTL   time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

// New builds an engine with the default 5-minute snapshot TTL.
func New(store Store, writer cache.Writer) *Engine {
	return &Engine{Store: store, Cache: writer, TTL: cache.DefaultTTL, Now: time.Now}
}

// Result summarizes one completed refresh.
type Result struct {
	RunID      string                        `json:"run_id"`
	TargetYear int                           `json:"target_year"`
	StartedAt  time.Time                     `json:"started_at"`
	Segments   map[crm.AccountID]crm.Segment `json:"segments"`
	AtRisk     []risk.AtRiskAccount          `json:"at_risk_accounts"`
	NewGroups  []risk.DuplicateGroup         `json:"new_duplicate_groups"`

	SegmentsChanged int `json:"segments_changed"`
}

// Refresh runs one full pass for the target year.
func (e *Engine) Refresh(ctx context.Context, targetYear int) (*Result, error) {
	now := e.now()

	accounts, err := e.Store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: list accounts: %w", err)
	}
	estimates, err := e.Store.ListEstimates(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: list estimates: %w", err)
	}
	snoozes, err := e.Store.ListSnoozes(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: list snoozes: %w", err)
	}

	segments := crm.ClassifyAll(accounts, estimates, targetYear)

	detection := risk.Detect(accounts, estimates, snoozes, now)
	groups := risk.DetectDuplicates(accounts, detection.Candidates, now)

	known, err := e.Store.ExistingFingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh: load fingerprints: %w", err)
	}
	var newGroups []risk.DuplicateGroup
	for _, g := range groups {
		if !known[g.Fingerprint] {
			newGroups = append(newGroups, g)
		}
	}

	// All computation done; start writing back.
	changed := 0
	for _, a := range accounts {
		segment, ok := segments[a.ID]
		if !ok || segment == a.RevenueSegment {
			continue
		}
		if err := e.Store.UpdateAccountSegment(ctx, a.ID, segment); err != nil {
			return nil, fmt.Errorf("refresh: update segment for %s: %w", a.ID, err)
		}
		changed++
	}

	if len(newGroups) > 0 {
		if err := e.Store.SaveDuplicateGroups(ctx, newGroups); err != nil {
			return nil, fmt.Errorf("refresh: save duplicate groups: %w", err)
		}
	}

	if err := e.writeSnapshots(ctx, targetYear, now, detection.AtRisk, newGroups, segments); err != nil {
		return nil, err
	}

	return &Result{
		RunID:           uuid.NewString(),
		TargetYear:      targetYear,
		StartedAt:       now,
		Segments:        segments,
		AtRisk:          detection.AtRisk,
		NewGroups:       newGroups,
		SegmentsChanged: changed,
	}, nil
}

func (e *Engine) writeSnapshots(ctx context.Context, targetYear int, now time.Time, atRisk []risk.AtRiskAccount, groups []risk.DuplicateGroup, segments map[crm.AccountID]crm.Segment) error {
	ttl := e.TTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}

	payloads := []struct {
		key  string
		data any
	}{
		{cache.KeyAtRisk, atRisk},
		{cache.KeyDuplicates, groups},
		{cache.SegmentsKey(targetYear), segments},
	}

	for _, p := range payloads {
		snapshot, err := cache.New(p.key, p.data, now, ttl)
		if err != nil {
			return fmt.Errorf("refresh: marshal %s: %w", p.key, err)
		}
		if err := e.Cache.Write(ctx, snapshot); err != nil {
			if errors.Is(err, cache.ErrStaleSnapshot) {
				// A refresh that started later already wrote; let it win.
				log.Printf("[Engine] skipped stale write for %s", p.key)
				continue
			}
			return fmt.Errorf("refresh: write %s: %w", p.key, err)
		}
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
