/*
scheduler.go - Automated cache refresh scheduler

PURPOSE:
  Re-runs the engine on a fixed interval so the cached snapshots never sit
  expired for long. The interval defaults to the snapshot TTL (5 minutes);
  an admin can still trigger an immediate refresh via the API, and the
  cache's version check resolves the race between the two.

USAGE:
  scheduler := NewRefreshScheduler(eng)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerRefresh endpoint (manual refresh)
  - engine/refresh.go: the pass itself
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/revenue-engine/cache"
	"github.com/warp/revenue-engine/engine"
)

// RefreshScheduler periodically re-runs the refresh pass.
type RefreshScheduler struct {
	Engine   *engine.Engine
	Interval time.Duration

	// TargetYear returns the year each run evaluates. Defaults to the
	// current calendar year at run time.
	TargetYear func() int

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRefreshScheduler creates a scheduler with the default TTL interval.
func NewRefreshScheduler(eng *engine.Engine) *RefreshScheduler {
	return &RefreshScheduler{
		Engine:   eng,
		Interval: cache.DefaultTTL,
		stop:     make(chan struct{}),
	}
}

// Start begins the scheduler.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)
	go rs.run()

	log.Printf("[Scheduler] Started with refresh interval: %v", rs.Interval)
}

// Stop stops the scheduler.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (rs *RefreshScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start so the cache is warm before first read.
	rs.refreshOnce()

	for {
		select {
		case <-rs.ticker.C:
			rs.refreshOnce()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RefreshScheduler) refreshOnce() {
	year := time.Now().Year()
	if rs.TargetYear != nil {
		year = rs.TargetYear()
	}

	result, err := rs.Engine.Refresh(context.Background(), year)
	if err != nil {
		// Previous snapshot stays valid until its TTL lapses.
		log.Printf("[Scheduler] refresh failed: %v", err)
		return
	}
	log.Printf("[Scheduler] refreshed year %d: %d at-risk, %d new duplicate groups, %d segments changed",
		year, len(result.AtRisk), len(result.NewGroups), result.SegmentsChanged)
}
