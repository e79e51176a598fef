/*
Package cache persists computed engine output for fast reads.

PURPOSE:
  A refresh pass is cheap but not free; readers (dashboards, the renewal
  digest) want the last computed at-risk list and segment map without
  re-running the engine. Snapshots carry a cache key, a JSON payload, and
  an expiry five minutes out. A snapshot is invalidated either by expiry
  or by the next refresh writing over it.

CONCURRENT REFRESH:
  Two refreshes may run at once (one scheduled, one manual). Each reads
  its own consistent snapshot of the store and writes independently.
  Rather than plain last-writer-wins, every snapshot carries a monotonic
  version; a write with a version at or below the stored one is rejected
  with ErrStaleSnapshot, so an older refresh can never clobber a newer
  one that finished first.

SEE ALSO:
  - memory.go: in-memory Writer for tests and dev
  - store/sqlite: durable Writer
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is how long a snapshot stays readable after it is written.
const DefaultTTL = 5 * time.Minute

// Well-known cache keys.
const (
	KeyAtRisk     = "at_risk_accounts"
	KeyDuplicates = "duplicate_estimate_groups"
	KeySegments   = "revenue_segments"
)

// SegmentsKey returns the per-year key for segment snapshots, e.g.
// "revenue_segments_2026". Segment assignments are a function of the
// target year, so each year caches independently.
func SegmentsKey(year int) string {
	return fmt.Sprintf("%s_%d", KeySegments, year)
}

var (
	// ErrSnapshotNotFound is returned when no snapshot exists for a key.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotExpired is returned when the stored snapshot's TTL lapsed.
	ErrSnapshotExpired = errors.New("snapshot expired")

	// ErrStaleSnapshot is returned when a write carries a version at or
	// below the stored snapshot's version.
	ErrStaleSnapshot = errors.New("stale snapshot: newer version already written")
)

// Snapshot is the cache envelope: key, payload, version, expiry.
type Snapshot struct {
	Key       string          `json:"cache_key"`
	Data      json.RawMessage `json:"cache_data"`
	Version   int64           `json:"version"`
	WrittenAt time.Time       `json:"written_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the snapshot's TTL has lapsed at the given instant.
func (s Snapshot) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// New marshals a payload into a snapshot envelope with the given TTL.
// The write timestamp doubles as the monotonic version.
func New(key string, payload any, writtenAt time.Time, ttl time.Duration) (Snapshot, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Key:       key,
		Data:      data,
		Version:   writtenAt.UnixNano(),
		WrittenAt: writtenAt,
		ExpiresAt: writtenAt.Add(ttl),
	}, nil
}

// Writer persists snapshots.
type Writer interface {
	// Write stores a snapshot, rejecting stale versions with ErrStaleSnapshot.
	Write(ctx context.Context, snapshot Snapshot) error

	// Read returns the stored snapshot for a key. Returns
	// ErrSnapshotNotFound when absent and ErrSnapshotExpired when present
	// but past its TTL (the stale snapshot is still returned alongside the
	// error so callers may choose to serve it).
	Read(ctx context.Context, key string) (*Snapshot, error)
}
