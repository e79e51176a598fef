package cache

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// MEMORY WRITER - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot

	// Now is injectable for expiry tests; defaults to time.Now.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		snapshots: make(map[string]Snapshot),
		Now:       time.Now,
	}
}

// Write stores a snapshot unless a newer version is already present.
func (m *Memory) Write(_ context.Context, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.snapshots[snapshot.Key]; ok && snapshot.Version <= existing.Version {
		return ErrStaleSnapshot
	}
	m.snapshots[snapshot.Key] = snapshot
	return nil
}

// Read returns the stored snapshot, flagging expiry.
func (m *Memory) Read(_ context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot, ok := m.snapshots[key]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	result := snapshot
	if snapshot.Expired(m.Now()) {
		return &result, ErrSnapshotExpired
	}
	return &result, nil
}
