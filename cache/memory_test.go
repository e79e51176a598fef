package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestMemory_WriteAndRead(t *testing.T) {
	m := NewMemory()
	m.Now = func() time.Time { return t0 }
	ctx := context.Background()

	snapshot, err := New(KeyAtRisk, []string{"a1"}, t0, DefaultTTL)
	if err != nil {
		t.Fatalf("new snapshot: %v", err)
	}
	if err := m.Write(ctx, snapshot); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := m.Read(ctx, KeyAtRisk)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Key != KeyAtRisk || string(got.Data) != `["a1"]` {
		t.Errorf("unexpected snapshot: %+v", got)
	}
	if !got.ExpiresAt.Equal(t0.Add(5 * time.Minute)) {
		t.Errorf("expected 5-minute TTL, got expiry %v", got.ExpiresAt)
	}
}

func TestMemory_ReadMissing(t *testing.T) {
	m := NewMemory()
	if _, err := m.Read(context.Background(), "nope"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestMemory_ExpiryFlagged(t *testing.T) {
	// GIVEN: a snapshot written 5 minutes ago
	// WHEN: the clock moves past the TTL
	// THEN: Read flags expiry but still returns the stale snapshot

	m := NewMemory()
	now := t0
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	snapshot, _ := New(KeyAtRisk, "data", t0, DefaultTTL)
	if err := m.Write(ctx, snapshot); err != nil {
		t.Fatalf("write: %v", err)
	}

	now = t0.Add(5*time.Minute + time.Second)
	got, err := m.Read(ctx, KeyAtRisk)
	if !errors.Is(err, ErrSnapshotExpired) {
		t.Errorf("expected ErrSnapshotExpired, got %v", err)
	}
	if got == nil {
		t.Error("stale snapshot should still be returned")
	}
}

func TestMemory_StaleVersionRejected(t *testing.T) {
	// GIVEN: two concurrent refreshes, the later-started one finishing first
	// WHEN: the earlier-started one writes afterwards
	// THEN: its stale version is rejected and the newer snapshot survives

	m := NewMemory()
	m.Now = func() time.Time { return t0.Add(time.Minute) }
	ctx := context.Background()

	older, _ := New(KeyAtRisk, "old", t0, DefaultTTL)
	newer, _ := New(KeyAtRisk, "new", t0.Add(time.Second), DefaultTTL)

	if err := m.Write(ctx, newer); err != nil {
		t.Fatalf("write newer: %v", err)
	}
	if err := m.Write(ctx, older); !errors.Is(err, ErrStaleSnapshot) {
		t.Errorf("expected ErrStaleSnapshot, got %v", err)
	}

	got, err := m.Read(ctx, KeyAtRisk)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got.Data) != `"new"` {
		t.Errorf("newer snapshot clobbered: %s", got.Data)
	}
}

func TestSegmentsKey(t *testing.T) {
	if got := SegmentsKey(2026); got != "revenue_segments_2026" {
		t.Errorf("unexpected key %q", got)
	}
}
