package redis

import (
	"context"
	"testing"
	"time"

	"moodquiz-service/internal/domain"
)

type stubSession struct{}

func (stubSession) Start(context.Context) error { return nil }

func (stubSession) Stop() {}

func (stubSession) Finalize() (domain.EmotionSummary, bool) {
	return domain.EmotionSummary{}, false
}

func TestCaptureRegistrySetsAndClearsKeys(t *testing.T) {
	mr := runMiniredis(t)
	reg := NewCaptureRegistry(newClient(mr), time.Minute, "node-a", nil)

	reg.Put("a1", stubSession{})
	reg.Put("a2", stubSession{})
	if !mr.Exists("moodquiz:capture:a1") {
		t.Fatalf("expected redis key to be set")
	}

	active, err := reg.Active(context.Background())
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 2 || active["a1"] != "node-a" {
		t.Fatalf("unexpected active markers %+v", active)
	}

	if _, ok := reg.Take("a1"); !ok {
		t.Fatalf("expected local session")
	}
	if mr.Exists("moodquiz:capture:a1") {
		t.Fatalf("expected redis key to be removed")
	}

	if drained := reg.Drain(); len(drained) != 1 {
		t.Fatalf("expected one drained session, got %d", len(drained))
	}
	if mr.Exists("moodquiz:capture:a2") {
		t.Fatalf("drain must clear markers")
	}
}

func TestCaptureRegistryMarkersExpire(t *testing.T) {
	mr := runMiniredis(t)
	reg := NewCaptureRegistry(newClient(mr), time.Minute, "node-a", nil)
	reg.Put("a1", stubSession{})

	mr.FastForward(2 * time.Minute)
	if mr.Exists("moodquiz:capture:a1") {
		t.Fatalf("expected marker to expire")
	}
	// The local handle survives; only the marker is advisory.
	if _, ok := reg.Take("a1"); !ok {
		t.Fatalf("expected local session after marker expiry")
	}
}

func TestCaptureRegistryRefreshExtendsMarkers(t *testing.T) {
	mr := runMiniredis(t)
	reg := NewCaptureRegistry(newClient(mr), time.Minute, "node-a", nil)
	reg.Put("a1", stubSession{})

	mr.FastForward(50 * time.Second)
	if err := reg.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	mr.FastForward(50 * time.Second)
	if !mr.Exists("moodquiz:capture:a1") {
		t.Fatalf("expected refreshed marker to survive")
	}
	if ttl := mr.TTL("moodquiz:capture:a1"); ttl != 10*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
