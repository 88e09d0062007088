package memory

import (
	"context"
	"testing"

	"moodquiz-service/internal/domain"
)

type stubSession struct{ stopped bool }

func (s *stubSession) Start(context.Context) error { return nil }

func (s *stubSession) Stop() { s.stopped = true }

func (s *stubSession) Finalize() (domain.EmotionSummary, bool) {
	return domain.EmotionSummary{}, false
}

func TestCaptureRegistryTakeAndDrain(t *testing.T) {
	reg := NewCaptureRegistry()
	reg.Put("a1", &stubSession{})
	reg.Put("a2", &stubSession{})

	if _, ok := reg.Take("a1"); !ok {
		t.Fatalf("expected a1")
	}
	if _, ok := reg.Take("a1"); ok {
		t.Fatalf("take must remove the session")
	}
	if drained := reg.Drain(); len(drained) != 1 || reg.Len() != 0 {
		t.Fatalf("expected one drained session, got %d (left %d)", len(drained), reg.Len())
	}
}
