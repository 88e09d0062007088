package memory

import (
	"context"
	"errors"
	"testing"

	"moodquiz-service/internal/domain"
)

func TestSummaryStoreIsWriteOnce(t *testing.T) {
	store := NewSummaryStore()
	summary := domain.EmotionSummary{FrameCount: 3}

	ref, err := store.SaveSummary(context.Background(), "a1", summary)
	if err != nil || ref == "" {
		t.Fatalf("save: %q %v", ref, err)
	}
	if _, err := store.SaveSummary(context.Background(), "a1", domain.EmotionSummary{FrameCount: 9}); !errors.Is(err, domain.ErrSummaryExists) {
		t.Fatalf("expected summary exists, got %v", err)
	}
	got, _ := store.Summary("a1")
	if got.FrameCount != 3 {
		t.Fatalf("summary was overwritten: %+v", got)
	}
}
