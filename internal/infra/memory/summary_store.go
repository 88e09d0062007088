package memory

import (
	"context"
	"sync"

	"moodquiz-service/internal/domain"
)

// SummaryStore keeps finalized emotion summaries, one per attempt.
type SummaryStore struct {
	mu        sync.RWMutex
	summaries map[string]domain.EmotionSummary
}

func NewSummaryStore() *SummaryStore {
	return &SummaryStore{summaries: make(map[string]domain.EmotionSummary)}
}

func (s *SummaryStore) SaveSummary(_ context.Context, attemptID string, summary domain.EmotionSummary) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.summaries[attemptID]; exists {
		return "", domain.ErrSummaryExists
	}
	s.summaries[attemptID] = summary
	return "memory://" + attemptID, nil
}

func (s *SummaryStore) Summary(attemptID string) (domain.EmotionSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[attemptID]
	return summary, ok
}
