package memory

import (
	"context"
	"sort"
	"sync"

	"moodquiz-service/internal/domain"
)

// Leaderboard ranks profiles in memory. Ties go to the user who reached the
// total first.
type Leaderboard struct {
	mu      sync.RWMutex
	seq     int
	entries map[string]rankedProfile
}

type rankedProfile struct {
	profile domain.Profile
	seq     int
}

func NewLeaderboard() *Leaderboard {
	return &Leaderboard{entries: make(map[string]rankedProfile)}
}

func (l *Leaderboard) Record(_ context.Context, profile domain.Profile) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev, ok := l.entries[profile.UserID]
	if ok && prev.profile.TotalPoints == profile.TotalPoints {
		prev.profile = profile
		l.entries[profile.UserID] = prev
		return nil
	}
	l.seq++
	l.entries[profile.UserID] = rankedProfile{profile: profile, seq: l.seq}
	return nil
}

func (l *Leaderboard) Top(_ context.Context, n int) ([]domain.LeaderboardEntry, error) {
	l.mu.RLock()
	ranked := make([]rankedProfile, 0, len(l.entries))
	for _, e := range l.entries {
		ranked = append(ranked, e)
	}
	l.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].profile.TotalPoints != ranked[j].profile.TotalPoints {
			return ranked[i].profile.TotalPoints > ranked[j].profile.TotalPoints
		}
		return ranked[i].seq < ranked[j].seq
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}

	out := make([]domain.LeaderboardEntry, len(ranked))
	for i, e := range ranked {
		out[i] = domain.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      e.profile.UserID,
			TotalPoints: e.profile.TotalPoints,
			Badge:       e.profile.Badge,
		}
	}
	return out, nil
}
