package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"moodquiz-service/internal/domain"
)

const (
	leaderboardKey = "moodquiz:leaderboard"
	badgesKey      = "moodquiz:leaderboard:badges"
)

// Leaderboard ranks users in a sorted set scored by total points. Badges sit
// in a companion hash. Ties are ordered by member name, as Redis does.
type Leaderboard struct {
	client *redis.Client
}

func NewLeaderboard(client *redis.Client) *Leaderboard {
	return &Leaderboard{client: client}
}

func (l *Leaderboard) Record(ctx context.Context, profile domain.Profile) error {
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(profile.TotalPoints), Member: profile.UserID})
	pipe.HSet(ctx, badgesKey, profile.UserID, string(profile.Badge))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record leaderboard %s: %w", profile.UserID, err)
	}
	return nil
}

func (l *Leaderboard) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	ranked, err := l.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	users := make([]string, len(ranked))
	for i, z := range ranked {
		users[i] = z.Member.(string)
	}
	badges, err := l.client.HMGet(ctx, badgesKey, users...).Result()
	if err != nil {
		return nil, fmt.Errorf("read badges: %w", err)
	}

	out := make([]domain.LeaderboardEntry, len(ranked))
	for i, z := range ranked {
		badge := domain.BadgeNone
		if s, ok := badges[i].(string); ok && s != "" {
			badge = domain.Badge(s)
		}
		out[i] = domain.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      users[i],
			TotalPoints: int(z.Score),
			Badge:       badge,
		}
	}
	return out, nil
}
