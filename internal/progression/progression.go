// Package progression computes attempt scores, awarded points, badge tiers and
// daily streaks. Everything here is pure; callers serialize profile updates.
package progression

import (
	"math"
	"time"

	"moodquiz-service/internal/domain"
)

type tier struct {
	badge     domain.Badge
	threshold int
}

// tiers are ordered from highest to lowest; thresholds are inclusive.
var tiers = []tier{
	{domain.BadgeGold, 2500},
	{domain.BadgeSilver, 1500},
	{domain.BadgeBronze, 500},
	{domain.BadgeNone, 0},
}

// Score returns the percentage of correct answers.
func Score(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(correct) / float64(total)
}

// MaxPoints is the points ceiling of a quiz difficulty.
func MaxPoints(d domain.Difficulty) int {
	switch d {
	case domain.DifficultyMedium:
		return 20
	case domain.DifficultyHard:
		return 30
	default:
		return 10
	}
}

// PointsAwarded is floor(MaxPoints × score / 100).
func PointsAwarded(d domain.Difficulty, score float64) int {
	if score <= 0 {
		return 0
	}
	// Small epsilon absorbs float error for scores such as 100*7/10.
	return int(math.Floor(float64(MaxPoints(d))*score/100 + 1e-9))
}

// BadgeFor derives the badge purely from total points.
func BadgeFor(totalPoints int) domain.Badge {
	for _, t := range tiers {
		if totalPoints >= t.threshold {
			return t.badge
		}
	}
	return domain.BadgeNone
}

// UpdateStreak advances the daily streak for an activity on today.
// A second completion on the same calendar day leaves the streak unchanged.
func UpdateStreak(p domain.Profile, today time.Time) domain.Profile {
	day := civilDate(today)
	if p.LastActivityDate == nil {
		p.CurrentStreak = 1
	} else {
		switch gap := daysBetween(civilDate(*p.LastActivityDate), day); {
		case gap == 1:
			p.CurrentStreak++
		case gap > 1:
			p.CurrentStreak = 1
		}
	}
	if p.HighestStreak < p.CurrentStreak {
		p.HighestStreak = p.CurrentStreak
	}
	p.LastActivityDate = &day
	return p
}

// Apply awards points for a completed attempt and returns the updated profile.
func Apply(p domain.Profile, d domain.Difficulty, score float64, today time.Time) (int, domain.Profile) {
	points := PointsAwarded(d, score)
	p.TotalPoints += points
	p.Badge = BadgeFor(p.TotalPoints)
	p = UpdateStreak(p, today)
	return points, p
}

// Progress reports the distance to the next badge tier.
func Progress(totalPoints int) domain.BadgeProgress {
	current := BadgeFor(totalPoints)
	if current == domain.BadgeGold {
		return domain.BadgeProgress{Current: current, ProgressPercentage: 100}
	}

	var prev, next tier
	for i, t := range tiers {
		if t.badge == current {
			prev, next = t, tiers[i-1]
			break
		}
	}
	pct := float64(totalPoints-prev.threshold) / float64(next.threshold-prev.threshold) * 100
	return domain.BadgeProgress{
		Current:            current,
		Next:               next.badge,
		PointsNeeded:       next.threshold - totalPoints,
		ProgressPercentage: math.Min(100, math.Max(0, pct)),
	}
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
