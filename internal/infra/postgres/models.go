package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"moodquiz-service/internal/domain"
)

type documentRow struct {
	bun.BaseModel `bun:"table:documents"`

	ID         string    `bun:"id,pk"`
	UserID     string    `bun:"user_id,notnull"`
	Title      string    `bun:"title,notnull"`
	SourceText string    `bun:"source_text,notnull"`
	Difficulty string    `bun:"difficulty,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID         string    `bun:"id,pk"`
	DocumentID string    `bun:"document_id,notnull"`
	Title      string    `bun:"title,notnull"`
	Difficulty string    `bun:"difficulty,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID            string `bun:"id,pk"`
	QuizID        string `bun:"quiz_id,notnull"`
	Position      int    `bun:"position,notnull"`
	Text          string `bun:"text,notnull"`
	OptionA       string `bun:"option_a,notnull"`
	OptionB       string `bun:"option_b,notnull"`
	OptionC       string `bun:"option_c,notnull"`
	OptionD       string `bun:"option_d,notnull"`
	CorrectOption string `bun:"correct_option,notnull"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts"`

	ID                 string       `bun:"id,pk"`
	UserID             string       `bun:"user_id,notnull"`
	QuizID             string       `bun:"quiz_id,notnull"`
	State              string       `bun:"state,notnull"`
	Score              *float64     `bun:"score"`
	EmotionSummaryRef  string       `bun:"emotion_summary_ref,nullzero"`
	CaptureStatus      string       `bun:"capture_status,notnull"`
	StartedAt          time.Time    `bun:"started_at,notnull"`
	CompletedAt        *time.Time   `bun:"completed_at"`
	ProgressionApplied bool         `bun:"progression_applied,notnull"`
	Answers            []*answerRow `bun:"rel:has-many,join:id=attempt_id"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:attempt_answers"`

	AttemptID      string               `bun:"attempt_id,pk"`
	QuestionID     string               `bun:"question_id,pk"`
	SubmittedValue string               `bun:"submitted_value,notnull"`
	IsCorrect      bool                 `bun:"is_correct,notnull"`
	Emotions       domain.EmotionScores `bun:"emotions,type:jsonb,nullzero"`
	AnsweredAt     time.Time            `bun:"answered_at,notnull"`
}

type profileRow struct {
	bun.BaseModel `bun:"table:profiles"`

	UserID           string     `bun:"user_id,pk"`
	TotalPoints      int        `bun:"total_points,notnull"`
	Badge            string     `bun:"badge,notnull"`
	CurrentStreak    int        `bun:"current_streak,notnull"`
	HighestStreak    int        `bun:"highest_streak,notnull"`
	LastActivityDate *time.Time `bun:"last_activity_date,type:date"`
}

type summaryRow struct {
	bun.BaseModel `bun:"table:emotion_summaries"`

	AttemptID string                `bun:"attempt_id,pk"`
	Summary   domain.EmotionSummary `bun:"summary,type:jsonb,notnull"`
	CreatedAt time.Time             `bun:"created_at,notnull"`
}

func questionRowFrom(quizID string, q domain.Question) *questionRow {
	return &questionRow{
		ID:            q.ID,
		QuizID:        quizID,
		Position:      q.Position,
		Text:          q.Text,
		OptionA:       q.Options["A"],
		OptionB:       q.Options["B"],
		OptionC:       q.Options["C"],
		OptionD:       q.Options["D"],
		CorrectOption: q.CorrectOption,
	}
}

func (r *attemptRow) toDomain() domain.QuizAttempt {
	a := domain.QuizAttempt{
		ID:                 r.ID,
		UserID:             r.UserID,
		QuizID:             r.QuizID,
		State:              domain.AttemptState(r.State),
		Answers:            make(map[string]domain.AnswerRecord, len(r.Answers)),
		Score:              r.Score,
		EmotionSummaryRef:  r.EmotionSummaryRef,
		CaptureStatus:      domain.CaptureStatus(r.CaptureStatus),
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		ProgressionApplied: r.ProgressionApplied,
	}
	for _, ans := range r.Answers {
		a.Answers[ans.QuestionID] = domain.AnswerRecord{
			QuestionID:     ans.QuestionID,
			SubmittedValue: ans.SubmittedValue,
			IsCorrect:      ans.IsCorrect,
			AnsweredAt:     ans.AnsweredAt,
		}
		if len(ans.Emotions) > 0 {
			if a.EmotionsLog == nil {
				a.EmotionsLog = map[string]domain.EmotionScores{}
			}
			a.EmotionsLog[ans.QuestionID] = ans.Emotions
		}
	}
	return a
}

func (r *profileRow) toDomain() domain.Profile {
	return domain.Profile{
		UserID:           r.UserID,
		TotalPoints:      r.TotalPoints,
		Badge:            domain.Badge(r.Badge),
		CurrentStreak:    r.CurrentStreak,
		HighestStreak:    r.HighestStreak,
		LastActivityDate: r.LastActivityDate,
	}
}

func profileRowFrom(p domain.Profile) *profileRow {
	return &profileRow{
		UserID:           p.UserID,
		TotalPoints:      p.TotalPoints,
		Badge:            string(p.Badge),
		CurrentStreak:    p.CurrentStreak,
		HighestStreak:    p.HighestStreak,
		LastActivityDate: p.LastActivityDate,
	}
}
