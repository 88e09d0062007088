package domain

import (
	"fmt"
	"strings"
	"time"
)

// OptionLetters are the option keys every question carries, in display order.
var OptionLetters = []string{"A", "B", "C", "D"}

// Difficulty selects generation instructions and the points ceiling of a quiz.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes raw input; an empty value means medium.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(raw))); d {
	case "":
		return DifficultyMedium, nil
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, raw)
	}
}

// Label is the capitalized form used in quiz titles.
func (d Difficulty) Label() string {
	if d == "" {
		return ""
	}
	return strings.ToUpper(string(d[:1])) + string(d[1:])
}

// QuestionSpec is a validated multiple-choice question produced by the parser.
type QuestionSpec struct {
	Text          string            `json:"text"`
	Options       map[string]string `json:"options"`
	CorrectOption string            `json:"correctOption"`
}

// Valid reports whether all four option keys are present and non-empty and the
// correct option is one of them.
func (q QuestionSpec) Valid() bool {
	if len(q.Options) != len(OptionLetters) {
		return false
	}
	for _, letter := range OptionLetters {
		if strings.TrimSpace(q.Options[letter]) == "" {
			return false
		}
	}
	_, ok := q.Options[q.CorrectOption]
	return ok
}

// Question is a persisted QuestionSpec belonging to a quiz.
type Question struct {
	ID       string `json:"id"`
	Position int    `json:"position"`
	QuestionSpec
}

// Document is the uploaded source text a quiz is generated from.
type Document struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	Title      string     `json:"title"`
	SourceText string     `json:"sourceText"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Quiz is a collection of questions generated from a document.
type Quiz struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"documentId"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty"`
	Questions  []Question `json:"questions"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Question looks up a question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// AttemptState is the lifecycle position of a quiz attempt.
type AttemptState string

const (
	AttemptStarted   AttemptState = "started"
	AttemptAnswering AttemptState = "answering"
	AttemptCompleted AttemptState = "completed"
)

// CaptureStatus records what happened to the emotion capture of an attempt.
type CaptureStatus string

const (
	CaptureRunning    CaptureStatus = "capturing"
	CaptureNotStarted CaptureStatus = "not_started"
	CaptureFinished   CaptureStatus = "finished"
	CaptureNoData     CaptureStatus = "no_data"
)

// AnswerRecord is an immutable answer to one question of an attempt.
type AnswerRecord struct {
	QuestionID     string    `json:"questionId"`
	SubmittedValue string    `json:"submittedValue"`
	IsCorrect      bool      `json:"isCorrect"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// QuizAttempt is one user's single pass through a quiz.
type QuizAttempt struct {
	ID                string                   `json:"id"`
	UserID            string                   `json:"userId"`
	QuizID            string                   `json:"quizId"`
	State             AttemptState             `json:"state"`
	Answers           map[string]AnswerRecord  `json:"answers"`
	Score             *float64                 `json:"score,omitempty"`
	EmotionSummaryRef string                   `json:"emotionSummaryRef,omitempty"`
	CaptureStatus     CaptureStatus            `json:"captureStatus"`
	EmotionsLog       map[string]EmotionScores `json:"emotionsLog,omitempty"`
	StartedAt         time.Time                `json:"startedAt"`
	CompletedAt       *time.Time               `json:"completedAt,omitempty"`

	// ProgressionApplied is set once the completion's points and streak
	// reached the profile.
	ProgressionApplied bool `json:"-"`
}

// Completed reports whether the attempt reached its terminal state.
func (a QuizAttempt) Completed() bool {
	return a.State == AttemptCompleted
}

// CorrectCount counts correct answers.
func (a QuizAttempt) CorrectCount() int {
	n := 0
	for _, ans := range a.Answers {
		if ans.IsCorrect {
			n++
		}
	}
	return n
}

// Badge is a tier derived from cumulative points.
type Badge string

const (
	BadgeNone   Badge = "none"
	BadgeBronze Badge = "bronze"
	BadgeSilver Badge = "silver"
	BadgeGold   Badge = "gold"
)

// Profile holds the gamification state of a user.
type Profile struct {
	UserID           string     `json:"userId"`
	TotalPoints      int        `json:"totalPoints"`
	Badge            Badge      `json:"badge"`
	CurrentStreak    int        `json:"currentStreak"`
	HighestStreak    int        `json:"highestStreak"`
	LastActivityDate *time.Time `json:"lastActivityDate,omitempty"`
}

// NewProfile returns the initial profile of a user.
func NewProfile(userID string) Profile {
	return Profile{UserID: userID, Badge: BadgeNone}
}

// BadgeProgress describes how far a profile is from its next badge.
type BadgeProgress struct {
	Current            Badge   `json:"current"`
	Next               Badge   `json:"next,omitempty"`
	PointsNeeded       int     `json:"pointsNeeded"`
	ProgressPercentage float64 `json:"progressPercentage"`
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	TotalPoints int    `json:"totalPoints"`
	Badge       Badge  `json:"badge"`
}
