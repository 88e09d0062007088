package app

import (
	"context"
	"time"

	"moodquiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store). Unknown
// quizzes yield domain.ErrQuizNotFound.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizWriter persists freshly generated quizzes.
type QuizWriter interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// DocumentRepository stores uploaded source documents.
type DocumentRepository interface {
	CreateDocument(ctx context.Context, doc domain.Document) error
	// GetDocument returns domain.ErrDocumentNotFound for unknown ids.
	GetDocument(ctx context.Context, documentID string) (domain.Document, error)
}

// Completion is the data written when an attempt reaches its terminal state.
type Completion struct {
	Score             float64
	CompletedAt       time.Time
	EmotionSummaryRef string
	CaptureStatus     domain.CaptureStatus
}

// AttemptRepository persists attempts and enforces their storage invariants:
// one attempt per (user, quiz), one answer per (attempt, question) and a
// single completion.
type AttemptRepository interface {
	// CreateAttempt fails with domain.ErrDuplicateAttempt when the user
	// already has an attempt for the quiz.
	CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error
	// GetAttempt returns domain.ErrAttemptNotFound for unknown ids.
	GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error)
	SetCaptureStatus(ctx context.Context, attemptID string, status domain.CaptureStatus) error
	// AddAnswer records an answer and moves a started attempt to answering. It
	// fails with domain.ErrDuplicateAnswer or domain.ErrAttemptAlreadyCompleted.
	AddAnswer(ctx context.Context, attemptID string, answer domain.AnswerRecord, emotions domain.EmotionScores) error
	// CompleteAttempt transitions a non-completed attempt to completed. It
	// fails with domain.ErrAttemptAlreadyCompleted when another caller won.
	CompleteAttempt(ctx context.Context, attemptID string, c Completion) error
	// ListCompleted returns the user's completed attempts, newest first.
	ListCompleted(ctx context.Context, userID string) ([]domain.QuizAttempt, error)
}

// ProfileRepository stores gamification profiles.
type ProfileRepository interface {
	// GetProfile returns domain.NewProfile(userID) for users without one.
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	// UpdateProfile applies fn atomically to the stored (or initial) profile.
	UpdateProfile(ctx context.Context, userID string, fn func(domain.Profile) domain.Profile) (domain.Profile, error)
	// AwardAttempt applies fn to the user's profile and marks the completed
	// attempt's progression as applied in one atomic step. When the attempt is
	// not completed or was already awarded, fn is not called and applied is
	// false.
	AwardAttempt(ctx context.Context, attemptID, userID string, fn func(domain.Profile) domain.Profile) (profile domain.Profile, applied bool, err error)
}

// SummaryStore persists finalized emotion summaries, at most once per attempt.
type SummaryStore interface {
	// SaveSummary returns a reference to the stored summary, or
	// domain.ErrSummaryExists when one was already written.
	SaveSummary(ctx context.Context, attemptID string, summary domain.EmotionSummary) (string, error)
}

// Leaderboard ranks users by total points.
type Leaderboard interface {
	Record(ctx context.Context, profile domain.Profile) error
	Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
}

// CaptureSession is the emotion capture lifetime of one attempt.
type CaptureSession interface {
	Start(ctx context.Context) error
	Stop()
	Finalize() (domain.EmotionSummary, bool)
}

// CaptureFactory builds an idle session for an attempt. The session only
// reads frames published by userID.
type CaptureFactory interface {
	NewSession(attemptID, userID string) CaptureSession
}

// CaptureFactoryFunc adapts a function to CaptureFactory.
type CaptureFactoryFunc func(attemptID, userID string) CaptureSession

func (f CaptureFactoryFunc) NewSession(attemptID, userID string) CaptureSession {
	return f(attemptID, userID)
}

// CaptureRegistry tracks the running capture sessions of this process.
type CaptureRegistry interface {
	Put(attemptID string, session CaptureSession)
	// Take removes and returns the session of an attempt.
	Take(attemptID string) (CaptureSession, bool)
	// Drain removes and returns every session.
	Drain() []CaptureSession
}
