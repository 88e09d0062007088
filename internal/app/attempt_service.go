package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/pkg/logger"
	"moodquiz-service/internal/progression"
)

// DefaultLeaderboardSize is the number of users GetLeaderboard returns by default.
const DefaultLeaderboardSize = 10

// AttemptDeps are the collaborators of AttemptService. Capture is optional;
// without it attempts run with CaptureStatus not_started.
type AttemptDeps struct {
	Quizzes     QuizRepository
	Attempts    AttemptRepository
	Profiles    ProfileRepository
	Summaries   SummaryStore
	Leaderboard Leaderboard
	Capture     CaptureFactory
	Registry    CaptureRegistry
	Log         *logger.Logger
}

// StartResult is what a newly started attempt exposes to the caller.
type StartResult struct {
	Attempt domain.QuizAttempt
	Quiz    domain.Quiz
}

// SubmitResult describes the outcome of one answer.
type SubmitResult struct {
	IsCorrect     bool
	Completed     bool
	Score         *float64
	PointsAwarded int
	Profile       *domain.Profile
	Attempt       domain.QuizAttempt
}

// ProfileView is a profile with its badge progress.
type ProfileView struct {
	Profile  domain.Profile       `json:"profile"`
	Progress domain.BadgeProgress `json:"badgeProgress"`
}

// AttemptService runs the attempt state machine: Started → Answering →
// Completed, with scoring, progression and capture finalization on completion.
type AttemptService struct {
	deps AttemptDeps
	log  *logger.Logger
	now  func() time.Time
	loc  *time.Location

	attemptLocks *keyedMutex
	userLocks    *keyedMutex

	marksMu sync.Mutex
	marks   map[string]completionMark
}

// completionMark records which question completed an attempt and the last
// attemptLocks ticket issued when it did.
type completionMark struct {
	questionID string
	ticket     uint64
}

func NewAttemptService(deps AttemptDeps) *AttemptService {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &AttemptService{
		deps:         deps,
		log:          log.With("service", "app.AttemptService"),
		now:          time.Now,
		loc:          time.UTC,
		attemptLocks: newKeyedMutex(),
		userLocks:    newKeyedMutex(),
		marks:        make(map[string]completionMark),
	}
	s.attemptLocks.onIdle = s.dropMark
	return s
}

// SetClock is test-only for deterministic timestamps.
func (s *AttemptService) SetClock(now func() time.Time) {
	s.now = now
}

// SetLocation sets the zone that decides the calendar day used for streaks.
func (s *AttemptService) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// Start opens an attempt for a user and begins emotion capture when a
// capture factory is configured. Capture failures never fail the attempt.
func (s *AttemptService) Start(ctx context.Context, userID, quizID string) (StartResult, error) {
	quiz, err := s.deps.Quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return StartResult{}, err
	}
	if len(quiz.Questions) == 0 {
		return StartResult{}, domain.ErrEmptyQuiz
	}

	attempt := domain.QuizAttempt{
		ID:            uuid.NewString(),
		UserID:        userID,
		QuizID:        quizID,
		State:         domain.AttemptStarted,
		Answers:       map[string]domain.AnswerRecord{},
		CaptureStatus: domain.CaptureNotStarted,
		StartedAt:     s.now().UTC(),
	}
	if err := s.deps.Attempts.CreateAttempt(ctx, attempt); err != nil {
		return StartResult{}, err
	}

	if s.startCapture(ctx, attempt.ID, userID) {
		if err := s.deps.Attempts.SetCaptureStatus(ctx, attempt.ID, domain.CaptureRunning); err != nil {
			// Completion skips sessions of not_started attempts, so this one
			// would hold the camera forever.
			s.log.Warn("record capture status, stopping session", "attempt_id", attempt.ID, "error", err)
			if session, ok := s.deps.Registry.Take(attempt.ID); ok {
				session.Stop()
			}
		} else {
			attempt.CaptureStatus = domain.CaptureRunning
		}
	}

	s.log.Info("attempt started", "attempt_id", attempt.ID, "user_id", userID, "quiz_id", quizID, "capture", attempt.CaptureStatus)
	return StartResult{Attempt: attempt, Quiz: quiz}, nil
}

func (s *AttemptService) startCapture(ctx context.Context, attemptID, userID string) bool {
	if s.deps.Capture == nil || s.deps.Registry == nil {
		return false
	}
	session := s.deps.Capture.NewSession(attemptID, userID)
	if err := session.Start(ctx); err != nil {
		s.log.Warn("emotion capture not started", "attempt_id", attemptID, "error", err)
		return false
	}
	s.deps.Registry.Put(attemptID, session)
	return true
}

// SubmitAnswer records one answer. The answer that covers the last
// unanswered question completes the attempt.
func (s *AttemptService) SubmitAnswer(ctx context.Context, userID, attemptID, questionID, value string, emotions domain.EmotionScores) (SubmitResult, error) {
	unlock, arrival := s.attemptLocks.Lock(attemptID)
	defer unlock()

	attempt, err := s.deps.Attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	if attempt.UserID != userID {
		return SubmitResult{}, domain.ErrAttemptNotFound
	}
	if attempt.Completed() {
		if !attempt.ProgressionApplied {
			if err := s.resumeProgression(ctx, attempt); err != nil {
				return SubmitResult{}, err
			}
		}
		if s.lostCompletionRace(attemptID, questionID, arrival) {
			return SubmitResult{}, domain.ErrDuplicateAnswer
		}
		return SubmitResult{}, domain.ErrAttemptAlreadyCompleted
	}

	quiz, err := s.deps.Quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}
	question, ok := quiz.Question(questionID)
	if !ok {
		return SubmitResult{}, domain.ErrQuestionNotFound
	}
	if _, answered := attempt.Answers[questionID]; answered {
		return SubmitResult{}, domain.ErrDuplicateAnswer
	}

	record := domain.AnswerRecord{
		QuestionID:     questionID,
		SubmittedValue: value,
		IsCorrect:      strings.EqualFold(strings.TrimSpace(value), question.CorrectOption),
		AnsweredAt:     s.now().UTC(),
	}
	if len(emotions) > 0 {
		emotions = emotions.Normalize()
	}
	if err := s.deps.Attempts.AddAnswer(ctx, attemptID, record, emotions); err != nil {
		return SubmitResult{}, err
	}

	if attempt.Answers == nil {
		attempt.Answers = map[string]domain.AnswerRecord{}
	}
	attempt.Answers[questionID] = record
	if len(emotions) > 0 {
		if attempt.EmotionsLog == nil {
			attempt.EmotionsLog = map[string]domain.EmotionScores{}
		}
		attempt.EmotionsLog[questionID] = emotions
	}
	attempt.State = domain.AttemptAnswering

	result := SubmitResult{IsCorrect: record.IsCorrect, Attempt: attempt}
	if len(attempt.Answers) < len(quiz.Questions) {
		return result, nil
	}
	return s.complete(ctx, attempt, quiz, questionID, result)
}

// lostCompletionRace reports whether a submission for questionID was already
// queued when that same question completed the attempt. Submissions arriving
// after completion are not part of the race.
func (s *AttemptService) lostCompletionRace(attemptID, questionID string, arrival uint64) bool {
	s.marksMu.Lock()
	defer s.marksMu.Unlock()
	mark, ok := s.marks[attemptID]
	return ok && mark.questionID == questionID && arrival <= mark.ticket
}

func (s *AttemptService) markCompleted(attemptID, questionID string) {
	ticket := s.attemptLocks.lastTicket()
	s.marksMu.Lock()
	defer s.marksMu.Unlock()
	s.marks[attemptID] = completionMark{questionID: questionID, ticket: ticket}
}

// dropMark runs once nothing holds or awaits the attempt's lock, so every
// racing submission has seen the mark.
func (s *AttemptService) dropMark(attemptID string) {
	s.marksMu.Lock()
	defer s.marksMu.Unlock()
	delete(s.marks, attemptID)
}

func (s *AttemptService) complete(ctx context.Context, attempt domain.QuizAttempt, quiz domain.Quiz, questionID string, result SubmitResult) (SubmitResult, error) {
	score := progression.Score(attempt.CorrectCount(), len(quiz.Questions))
	status, ref := s.finishCapture(ctx, attempt)
	completedAt := s.now().UTC()

	err := s.deps.Attempts.CompleteAttempt(ctx, attempt.ID, Completion{
		Score:             score,
		CompletedAt:       completedAt,
		EmotionSummaryRef: ref,
		CaptureStatus:     status,
	})
	if err != nil {
		return SubmitResult{}, err
	}
	s.markCompleted(attempt.ID, questionID)

	attempt.State = domain.AttemptCompleted
	attempt.Score = &score
	attempt.CompletedAt = &completedAt
	attempt.CaptureStatus = status
	attempt.EmotionSummaryRef = ref

	// A failure here leaves progression pending; the next submission for the
	// attempt applies it.
	points, profile, err := s.applyProgression(ctx, attempt, quiz.Difficulty)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("attempt %s completed, progression pending: %w", attempt.ID, err)
	}
	attempt.ProgressionApplied = true

	s.log.Info("attempt completed",
		"attempt_id", attempt.ID,
		"user_id", attempt.UserID,
		"score", score,
		"points", points,
		"badge", profile.Badge,
		"capture", status,
	)

	result.Completed = true
	result.Score = &score
	result.PointsAwarded = points
	result.Profile = &profile
	result.Attempt = attempt
	return result, nil
}

// finishCapture stops the attempt's session and persists its summary.
func (s *AttemptService) finishCapture(ctx context.Context, attempt domain.QuizAttempt) (domain.CaptureStatus, string) {
	if attempt.CaptureStatus == domain.CaptureNotStarted {
		return domain.CaptureNotStarted, ""
	}
	if s.deps.Registry == nil {
		return domain.CaptureNoData, ""
	}
	session, ok := s.deps.Registry.Take(attempt.ID)
	if !ok {
		s.log.Warn("no running capture session for attempt", "attempt_id", attempt.ID)
		return domain.CaptureNoData, ""
	}

	session.Stop()
	summary, ok := session.Finalize()
	if !ok {
		return domain.CaptureNoData, ""
	}
	if s.deps.Summaries == nil {
		return domain.CaptureNoData, ""
	}

	ref, err := s.deps.Summaries.SaveSummary(ctx, attempt.ID, summary)
	if err != nil {
		if errors.Is(err, domain.ErrSummaryExists) {
			s.log.Warn("emotion summary already stored", "attempt_id", attempt.ID)
		} else {
			s.log.Error("store emotion summary", "attempt_id", attempt.ID, "error", err)
		}
		return domain.CaptureNoData, ""
	}
	return domain.CaptureFinished, ref
}

// resumeProgression applies the progression of a completed attempt whose
// completing call failed after the state transition.
func (s *AttemptService) resumeProgression(ctx context.Context, attempt domain.QuizAttempt) error {
	quiz, err := s.deps.Quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return err
	}
	points, _, err := s.applyProgression(ctx, attempt, quiz.Difficulty)
	if err != nil {
		return fmt.Errorf("attempt %s completed, progression pending: %w", attempt.ID, err)
	}
	s.log.Info("pending progression applied", "attempt_id", attempt.ID, "user_id", attempt.UserID, "points", points)
	return nil
}

// applyProgression runs scoring and streak updates once per completed
// attempt, serialized per user.
func (s *AttemptService) applyProgression(ctx context.Context, attempt domain.QuizAttempt, d domain.Difficulty) (int, domain.Profile, error) {
	unlock, _ := s.userLocks.Lock(attempt.UserID)
	defer unlock()

	score := *attempt.Score
	today := attempt.CompletedAt.In(s.loc)
	var points int
	profile, applied, err := s.deps.Profiles.AwardAttempt(ctx, attempt.ID, attempt.UserID, func(p domain.Profile) domain.Profile {
		var updated domain.Profile
		points, updated = progression.Apply(p, d, score, today)
		return updated
	})
	if err != nil {
		return 0, domain.Profile{}, err
	}
	if !applied {
		return 0, profile, nil
	}

	if s.deps.Leaderboard != nil {
		if err := s.deps.Leaderboard.Record(ctx, profile); err != nil {
			s.log.Warn("update leaderboard", "user_id", attempt.UserID, "error", err)
		}
	}
	return points, profile, nil
}

// Get returns an attempt owned by userID.
func (s *AttemptService) Get(ctx context.Context, userID, attemptID string) (domain.QuizAttempt, error) {
	attempt, err := s.deps.Attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.QuizAttempt{}, err
	}
	if attempt.UserID != userID {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

// History lists the user's completed attempts, newest completion first.
func (s *AttemptService) History(ctx context.Context, userID string) ([]domain.QuizAttempt, error) {
	return s.deps.Attempts.ListCompleted(ctx, userID)
}

// Profile returns the user's profile with badge progress.
func (s *AttemptService) Profile(ctx context.Context, userID string) (ProfileView, error) {
	profile, err := s.deps.Profiles.GetProfile(ctx, userID)
	if err != nil {
		return ProfileView{}, err
	}
	return ProfileView{Profile: profile, Progress: progression.Progress(profile.TotalPoints)}, nil
}

// GetLeaderboard returns the top n users; n <= 0 means DefaultLeaderboardSize.
func (s *AttemptService) GetLeaderboard(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	if s.deps.Leaderboard == nil {
		return nil, nil
	}
	return s.deps.Leaderboard.Top(ctx, n)
}

// Close stops every capture session still running. Their attempts keep the
// capturing status until answered.
func (s *AttemptService) Close() {
	if s.deps.Registry == nil {
		return
	}
	for _, session := range s.deps.Registry.Drain() {
		session.Stop()
	}
}
