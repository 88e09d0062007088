package memory

import (
	"context"
	"sort"
	"sync"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/domain"
)

// Store keeps documents, quizzes, attempts and profiles in process memory.
// It enforces the same uniqueness rules as the Postgres stores and is used by
// tests and the single-node mode.
type Store struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	quizzes   map[string]domain.Quiz
	attempts  map[string]domain.QuizAttempt
	byUser    map[string]string // user|quiz -> attempt id
	profiles  map[string]domain.Profile
}

func NewStore() *Store {
	return &Store{
		documents: make(map[string]domain.Document),
		quizzes:   make(map[string]domain.Quiz),
		attempts:  make(map[string]domain.QuizAttempt),
		byUser:    make(map[string]string),
		profiles:  make(map[string]domain.Profile),
	}
}

func (s *Store) CreateDocument(_ context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = doc
	return nil
}

func (s *Store) GetDocument(_ context.Context, documentID string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[documentID]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Store) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[quiz.ID] = quiz
	return nil
}

// LoadQuiz implements QuizLoader.
func (s *Store) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *Store) CreateAttempt(_ context.Context, attempt domain.QuizAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attempt.UserID + "|" + attempt.QuizID
	if _, exists := s.byUser[key]; exists {
		return domain.ErrDuplicateAttempt
	}
	s.byUser[key] = attempt.ID
	s.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

func (s *Store) GetAttempt(_ context.Context, attemptID string) (domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	return copyAttempt(attempt), nil
}

func (s *Store) SetCaptureStatus(_ context.Context, attemptID string, status domain.CaptureStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	attempt.CaptureStatus = status
	s.attempts[attemptID] = attempt
	return nil
}

func (s *Store) AddAnswer(_ context.Context, attemptID string, answer domain.AnswerRecord, emotions domain.EmotionScores) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Completed() {
		return domain.ErrAttemptAlreadyCompleted
	}
	if _, dup := attempt.Answers[answer.QuestionID]; dup {
		return domain.ErrDuplicateAnswer
	}
	if attempt.Answers == nil {
		attempt.Answers = map[string]domain.AnswerRecord{}
	}
	attempt.Answers[answer.QuestionID] = answer
	if len(emotions) > 0 {
		if attempt.EmotionsLog == nil {
			attempt.EmotionsLog = map[string]domain.EmotionScores{}
		}
		attempt.EmotionsLog[answer.QuestionID] = emotions
	}
	attempt.State = domain.AttemptAnswering
	s.attempts[attemptID] = attempt
	return nil
}

func (s *Store) CompleteAttempt(_ context.Context, attemptID string, c app.Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Completed() {
		return domain.ErrAttemptAlreadyCompleted
	}
	score, completedAt := c.Score, c.CompletedAt
	attempt.State = domain.AttemptCompleted
	attempt.Score = &score
	attempt.CompletedAt = &completedAt
	attempt.EmotionSummaryRef = c.EmotionSummaryRef
	attempt.CaptureStatus = c.CaptureStatus
	s.attempts[attemptID] = attempt
	return nil
}

func (s *Store) ListCompleted(_ context.Context, userID string) ([]domain.QuizAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.QuizAttempt
	for _, attempt := range s.attempts {
		if attempt.UserID == userID && attempt.Completed() {
			out = append(out, copyAttempt(attempt))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(*out[j].CompletedAt)
	})
	return out, nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok {
		return p, nil
	}
	return domain.NewProfile(userID), nil
}

func (s *Store) UpdateProfile(_ context.Context, userID string, fn func(domain.Profile) domain.Profile) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.profiles[userID]
	if !ok {
		current = domain.NewProfile(userID)
	}
	updated := fn(current)
	updated.UserID = userID
	s.profiles[userID] = updated
	return updated, nil
}

// AwardAttempt updates the profile and flags the attempt under one lock.
func (s *Store) AwardAttempt(_ context.Context, attemptID, userID string, fn func(domain.Profile) domain.Profile) (domain.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.profiles[userID]
	if !ok {
		current = domain.NewProfile(userID)
	}
	attempt, ok := s.attempts[attemptID]
	if !ok || !attempt.Completed() || attempt.ProgressionApplied {
		return current, false, nil
	}
	updated := fn(current)
	updated.UserID = userID
	s.profiles[userID] = updated
	attempt.ProgressionApplied = true
	s.attempts[attemptID] = attempt
	return updated, true, nil
}

func copyAttempt(a domain.QuizAttempt) domain.QuizAttempt {
	answers := make(map[string]domain.AnswerRecord, len(a.Answers))
	for k, v := range a.Answers {
		answers[k] = v
	}
	a.Answers = answers
	if a.EmotionsLog != nil {
		log := make(map[string]domain.EmotionScores, len(a.EmotionsLog))
		for k, v := range a.EmotionsLog {
			log[k] = v
		}
		a.EmotionsLog = log
	}
	return a
}
