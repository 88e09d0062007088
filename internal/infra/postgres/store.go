package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/domain"
)

// Store persists documents, quizzes, attempts, profiles and emotion
// summaries with bun. Uniqueness rules live in the schema; Store maps their
// violations onto domain errors.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateDocument(ctx context.Context, doc domain.Document) error {
	row := &documentRow{
		ID:         doc.ID,
		UserID:     doc.UserID,
		Title:      doc.Title,
		SourceText: doc.SourceText,
		Difficulty: string(doc.Difficulty),
		CreatedAt:  doc.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	row := new(documentRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", documentID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("select document: %w", err)
	}
	return domain.Document{
		ID:         row.ID,
		UserID:     row.UserID,
		Title:      row.Title,
		SourceText: row.SourceText,
		Difficulty: domain.Difficulty(row.Difficulty),
		CreatedAt:  row.CreatedAt,
	}, nil
}

// SaveQuiz writes a quiz and its questions in one transaction.
func (s *Store) SaveQuiz(ctx context.Context, quiz domain.Quiz) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := &quizRow{
			ID:         quiz.ID,
			DocumentID: quiz.DocumentID,
			Title:      quiz.Title,
			Difficulty: string(quiz.Difficulty),
			CreatedAt:  quiz.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz: %w", err)
		}
		if len(quiz.Questions) == 0 {
			return nil
		}
		questions := make([]*questionRow, len(quiz.Questions))
		for i, q := range quiz.Questions {
			questions[i] = questionRowFrom(quiz.ID, q)
		}
		if _, err := tx.NewInsert().Model(&questions).Exec(ctx); err != nil {
			return fmt.Errorf("insert questions: %w", err)
		}
		return nil
	})
}

func (s *Store) CreateAttempt(ctx context.Context, attempt domain.QuizAttempt) error {
	row := &attemptRow{
		ID:            attempt.ID,
		UserID:        attempt.UserID,
		QuizID:        attempt.QuizID,
		State:         string(attempt.State),
		CaptureStatus: string(attempt.CaptureStatus),
		StartedAt:     attempt.StartedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateAttempt
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *Store) GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	row := new(attemptRow)
	err := s.db.NewSelect().Model(row).Relation("Answers").Where("attempt_row.id = ?", attemptID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizAttempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.QuizAttempt{}, fmt.Errorf("select attempt: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) SetCaptureStatus(ctx context.Context, attemptID string, status domain.CaptureStatus) error {
	res, err := s.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("capture_status = ?", string(status)).
		Where("id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update capture status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

// AddAnswer locks the attempt row so that an answer never lands on an attempt
// that completed concurrently.
func (s *Store) AddAnswer(ctx context.Context, attemptID string, answer domain.AnswerRecord, emotions domain.EmotionScores) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var state string
		err := tx.NewSelect().Model((*attemptRow)(nil)).Column("state").
			Where("id = ?", attemptID).For("UPDATE").Scan(ctx, &state)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrAttemptNotFound
		}
		if err != nil {
			return fmt.Errorf("lock attempt: %w", err)
		}
		if domain.AttemptState(state) == domain.AttemptCompleted {
			return domain.ErrAttemptAlreadyCompleted
		}

		row := &answerRow{
			AttemptID:      attemptID,
			QuestionID:     answer.QuestionID,
			SubmittedValue: answer.SubmittedValue,
			IsCorrect:      answer.IsCorrect,
			Emotions:       emotions,
			AnsweredAt:     answer.AnsweredAt,
		}
		if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateAnswer
			}
			return fmt.Errorf("insert answer: %w", err)
		}

		_, err = tx.NewUpdate().Model((*attemptRow)(nil)).
			Set("state = ?", string(domain.AttemptAnswering)).
			Where("id = ?", attemptID).
			Where("state = ?", string(domain.AttemptStarted)).
			Exec(ctx)
		return err
	})
}

// CompleteAttempt is a conditional transition; only one caller can move the
// attempt to completed.
func (s *Store) CompleteAttempt(ctx context.Context, attemptID string, c app.Completion) error {
	q := s.db.NewUpdate().Model((*attemptRow)(nil)).
		Set("state = ?", string(domain.AttemptCompleted)).
		Set("score = ?", c.Score).
		Set("completed_at = ?", c.CompletedAt).
		Set("capture_status = ?", string(c.CaptureStatus)).
		Where("id = ?", attemptID).
		Where("state <> ?", string(domain.AttemptCompleted))
	if c.EmotionSummaryRef != "" {
		q = q.Set("emotion_summary_ref = ?", c.EmotionSummaryRef)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	exists, err := s.db.NewSelect().Model((*attemptRow)(nil)).Where("id = ?", attemptID).Exists(ctx)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if !exists {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrAttemptAlreadyCompleted
}

func (s *Store) ListCompleted(ctx context.Context, userID string) ([]domain.QuizAttempt, error) {
	var rows []*attemptRow
	err := s.db.NewSelect().Model(&rows).Relation("Answers").
		Where("attempt_row.user_id = ?", userID).
		Where("attempt_row.state = ?", string(domain.AttemptCompleted)).
		Order("attempt_row.completed_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list completed attempts: %w", err)
	}
	out := make([]domain.QuizAttempt, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	row := new(profileRow)
	err := s.db.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewProfile(userID), nil
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateProfile applies fn to the user's profile in its own transaction.
func (s *Store) UpdateProfile(ctx context.Context, userID string, fn func(domain.Profile) domain.Profile) (domain.Profile, error) {
	var out domain.Profile
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = updateProfile(ctx, tx, userID, fn)
		return err
	})
	return out, err
}

// AwardAttempt flags the attempt's progression and updates the profile in one
// transaction. The conditional flag update row-locks the attempt, so a
// concurrent award waits and then finds nothing left to apply.
func (s *Store) AwardAttempt(ctx context.Context, attemptID, userID string, fn func(domain.Profile) domain.Profile) (domain.Profile, bool, error) {
	var (
		out     domain.Profile
		applied bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*attemptRow)(nil)).
			Set("progression_applied = TRUE").
			Where("id = ?", attemptID).
			Where("state = ?", string(domain.AttemptCompleted)).
			Where("NOT progression_applied").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("flag attempt progression: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			row := new(profileRow)
			err := tx.NewSelect().Model(row).Where("user_id = ?", userID).Scan(ctx)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				out = domain.NewProfile(userID)
			case err != nil:
				return fmt.Errorf("select profile: %w", err)
			default:
				out = row.toDomain()
			}
			return nil
		}

		out, err = updateProfile(ctx, tx, userID, fn)
		applied = err == nil
		return err
	})
	if err != nil {
		return domain.Profile{}, false, err
	}
	return out, applied, nil
}

// updateProfile creates the profile on first use, then applies fn under a
// row lock.
func updateProfile(ctx context.Context, tx bun.Tx, userID string, fn func(domain.Profile) domain.Profile) (domain.Profile, error) {
	initial := profileRowFrom(domain.NewProfile(userID))
	if _, err := tx.NewInsert().Model(initial).On("CONFLICT (user_id) DO NOTHING").Exec(ctx); err != nil {
		return domain.Profile{}, fmt.Errorf("ensure profile: %w", err)
	}

	row := new(profileRow)
	if err := tx.NewSelect().Model(row).Where("user_id = ?", userID).For("UPDATE").Scan(ctx); err != nil {
		return domain.Profile{}, fmt.Errorf("lock profile: %w", err)
	}

	updated := fn(row.toDomain())
	updated.UserID = userID
	if _, err := tx.NewUpdate().Model(profileRowFrom(updated)).WherePK().Exec(ctx); err != nil {
		return domain.Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

// Top ranks profiles by points; it lets Store serve as the leaderboard when
// Redis is not configured.
func (s *Store) Top(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	var rows []*profileRow
	err := s.db.NewSelect().Model(&rows).
		Order("total_points DESC", "user_id ASC").
		Limit(n).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	out := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		out[i] = domain.LeaderboardEntry{Rank: i + 1, UserID: row.UserID, TotalPoints: row.TotalPoints, Badge: domain.Badge(row.Badge)}
	}
	return out, nil
}

// Record is a no-op: profiles are the ranking source.
func (s *Store) Record(context.Context, domain.Profile) error {
	return nil
}

// SaveSummary stores a summary once per attempt.
func (s *Store) SaveSummary(ctx context.Context, attemptID string, summary domain.EmotionSummary) (string, error) {
	row := &summaryRow{AttemptID: attemptID, Summary: summary, CreatedAt: time.Now().UTC()}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return "", domain.ErrSummaryExists
		}
		return "", fmt.Errorf("insert emotion summary: %w", err)
	}
	return "postgres://emotion_summaries/" + attemptID, nil
}

// GetSummary loads a stored summary.
func (s *Store) GetSummary(ctx context.Context, attemptID string) (domain.EmotionSummary, error) {
	row := new(summaryRow)
	if err := s.db.NewSelect().Model(row).Where("attempt_id = ?", attemptID).Scan(ctx); err != nil {
		return domain.EmotionSummary{}, fmt.Errorf("select emotion summary: %w", err)
	}
	return row.Summary, nil
}
