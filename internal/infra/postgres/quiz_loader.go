package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"moodquiz-service/internal/domain"
)

// QuizLoader reads quizzes and their questions straight from the pool. It
// backs the quiz caches, which only need read access.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var (
		quiz       domain.Quiz
		difficulty string
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, document_id, title, difficulty, created_at FROM quizzes WHERE id = $1`, quizID,
	).Scan(&quiz.ID, &quiz.DocumentID, &quiz.Title, &difficulty, &quiz.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz.Difficulty = domain.Difficulty(difficulty)

	rows, err := l.pool.Query(ctx,
		`SELECT id, position, text, option_a, option_b, option_c, option_d, correct_option
		   FROM questions WHERE quiz_id = $1 ORDER BY position`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q          domain.Question
			a, b, c, d string
		)
		if err := rows.Scan(&q.ID, &q.Position, &q.Text, &a, &b, &c, &d, &q.CorrectOption); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.Options = map[string]string{"A": a, "B": b, "C": c, "D": d}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	return quiz, nil
}

// NewPool opens a pgx pool for dsn.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}
