package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moodquiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	store := NewStore()
	_ = store.SaveQuiz(context.Background(), sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	store := NewStore()
	_ = store.SaveQuiz(context.Background(), sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestQuizRepositoryCoalescesMisses(t *testing.T) {
	gate := make(chan struct{})
	loader := &countingLoader{QuizLoader: NewStore(), gate: gate, quiz: sampleQuiz()}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}
}

func TestQuizRepositoryPrimeAndMiss(t *testing.T) {
	repo := NewQuizRepository(NewStore(), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	repo.Prime(sampleQuiz())
	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil || len(quiz.Questions) != 2 {
		t.Fatalf("expected primed quiz, got %+v %v", quiz, err)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
	gate  chan struct{}
	quiz  domain.Quiz
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
		return l.quiz, nil
	}
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:         "quiz-1",
		Title:      "Quiz for Sorting (Medium)",
		Difficulty: domain.DifficultyMedium,
		Questions: []domain.Question{
			{ID: "q1", Position: 1, QuestionSpec: domain.QuestionSpec{
				Text:          "What is 2 + 2?",
				Options:       map[string]string{"A": "3", "B": "4", "C": "5", "D": "22"},
				CorrectOption: "B",
			}},
			{ID: "q2", Position: 2, QuestionSpec: domain.QuestionSpec{
				Text:          "Which sort is stable?",
				Options:       map[string]string{"A": "Merge sort", "B": "Heap sort", "C": "Quick sort", "D": "Selection sort"},
				CorrectOption: "A",
			}},
		},
	}
}
