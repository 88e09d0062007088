package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/infra/memory"
	"moodquiz-service/internal/llm"
)

const twoQuestions = `Here are your questions:

Q1. Which structure is FIFO?
A) Stack
B) Queue
C) Tree
D) Heap
Answer: B

Q2. What is the worst case of binary search?
A) O(1)
B) O(n)
C) O(log n)
D) O(n log n)
Answer: C`

func newQuizService(provider llm.Provider) (*app.QuizService, *memory.Store) {
	store := memory.NewStore()
	svc := app.NewQuizService(store, store, memory.NewQuizRepository(store, time.Minute), provider, app.GenerationOptions{MaxTokens: 512}, nil)
	svc.SetClock(func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) })
	return svc, store
}

func TestCreateFromDocument(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockProvider(llm.MockResponse{Text: twoQuestions})
	svc, store := newQuizService(mock)

	doc, quiz, err := svc.CreateFromDocument(ctx, "u1", "Data Structures", "Queues and stacks...", "hard")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quiz.Title != "Quiz for Data Structures (Hard)" {
		t.Fatalf("unexpected title %q", quiz.Title)
	}
	if len(quiz.Questions) != 2 || quiz.Questions[0].Position != 1 || quiz.Questions[1].CorrectOption != "C" {
		t.Fatalf("unexpected questions %+v", quiz.Questions)
	}
	if quiz.Difficulty != domain.DifficultyHard || quiz.DocumentID != doc.ID {
		t.Fatalf("quiz not linked to document: %+v", quiz)
	}
	if _, err := store.GetDocument(ctx, doc.ID); err != nil {
		t.Fatalf("document not stored: %v", err)
	}
	if got, err := svc.GetQuiz(ctx, quiz.ID); err != nil || got.ID != quiz.ID {
		t.Fatalf("quiz not readable: %v", err)
	}

	prompt := mock.Calls()[0].Messages[0].Content
	if !strings.Contains(prompt, "challenging") || !strings.Contains(prompt, "Queues and stacks...") {
		t.Fatalf("expected hard instructions with source text, got %q", prompt)
	}
}

func TestCreateFromDocumentDefaultsToMedium(t *testing.T) {
	svc, _ := newQuizService(llm.NewMockProvider(llm.MockResponse{Text: twoQuestions}))
	_, quiz, err := svc.CreateFromDocument(context.Background(), "u1", "Graphs", "text", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if quiz.Title != "Quiz for Graphs (Medium)" {
		t.Fatalf("unexpected title %q", quiz.Title)
	}
}

func TestGenerationFallsBackToSimplifiedPrompt(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.MockResponse{Text: "Sorry, I cannot help with that."},
		llm.MockResponse{Text: twoQuestions},
	)
	svc, _ := newQuizService(mock)

	_, quiz, err := svc.CreateFromDocument(context.Background(), "u1", "Graphs", "text", "easy")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("expected questions from retry, got %d", len(quiz.Questions))
	}
	if mock.CallCount() != 2 {
		t.Fatalf("expected 2 generation calls, got %d", mock.CallCount())
	}
	if retry := mock.Calls()[1].Messages[0].Content; !strings.HasPrefix(retry, "Generate 5 multiple-choice questions about this text") {
		t.Fatalf("expected simplified prompt, got %q", retry)
	}
}

func TestGenerationFailsWhenBothPromptsYieldNothing(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockProvider(
		llm.MockResponse{Text: "Q1. broken\nA) only one option"},
		llm.MockResponse{Text: "nothing useful"},
	)
	svc, store := newQuizService(mock)

	doc, _, err := svc.CreateFromDocument(ctx, "u1", "Graphs", "text", "medium")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if _, err := store.GetDocument(ctx, doc.ID); err != nil {
		t.Fatalf("document should be kept for regeneration: %v", err)
	}
}

func TestGenerationProviderErrorsSurfaceAsGenerationFailed(t *testing.T) {
	down := &llm.ErrProviderUnavailable{Err: errors.New("503")}
	svc, _ := newQuizService(llm.NewMockProvider(llm.MockResponse{Err: down}, llm.MockResponse{Err: down}))

	_, err := svc.Generate(context.Background(), "text", domain.DifficultyMedium)
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("expected generation failure, got %v", err)
	}
}

func TestCreateFromDocumentValidatesInput(t *testing.T) {
	svc, _ := newQuizService(llm.NewMockProvider())
	ctx := context.Background()

	if _, _, err := svc.CreateFromDocument(ctx, "u1", "T", "text", "insane"); !errors.Is(err, domain.ErrInvalidDifficulty) {
		t.Fatalf("expected invalid difficulty, got %v", err)
	}
	if _, _, err := svc.CreateFromDocument(ctx, "u1", " ", "text", "easy"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	mock := llm.NewMockProvider(llm.MockResponse{Text: twoQuestions}, llm.MockResponse{Text: twoQuestions})
	svc, _ := newQuizService(mock)

	doc, first, err := svc.CreateFromDocument(ctx, "u1", "Trees", "text", "easy")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Regenerate(ctx, "u2", doc.ID); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected foreign document to be hidden, got %v", err)
	}
	if _, err := svc.Regenerate(ctx, "u1", "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	second, err := svc.Regenerate(ctx, "u1", doc.ID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if second.ID == first.ID || second.Title != "Quiz for Trees (Easy - Regenerated)" {
		t.Fatalf("unexpected regenerated quiz %+v", second)
	}
}
