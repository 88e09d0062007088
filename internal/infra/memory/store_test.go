package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/domain"
)

func TestStoreAttemptInvariants(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	attempt := domain.QuizAttempt{ID: "a1", UserID: "u1", QuizID: "quiz-1", State: domain.AttemptStarted}

	if err := store.CreateAttempt(ctx, attempt); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := attempt
	dup.ID = "a2"
	if err := store.CreateAttempt(ctx, dup); !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected duplicate attempt, got %v", err)
	}

	answer := domain.AnswerRecord{QuestionID: "q1", SubmittedValue: "B", IsCorrect: true}
	if err := store.AddAnswer(ctx, "a1", answer, domain.EmotionScores{"happy": 1}); err != nil {
		t.Fatalf("add answer: %v", err)
	}
	if err := store.AddAnswer(ctx, "a1", answer, nil); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer, got %v", err)
	}

	got, _ := store.GetAttempt(ctx, "a1")
	if got.State != domain.AttemptAnswering || got.EmotionsLog["q1"]["happy"] != 1 {
		t.Fatalf("unexpected attempt %+v", got)
	}

	done := app.Completion{Score: 50, CompletedAt: time.Now(), CaptureStatus: domain.CaptureNoData}
	if err := store.CompleteAttempt(ctx, "a1", done); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.CompleteAttempt(ctx, "a1", done); !errors.Is(err, domain.ErrAttemptAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	if err := store.AddAnswer(ctx, "a1", domain.AnswerRecord{QuestionID: "q2"}, nil); !errors.Is(err, domain.ErrAttemptAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateAttempt(ctx, domain.QuizAttempt{ID: "a1", UserID: "u1", QuizID: "quiz-1"})

	got, _ := store.GetAttempt(ctx, "a1")
	got.Answers["q1"] = domain.AnswerRecord{QuestionID: "q1"}

	again, _ := store.GetAttempt(ctx, "a1")
	if len(again.Answers) != 0 {
		t.Fatalf("caller mutation leaked into the store")
	}
}

func TestStoreListCompletedNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		_ = store.CreateAttempt(ctx, domain.QuizAttempt{ID: id, UserID: "u1", QuizID: "quiz-" + id})
		if id == "a2" {
			continue
		}
		_ = store.CompleteAttempt(ctx, id, app.Completion{CompletedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	_ = store.CreateAttempt(ctx, domain.QuizAttempt{ID: "b1", UserID: "u2", QuizID: "quiz-1"})
	_ = store.CompleteAttempt(ctx, "b1", app.Completion{CompletedAt: base})

	got, err := store.ListCompleted(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a3" || got[1].ID != "a1" {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestStoreProfiles(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	p, _ := store.GetProfile(ctx, "u1")
	if p.UserID != "u1" || p.Badge != domain.BadgeNone || p.TotalPoints != 0 {
		t.Fatalf("expected initial profile, got %+v", p)
	}

	updated, err := store.UpdateProfile(ctx, "u1", func(p domain.Profile) domain.Profile {
		p.TotalPoints += 20
		return p
	})
	if err != nil || updated.TotalPoints != 20 {
		t.Fatalf("update: %+v %v", updated, err)
	}
	p, _ = store.GetProfile(ctx, "u1")
	if p.TotalPoints != 20 {
		t.Fatalf("expected persisted points, got %d", p.TotalPoints)
	}
}

func TestStoreAwardsEachAttemptOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	add := func(p domain.Profile) domain.Profile {
		p.TotalPoints += 20
		return p
	}

	_ = store.CreateAttempt(ctx, domain.QuizAttempt{ID: "a1", UserID: "u1", QuizID: "quiz-1"})
	if _, applied, _ := store.AwardAttempt(ctx, "a1", "u1", add); applied {
		t.Fatalf("an open attempt must not be awarded")
	}

	_ = store.CompleteAttempt(ctx, "a1", app.Completion{Score: 100, CompletedAt: time.Now()})
	p, applied, err := store.AwardAttempt(ctx, "a1", "u1", add)
	if err != nil || !applied || p.TotalPoints != 20 {
		t.Fatalf("first award: %+v %v %v", p, applied, err)
	}
	p, applied, err = store.AwardAttempt(ctx, "a1", "u1", add)
	if err != nil || applied || p.TotalPoints != 20 {
		t.Fatalf("second award must be a no-op: %+v %v %v", p, applied, err)
	}

	got, _ := store.GetAttempt(ctx, "a1")
	if !got.ProgressionApplied {
		t.Fatalf("attempt should record the award")
	}
}

func TestStoreDocuments(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if _, err := store.GetDocument(ctx, "d1"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = store.CreateDocument(ctx, domain.Document{ID: "d1", Title: "Graphs"})
	doc, err := store.GetDocument(ctx, "d1")
	if err != nil || doc.Title != "Graphs" {
		t.Fatalf("get document: %+v %v", doc, err)
	}
}
