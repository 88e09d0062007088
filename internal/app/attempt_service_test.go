package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/infra/memory"
)

type attemptFixture struct {
	svc       *app.AttemptService
	store     *memory.Store
	summaries *memory.SummaryStore
	board     *memory.Leaderboard
	registry  *memory.CaptureRegistry
	now       time.Time
}

func newAttemptFixture(t *testing.T, capture app.CaptureFactory) *attemptFixture {
	t.Helper()
	return newAttemptFixtureWith(t, capture, nil)
}

// newAttemptFixtureWith lets a test swap repositories before the service is
// built.
func newAttemptFixtureWith(t *testing.T, capture app.CaptureFactory, wrap func(*app.AttemptDeps)) *attemptFixture {
	t.Helper()
	store := memory.NewStore()
	for _, q := range []domain.Quiz{twoQuestionQuiz("quiz-1", domain.DifficultyMedium), twoQuestionQuiz("quiz-2", domain.DifficultyHard), {ID: "empty"}} {
		if err := store.SaveQuiz(context.Background(), q); err != nil {
			t.Fatalf("seed quiz: %v", err)
		}
	}
	f := &attemptFixture{
		store:     store,
		summaries: memory.NewSummaryStore(),
		board:     memory.NewLeaderboard(),
		registry:  memory.NewCaptureRegistry(),
		now:       time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	deps := app.AttemptDeps{
		Quizzes:     memory.NewQuizRepository(store, time.Minute),
		Attempts:    store,
		Profiles:    store,
		Summaries:   f.summaries,
		Leaderboard: f.board,
		Capture:     capture,
		Registry:    f.registry,
	}
	if wrap != nil {
		wrap(&deps)
	}
	f.svc = app.NewAttemptService(deps)
	f.svc.SetClock(func() time.Time { return f.now })
	return f
}

func twoQuestionQuiz(id string, d domain.Difficulty) domain.Quiz {
	return domain.Quiz{
		ID:         id,
		Difficulty: d,
		Questions: []domain.Question{
			{ID: "q1", Position: 1, QuestionSpec: domain.QuestionSpec{
				Text:          "FIFO?",
				Options:       map[string]string{"A": "Stack", "B": "Queue", "C": "Tree", "D": "Heap"},
				CorrectOption: "B",
			}},
			{ID: "q2", Position: 2, QuestionSpec: domain.QuestionSpec{
				Text:          "Binary search?",
				Options:       map[string]string{"A": "O(1)", "B": "O(n)", "C": "O(log n)", "D": "O(n!)"},
				CorrectOption: "C",
			}},
		},
	}
}

type fakeSession struct {
	mu       sync.Mutex
	startErr error
	summary  *domain.EmotionSummary
	started  bool
	stopped  int
}

func (s *fakeSession) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeSession) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *fakeSession) Finalize() (domain.EmotionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return domain.EmotionSummary{}, false
	}
	return *s.summary, true
}

func factoryOf(sessions map[string]*fakeSession, template func() *fakeSession) app.CaptureFactory {
	var mu sync.Mutex
	return app.CaptureFactoryFunc(func(attemptID, _ string) app.CaptureSession {
		mu.Lock()
		defer mu.Unlock()
		s := template()
		sessions[attemptID] = s
		return s
	})
}

// faultyStore wraps the memory store with injectable delays and failures.
type faultyStore struct {
	*memory.Store

	getDelay      time.Duration
	captureErr    error
	awardFailures atomic.Int32

	// When set, the first CompleteAttempt closes entered and then waits for
	// release.
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

var errStoreDown = errors.New("store unavailable")

func (s *faultyStore) GetAttempt(ctx context.Context, attemptID string) (domain.QuizAttempt, error) {
	time.Sleep(s.getDelay)
	return s.Store.GetAttempt(ctx, attemptID)
}

func (s *faultyStore) SetCaptureStatus(ctx context.Context, attemptID string, status domain.CaptureStatus) error {
	if s.captureErr != nil {
		return s.captureErr
	}
	return s.Store.SetCaptureStatus(ctx, attemptID, status)
}

func (s *faultyStore) CompleteAttempt(ctx context.Context, attemptID string, c app.Completion) error {
	if s.entered != nil {
		s.once.Do(func() {
			close(s.entered)
			<-s.release
		})
	}
	return s.Store.CompleteAttempt(ctx, attemptID, c)
}

func (s *faultyStore) AwardAttempt(ctx context.Context, attemptID, userID string, fn func(domain.Profile) domain.Profile) (domain.Profile, bool, error) {
	if s.awardFailures.Add(-1) >= 0 {
		return domain.Profile{}, false, errStoreDown
	}
	return s.Store.AwardAttempt(ctx, attemptID, userID, fn)
}

func withFaultyStore(fs **faultyStore, setup func(*faultyStore)) func(*app.AttemptDeps) {
	return func(deps *app.AttemptDeps) {
		s := &faultyStore{Store: deps.Attempts.(*memory.Store)}
		if setup != nil {
			setup(s)
		}
		deps.Attempts = s
		deps.Profiles = s
		*fs = s
	}
}

func TestAttemptLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, nil)

	started, err := f.svc.Start(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attempt := started.Attempt
	if attempt.State != domain.AttemptStarted || attempt.CaptureStatus != domain.CaptureNotStarted {
		t.Fatalf("unexpected started attempt %+v", attempt)
	}
	if len(started.Quiz.Questions) != 2 {
		t.Fatalf("start should return the quiz")
	}

	res, err := f.svc.SubmitAnswer(ctx, "u1", attempt.ID, "q1", " b ", domain.EmotionScores{"happy": 70, "neutral": 30})
	if err != nil {
		t.Fatalf("submit q1: %v", err)
	}
	if !res.IsCorrect || res.Completed || res.Score != nil {
		t.Fatalf("unexpected first result %+v", res)
	}
	got, _ := f.svc.Get(ctx, "u1", attempt.ID)
	if got.State != domain.AttemptAnswering || got.EmotionsLog["q1"]["happy"] != 70 {
		t.Fatalf("expected answering with emotions log, got %+v", got)
	}

	res, err = f.svc.SubmitAnswer(ctx, "u1", attempt.ID, "q2", "A", nil)
	if err != nil {
		t.Fatalf("submit q2: %v", err)
	}
	if res.IsCorrect || !res.Completed || res.Score == nil || *res.Score != 50 {
		t.Fatalf("unexpected completing result %+v", res)
	}
	if res.PointsAwarded != 10 || res.Profile.TotalPoints != 10 || res.Profile.CurrentStreak != 1 {
		t.Fatalf("unexpected progression %+v / %+v", res.PointsAwarded, res.Profile)
	}

	got, _ = f.svc.Get(ctx, "u1", attempt.ID)
	if !got.Completed() || got.CompletedAt == nil || *got.Score != 50 {
		t.Fatalf("attempt not completed: %+v", got)
	}

	history, _ := f.svc.History(ctx, "u1")
	if len(history) != 1 || history[0].ID != attempt.ID {
		t.Fatalf("unexpected history %+v", history)
	}
	view, _ := f.svc.Profile(ctx, "u1")
	if view.Progress.Next != domain.BadgeBronze || view.Progress.PointsNeeded != 490 {
		t.Fatalf("unexpected progress %+v", view.Progress)
	}
	top, _ := f.svc.GetLeaderboard(ctx, 0)
	if len(top) != 1 || top[0].UserID != "u1" || top[0].TotalPoints != 10 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestStartErrors(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, nil)

	if _, err := f.svc.Start(ctx, "u1", "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
	if _, err := f.svc.Start(ctx, "u1", "empty"); !errors.Is(err, domain.ErrEmptyQuiz) {
		t.Fatalf("expected empty quiz, got %v", err)
	}
	if _, err := f.svc.Start(ctx, "u1", "quiz-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.svc.Start(ctx, "u1", "quiz-1"); !errors.Is(err, domain.ErrDuplicateAttempt) {
		t.Fatalf("expected duplicate attempt, got %v", err)
	}
	if _, err := f.svc.Start(ctx, "u2", "quiz-1"); err != nil {
		t.Fatalf("another user may attempt the same quiz: %v", err)
	}
}

func TestSubmitAnswerErrors(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, nil)
	started, _ := f.svc.Start(ctx, "u1", "quiz-1")
	id := started.Attempt.ID

	cases := []struct {
		name     string
		user     string
		attempt  string
		question string
		want     error
	}{
		{"unknown attempt", "u1", "missing", "q1", domain.ErrAttemptNotFound},
		{"someone else's attempt", "u2", id, "q1", domain.ErrAttemptNotFound},
		{"unknown question", "u1", id, "q9", domain.ErrQuestionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SubmitAnswer(ctx, tc.user, tc.attempt, tc.question, "A", nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q1", "B", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q1", "C", nil); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer, got %v", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil); err != nil {
		t.Fatalf("submit last: %v", err)
	}
	if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil); !errors.Is(err, domain.ErrAttemptAlreadyCompleted) {
		t.Fatalf("expected already completed, got %v", err)
	}
	if _, err := f.svc.Get(ctx, "u2", id); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected foreign attempt to be hidden, got %v", err)
	}
}

func TestConcurrentLastAnswerCompletesOnce(t *testing.T) {
	ctx := context.Background()
	var store *faultyStore
	f := newAttemptFixtureWith(t, nil, withFaultyStore(&store, func(s *faultyStore) {
		s.entered = make(chan struct{})
		s.release = make(chan struct{})
	}))
	started, _ := f.svc.Start(ctx, "u1", "quiz-2")
	id := started.Attempt.ID
	if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q1", "B", nil); err != nil {
		t.Fatalf("submit q1: %v", err)
	}

	first := make(chan error, 1)
	go func() {
		_, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil)
		first <- err
	}()
	<-store.entered

	second := make(chan error, 1)
	go func() {
		_, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil)
		second <- err
	}()
	// Let the duplicate queue behind the completing submission.
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	if err := <-first; err != nil {
		t.Fatalf("completing submission: %v", err)
	}
	if err := <-second; !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate answer for the racing submission, got %v", err)
	}

	view, _ := f.svc.Profile(ctx, "u1")
	if view.Profile.TotalPoints != 30 {
		t.Fatalf("progression must run once, total points %d", view.Profile.TotalPoints)
	}
}

func TestLateSubmissionsAfterCompletion(t *testing.T) {
	ctx := context.Background()
	var store *faultyStore
	f := newAttemptFixtureWith(t, nil, withFaultyStore(&store, nil))
	started, _ := f.svc.Start(ctx, "u1", "quiz-1")
	id := started.Attempt.ID
	_, _ = f.svc.SubmitAnswer(ctx, "u1", id, "q1", "B", nil)
	if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Slow reads make the late submissions contend for the attempt.
	store.getDelay = 30 * time.Millisecond

	const workers = 3
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for _, q := range []string{"q2", "q2", "q1"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SubmitAnswer(ctx, "u1", id, q, "C", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, domain.ErrAttemptAlreadyCompleted) {
			t.Fatalf("expected already completed, got %v", err)
		}
	}
}

func TestFailedProgressionIsAppliedOnRetry(t *testing.T) {
	ctx := context.Background()
	var store *faultyStore
	f := newAttemptFixtureWith(t, nil, withFaultyStore(&store, func(s *faultyStore) {
		s.awardFailures.Store(1)
	}))
	started, _ := f.svc.Start(ctx, "u1", "quiz-1")
	id := started.Attempt.ID
	_, _ = f.svc.SubmitAnswer(ctx, "u1", id, "q1", "B", nil)

	if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected the profile failure, got %v", err)
	}
	got, _ := f.svc.Get(ctx, "u1", id)
	if !got.Completed() || got.ProgressionApplied {
		t.Fatalf("expected completed attempt with pending progression, got %+v", got)
	}

	for range 2 {
		if _, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil); !errors.Is(err, domain.ErrAttemptAlreadyCompleted) {
			t.Fatalf("expected already completed on retry, got %v", err)
		}
	}

	view, _ := f.svc.Profile(ctx, "u1")
	if view.Profile.TotalPoints != 20 || view.Profile.CurrentStreak != 1 {
		t.Fatalf("progression must be applied exactly once, got %+v", view.Profile)
	}
	top, _ := f.svc.GetLeaderboard(ctx, 0)
	if len(top) != 1 || top[0].TotalPoints != 20 {
		t.Fatalf("leaderboard not updated: %+v", top)
	}
}

func TestStreakAcrossDays(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t, nil)

	finish := func(quizID string) *domain.Profile {
		started, err := f.svc.Start(ctx, "u1", quizID)
		if err != nil {
			t.Fatalf("start %s: %v", quizID, err)
		}
		_, _ = f.svc.SubmitAnswer(ctx, "u1", started.Attempt.ID, "q1", "B", nil)
		res, err := f.svc.SubmitAnswer(ctx, "u1", started.Attempt.ID, "q2", "C", nil)
		if err != nil {
			t.Fatalf("complete %s: %v", quizID, err)
		}
		return res.Profile
	}

	p := finish("quiz-1")
	if p.CurrentStreak != 1 || p.TotalPoints != 20 {
		t.Fatalf("day 1: %+v", p)
	}
	f.now = f.now.Add(24 * time.Hour)
	p = finish("quiz-2")
	if p.CurrentStreak != 2 || p.HighestStreak != 2 || p.TotalPoints != 50 {
		t.Fatalf("day 2: %+v", p)
	}
}

func TestCaptureSummaryStoredOnCompletion(t *testing.T) {
	ctx := context.Background()
	sessions := map[string]*fakeSession{}
	summary := &domain.EmotionSummary{FrameCount: 2, Averages: domain.EmotionScores{"happy": 50}.Normalize()}
	f := newAttemptFixture(t, factoryOf(sessions, func() *fakeSession { return &fakeSession{summary: summary} }))

	started, err := f.svc.Start(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := started.Attempt.ID
	if started.Attempt.CaptureStatus != domain.CaptureRunning || f.registry.Len() != 1 {
		t.Fatalf("expected running capture, got %+v", started.Attempt)
	}

	_, _ = f.svc.SubmitAnswer(ctx, "u1", id, "q1", "B", nil)
	res, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Attempt.CaptureStatus != domain.CaptureFinished || res.Attempt.EmotionSummaryRef == "" {
		t.Fatalf("expected stored summary, got %+v", res.Attempt)
	}
	if sessions[id].stopped != 1 || f.registry.Len() != 0 {
		t.Fatalf("session must be stopped and released")
	}
	stored, ok := f.summaries.Summary(id)
	if !ok || stored.FrameCount != 2 {
		t.Fatalf("summary not persisted: %+v", stored)
	}
}

func TestCaptureFailuresNeverFailTheAttempt(t *testing.T) {
	ctx := context.Background()

	t.Run("device unavailable", func(t *testing.T) {
		sessions := map[string]*fakeSession{}
		f := newAttemptFixture(t, factoryOf(sessions, func() *fakeSession {
			return &fakeSession{startErr: domain.ErrDeviceUnavailable}
		}))
		started, err := f.svc.Start(ctx, "u1", "quiz-1")
		if err != nil {
			t.Fatalf("start must succeed without a camera: %v", err)
		}
		if started.Attempt.CaptureStatus != domain.CaptureNotStarted || f.registry.Len() != 0 {
			t.Fatalf("unexpected capture state %+v", started.Attempt)
		}
		_, _ = f.svc.SubmitAnswer(ctx, "u1", started.Attempt.ID, "q1", "B", nil)
		res, err := f.svc.SubmitAnswer(ctx, "u1", started.Attempt.ID, "q2", "C", nil)
		if err != nil || res.Attempt.CaptureStatus != domain.CaptureNotStarted {
			t.Fatalf("unexpected completion %+v %v", res.Attempt, err)
		}
	})

	t.Run("no samples", func(t *testing.T) {
		sessions := map[string]*fakeSession{}
		f := newAttemptFixture(t, factoryOf(sessions, func() *fakeSession { return &fakeSession{} }))
		started, _ := f.svc.Start(ctx, "u1", "quiz-1")
		_, _ = f.svc.SubmitAnswer(ctx, "u1", started.Attempt.ID, "q1", "B", nil)
		res, err := f.svc.SubmitAnswer(ctx, "u1", started.Attempt.ID, "q2", "C", nil)
		if err != nil {
			t.Fatalf("complete: %v", err)
		}
		if res.Attempt.CaptureStatus != domain.CaptureNoData || res.Attempt.EmotionSummaryRef != "" {
			t.Fatalf("expected no data, got %+v", res.Attempt)
		}
	})
}

func TestCaptureStoppedWhenStatusNotRecorded(t *testing.T) {
	ctx := context.Background()
	sessions := map[string]*fakeSession{}
	var store *faultyStore
	f := newAttemptFixtureWith(t, factoryOf(sessions, func() *fakeSession { return &fakeSession{} }),
		withFaultyStore(&store, func(s *faultyStore) { s.captureErr = errStoreDown }))

	started, err := f.svc.Start(ctx, "u1", "quiz-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	id := started.Attempt.ID
	if started.Attempt.CaptureStatus != domain.CaptureNotStarted {
		t.Fatalf("expected not_started, got %s", started.Attempt.CaptureStatus)
	}
	if sessions[id].stopped != 1 || f.registry.Len() != 0 {
		t.Fatalf("session must be stopped and released, stopped=%d registry=%d", sessions[id].stopped, f.registry.Len())
	}

	_, _ = f.svc.SubmitAnswer(ctx, "u1", id, "q1", "B", nil)
	res, err := f.svc.SubmitAnswer(ctx, "u1", id, "q2", "C", nil)
	if err != nil || res.Attempt.CaptureStatus != domain.CaptureNotStarted {
		t.Fatalf("unexpected completion %+v %v", res.Attempt, err)
	}
}

func TestCloseStopsRunningSessions(t *testing.T) {
	ctx := context.Background()
	sessions := map[string]*fakeSession{}
	f := newAttemptFixture(t, factoryOf(sessions, func() *fakeSession { return &fakeSession{} }))

	a, _ := f.svc.Start(ctx, "u1", "quiz-1")
	b, _ := f.svc.Start(ctx, "u2", "quiz-1")
	f.svc.Close()

	if sessions[a.Attempt.ID].stopped != 1 || sessions[b.Attempt.ID].stopped != 1 {
		t.Fatalf("expected every session stopped")
	}
	if f.registry.Len() != 0 {
		t.Fatalf("registry should be empty after close")
	}
}
