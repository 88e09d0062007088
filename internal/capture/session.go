package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/pkg/logger"
)

// State is the lifecycle position of a capture session.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateStopped   State = "stopped"
)

const (
	DefaultInterval        = 100 * time.Millisecond
	DefaultClassifyTimeout = 2 * time.Second
)

// Options tune the sampling loop.
type Options struct {
	// Interval between samples. Default 100ms (~10 samples per second).
	Interval time.Duration
	// MaxDuration stops the loop and frees the camera even if the owner never
	// calls Stop. Zero disables the limit.
	MaxDuration time.Duration
	// ClassifyTimeout bounds a single classifier call.
	ClassifyTimeout time.Duration
	// Now is injectable for deterministic timestamps in tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = DefaultClassifyTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session is the capture lifetime of one attempt. It is owned by exactly one
// attempt and never shared, and reads only frames published by userID.
type Session struct {
	attemptID  string
	userID     string
	camera     *Camera
	classifier Classifier
	opts       Options
	log        *logger.Logger

	mu      sync.Mutex
	state   State
	history []domain.EmotionSample
	stop    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewSession(attemptID, userID string, camera *Camera, classifier Classifier, opts Options, log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		attemptID:  attemptID,
		userID:     userID,
		camera:     camera,
		classifier: classifier,
		opts:       opts.withDefaults(),
		log:        log.With("attempt_id", attemptID),
		state:      StateIdle,
	}
}

// AttemptID returns the attempt this session belongs to.
func (s *Session) AttemptID() string { return s.attemptID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SampleCount returns the number of samples recorded so far.
func (s *Session) SampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Start acquires the camera and launches the sampling loop. Acquisition
// failures wrap domain.ErrDeviceUnavailable.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("capture session for %s is %s", s.attemptID, s.state)
	}
	if err := s.camera.Acquire(ctx, s.attemptID, s.userID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
	}
	s.state = StateCapturing
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	// The loop outlives the request that started it; Stop cancels it so an
	// in-flight classification does not delay the release.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	go s.run(runCtx, s.stop, s.done)
	s.log.Info("emotion capture started", "interval", s.opts.Interval)
	return nil
}

// Stop ends the loop, abandoning any in-flight read or classification, waits
// for it and frees the camera. Calling Stop on a session that is not capturing
// is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	done := s.done
	if s.state != StateCapturing {
		s.mu.Unlock()
		if done != nil {
			<-done
		}
		return
	}
	s.state = StateStopped
	close(s.stop)
	s.cancel()
	s.mu.Unlock()

	<-done
	s.log.Info("emotion capture stopped", "samples", s.SampleCount())
}

// Finalize averages the recorded samples. It returns false when the session
// is still capturing or recorded no samples.
func (s *Session) Finalize() (domain.EmotionSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCapturing {
		return domain.EmotionSummary{}, false
	}
	history := make([]domain.EmotionSample, len(s.history))
	copy(history, s.history)
	return Summarize(history)
}

func (s *Session) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.release()
	defer s.cancel()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if s.opts.MaxDuration > 0 {
		timer := time.NewTimer(s.opts.MaxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-stop:
			return
		case <-deadline:
			s.mu.Lock()
			if s.state == StateCapturing {
				s.state = StateStopped
			}
			s.mu.Unlock()
			s.log.Warn("emotion capture exceeded max duration, releasing camera", "max_duration", s.opts.MaxDuration)
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

// sample records at most one sample. Every failure is absorbed.
func (s *Session) sample(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("classifier panicked, skipping frame", "panic", r)
		}
	}()

	frame, err := s.camera.Read(ctx, s.attemptID)
	if err != nil {
		s.log.Debug("frame read failed", "error", err)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.opts.ClassifyTimeout)
	defer cancel()
	scores, found, err := s.classifier.Classify(cctx, frame)
	if err != nil {
		s.log.Debug("frame classification failed", "error", err)
		return
	}
	if !found {
		return
	}

	entry := domain.EmotionSample{Timestamp: s.opts.Now(), Scores: scores.Normalize()}
	s.mu.Lock()
	if s.state == StateCapturing {
		s.history = append(s.history, entry)
	}
	s.mu.Unlock()
}

func (s *Session) release() {
	if err := s.camera.Release(s.attemptID); err != nil {
		s.log.Warn("release capture device", "error", err)
	}
}

// Summarize computes per-label means over samples. It returns false for an
// empty history.
func Summarize(samples []domain.EmotionSample) (domain.EmotionSummary, bool) {
	if len(samples) == 0 {
		return domain.EmotionSummary{}, false
	}
	totals := make(domain.EmotionScores, len(domain.EmotionLabels))
	for _, sample := range samples {
		for _, label := range domain.EmotionLabels {
			totals[label] += sample.Scores[label]
		}
	}
	n := float64(len(samples))
	for label, total := range totals {
		totals[label] = total / n
	}
	return domain.EmotionSummary{
		Averages:   totals,
		History:    samples,
		FrameCount: len(samples),
	}, true
}

// Factory builds sessions that share one camera and classifier.
type Factory struct {
	camera     *Camera
	classifier Classifier
	opts       Options
	log        *logger.Logger
}

func NewFactory(camera *Camera, classifier Classifier, opts Options, log *logger.Logger) *Factory {
	return &Factory{camera: camera, classifier: classifier, opts: opts, log: log}
}

// NewSession returns an idle session for attemptID reading userID's frames.
func (f *Factory) NewSession(attemptID, userID string) *Session {
	return NewSession(attemptID, userID, f.camera, f.classifier, f.opts, f.log)
}
