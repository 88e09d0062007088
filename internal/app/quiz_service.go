package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/llm"
	"moodquiz-service/internal/parser"
	"moodquiz-service/internal/pkg/logger"
)

// GenerationOptions tune a single model call.
type GenerationOptions struct {
	MaxTokens   int
	Temperature float64
	// Timeout bounds each model call. Zero means no extra bound.
	Timeout time.Duration
}

// QuizService turns documents into quizzes.
type QuizService struct {
	documents DocumentRepository
	writer    QuizWriter
	quizzes   QuizRepository
	provider  llm.Provider
	opts      GenerationOptions
	log       *logger.Logger
	now       func() time.Time
}

func NewQuizService(documents DocumentRepository, writer QuizWriter, quizzes QuizRepository, provider llm.Provider, opts GenerationOptions, log *logger.Logger) *QuizService {
	if log == nil {
		log = logger.Nop()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &QuizService{
		documents: documents,
		writer:    writer,
		quizzes:   quizzes,
		provider:  provider,
		opts:      opts,
		log:       log.With("service", "app.QuizService"),
		now:       time.Now,
	}
}

// SetClock is test-only for deterministic timestamps.
func (s *QuizService) SetClock(now func() time.Time) {
	s.now = now
}

// CreateFromDocument stores the document and generates its first quiz. The
// document is kept even when generation fails so it can be regenerated.
func (s *QuizService) CreateFromDocument(ctx context.Context, userID, title, text, difficulty string) (domain.Document, domain.Quiz, error) {
	d, err := domain.ParseDifficulty(difficulty)
	if err != nil {
		return domain.Document{}, domain.Quiz{}, err
	}
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(text) == "" {
		return domain.Document{}, domain.Quiz{}, fmt.Errorf("%w: title and text are required", domain.ErrInvalidInput)
	}

	doc := domain.Document{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		SourceText: text,
		Difficulty: d,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.documents.CreateDocument(ctx, doc); err != nil {
		return domain.Document{}, domain.Quiz{}, fmt.Errorf("store document: %w", err)
	}

	quiz, err := s.buildQuiz(ctx, doc, fmt.Sprintf("Quiz for %s (%s)", doc.Title, d.Label()))
	if err != nil {
		return doc, domain.Quiz{}, err
	}
	return doc, quiz, nil
}

// Regenerate builds a new quiz from a document the user owns.
func (s *QuizService) Regenerate(ctx context.Context, userID, documentID string) (domain.Quiz, error) {
	doc, err := s.documents.GetDocument(ctx, documentID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if doc.UserID != userID {
		return domain.Quiz{}, domain.ErrDocumentNotFound
	}
	return s.buildQuiz(ctx, doc, fmt.Sprintf("Quiz for %s (%s - Regenerated)", doc.Title, doc.Difficulty.Label()))
}

// GetQuiz reads a quiz through the cache.
func (s *QuizService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// Generate asks the model for questions: the detailed difficulty-specific
// instruction first, then the simplified one. It fails with
// domain.ErrGenerationFailed when neither yields a valid question.
func (s *QuizService) Generate(ctx context.Context, text string, d domain.Difficulty) ([]domain.QuestionSpec, error) {
	prompts := []struct {
		name   string
		prompt string
	}{
		{"detailed", detailedPrompt(d, text)},
		{"simplified", simplifiedPrompt(text)},
	}

	var lastErr error
	for _, p := range prompts {
		specs, err := s.generateOnce(ctx, p.name, p.prompt)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = err
			continue
		}
		if len(specs) > 0 {
			return specs, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, lastErr)
	}
	return nil, domain.ErrGenerationFailed
}

func (s *QuizService) generateOnce(ctx context.Context, name, prompt string) ([]domain.QuestionSpec, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	req := llm.UserPrompt(prompt, s.opts.MaxTokens)
	req.Temperature = s.opts.Temperature
	resp, err := s.provider.Generate(ctx, req)
	if err != nil {
		s.log.Warn("question generation failed", "prompt", name, "error", err)
		return nil, err
	}

	specs, rejected := parser.ParseWithReport(resp.Text)
	for _, r := range rejected {
		s.log.Debug("dropped malformed question block", "prompt", name, "reason", r.Reason)
	}
	s.log.Info("questions generated", "prompt", name, "accepted", len(specs), "dropped", len(rejected))
	return specs, nil
}

func (s *QuizService) buildQuiz(ctx context.Context, doc domain.Document, title string) (domain.Quiz, error) {
	specs, err := s.Generate(ctx, doc.SourceText, doc.Difficulty)
	if err != nil {
		return domain.Quiz{}, err
	}

	quiz := domain.Quiz{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Title:      title,
		Difficulty: doc.Difficulty,
		Questions:  make([]domain.Question, len(specs)),
		CreatedAt:  s.now().UTC(),
	}
	for i, spec := range specs {
		quiz.Questions[i] = domain.Question{ID: uuid.NewString(), Position: i + 1, QuestionSpec: spec}
	}
	if err := s.writer.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("store quiz: %w", err)
	}
	s.log.Info("quiz created", "quiz_id", quiz.ID, "document_id", doc.ID, "questions", len(quiz.Questions))
	return quiz, nil
}
