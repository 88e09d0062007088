package http

import (
	"cmp"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"moodquiz-service/internal/app"
	"moodquiz-service/internal/domain"
	"moodquiz-service/internal/pkg/logger"
)

// UserHeader carries the authenticated user id set by the fronting gateway.
const UserHeader = "X-User-ID"

// Handler exposes the quiz and attempt use cases over JSON.
type Handler struct {
	quizzes  *app.QuizService
	attempts *app.AttemptService
	log      *logger.Logger
}

func NewHandler(quizzes *app.QuizService, attempts *app.AttemptService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{quizzes: quizzes, attempts: attempts, log: log.With("service", "http.Handler")}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /documents", h.withUser(h.createDocument))
	mux.HandleFunc("POST /documents/{id}/regenerate", h.withUser(h.regenerate))
	mux.HandleFunc("GET /quizzes/{id}", h.withUser(h.getQuiz))
	mux.HandleFunc("POST /quizzes/{id}/attempts", h.withUser(h.startAttempt))
	mux.HandleFunc("GET /history", h.withUser(h.history))
	mux.HandleFunc("GET /attempts/{id}", h.withUser(h.getAttempt))
	mux.HandleFunc("POST /attempts/{id}/answers", h.withUser(h.submitAnswer))
	mux.HandleFunc("GET /profile", h.withUser(h.profile))
	mux.HandleFunc("GET /leaderboard", h.withUser(h.leaderboard))
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (h *Handler) withUser(next userHandler) http.HandlerFunc {
	return requireUser(next)
}

// requireUser rejects requests without the gateway's identity header.
func requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, errorPayload{Message: "missing " + UserHeader})
			return
		}
		next(w, r, userID)
	}
}

type createDocumentRequest struct {
	Title      string `json:"title"`
	Text       string `json:"text"`
	Difficulty string `json:"difficulty"`
}

type createDocumentResponse struct {
	Document documentView `json:"document"`
	Quiz     quizView     `json:"quiz"`
}

func (h *Handler) createDocument(w http.ResponseWriter, r *http.Request, userID string) {
	var req createDocumentRequest
	if !decode(w, r, &req) {
		return
	}
	doc, quiz, err := h.quizzes.CreateFromDocument(r.Context(), userID, req.Title, req.Text, req.Difficulty)
	if err != nil {
		if doc.ID != "" {
			h.log.Warn("document stored without quiz", "document_id", doc.ID, "error", err)
		}
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createDocumentResponse{Document: newDocumentView(doc), Quiz: newQuizView(quiz)})
}

func (h *Handler) regenerate(w http.ResponseWriter, r *http.Request, userID string) {
	quiz, err := h.quizzes.Regenerate(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newQuizView(quiz))
}

func (h *Handler) getQuiz(w http.ResponseWriter, r *http.Request, _ string) {
	quiz, err := h.quizzes.GetQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuizView(quiz))
}

type startAttemptResponse struct {
	Attempt attemptView `json:"attempt"`
	Quiz    quizView    `json:"quiz"`
}

func (h *Handler) startAttempt(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := h.attempts.Start(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, startAttemptResponse{Attempt: newAttemptView(res.Attempt), Quiz: newQuizView(res.Quiz)})
}

func (h *Handler) getAttempt(w http.ResponseWriter, r *http.Request, userID string) {
	attempt, err := h.attempts.Get(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttemptView(attempt))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request, userID string) {
	attempts, err := h.attempts.History(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]attemptView, len(attempts))
	for i, a := range attempts {
		out[i] = newAttemptView(a)
	}
	writeJSON(w, http.StatusOK, out)
}

type submitAnswerRequest struct {
	QuestionID string               `json:"questionId"`
	Answer     string               `json:"answer"`
	Emotions   domain.EmotionScores `json:"emotions,omitempty"`
}

type submitAnswerResponse struct {
	IsCorrect     bool            `json:"isCorrect"`
	Completed     bool            `json:"completed"`
	Score         *float64        `json:"score,omitempty"`
	PointsAwarded int             `json:"pointsAwarded"`
	Profile       *domain.Profile `json:"profile,omitempty"`
	Attempt       attemptView     `json:"attempt"`
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request, userID string) {
	var req submitAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	if req.QuestionID == "" || req.Answer == "" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "questionId and answer are required"})
		return
	}
	res, err := h.attempts.SubmitAnswer(r.Context(), userID, r.PathValue("id"), req.QuestionID, req.Answer, req.Emotions)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submitAnswerResponse{
		IsCorrect:     res.IsCorrect,
		Completed:     res.Completed,
		Score:         res.Score,
		PointsAwarded: res.PointsAwarded,
		Profile:       res.Profile,
		Attempt:       newAttemptView(res.Attempt),
	})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := h.attempts.Profile(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request, _ string) {
	n := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid limit"})
			return
		}
		n = v
	}
	entries, err := h.attempts.GetLeaderboard(r.Context(), n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type errorPayload struct {
	Message string `json:"message"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrAttemptNotFound),
		errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, domain.ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateAttempt),
		errors.Is(err, domain.ErrDuplicateAnswer),
		errors.Is(err, domain.ErrAttemptAlreadyCompleted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidDifficulty),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyQuiz):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorPayload{Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type documentView struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Difficulty domain.Difficulty `json:"difficulty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func newDocumentView(d domain.Document) documentView {
	return documentView{ID: d.ID, Title: d.Title, Difficulty: d.Difficulty, CreatedAt: d.CreatedAt}
}

// questionView never carries the correct option.
type questionView struct {
	ID       string            `json:"id"`
	Position int               `json:"position"`
	Text     string            `json:"text"`
	Options  map[string]string `json:"options"`
}

type quizView struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	Title      string            `json:"title"`
	Difficulty domain.Difficulty `json:"difficulty"`
	Questions  []questionView    `json:"questions"`
}

func newQuizView(q domain.Quiz) quizView {
	v := quizView{ID: q.ID, DocumentID: q.DocumentID, Title: q.Title, Difficulty: q.Difficulty, Questions: make([]questionView, len(q.Questions))}
	for i, question := range q.Questions {
		v.Questions[i] = questionView{ID: question.ID, Position: question.Position, Text: question.Text, Options: question.Options}
	}
	return v
}

type attemptView struct {
	ID                string                `json:"id"`
	QuizID            string                `json:"quizId"`
	State             domain.AttemptState   `json:"state"`
	Answered          int                   `json:"answered"`
	Correct           int                   `json:"correct"`
	Answers           []domain.AnswerRecord `json:"answers"`
	Score             *float64              `json:"score,omitempty"`
	CaptureStatus     domain.CaptureStatus  `json:"captureStatus"`
	EmotionSummaryRef string                `json:"emotionSummaryRef,omitempty"`
	StartedAt         time.Time             `json:"startedAt"`
	CompletedAt       *time.Time            `json:"completedAt,omitempty"`
}

func newAttemptView(a domain.QuizAttempt) attemptView {
	answers := make([]domain.AnswerRecord, 0, len(a.Answers))
	for _, ans := range a.Answers {
		answers = append(answers, ans)
	}
	sortAnswers(answers)
	return attemptView{
		ID:                a.ID,
		QuizID:            a.QuizID,
		State:             a.State,
		Answered:          len(a.Answers),
		Correct:           a.CorrectCount(),
		Answers:           answers,
		Score:             a.Score,
		CaptureStatus:     a.CaptureStatus,
		EmotionSummaryRef: a.EmotionSummaryRef,
		StartedAt:         a.StartedAt,
		CompletedAt:       a.CompletedAt,
	}
}

func sortAnswers(answers []domain.AnswerRecord) {
	slices.SortFunc(answers, func(a, b domain.AnswerRecord) int {
		if c := a.AnsweredAt.Compare(b.AnsweredAt); c != 0 {
			return c
		}
		return cmp.Compare(a.QuestionID, b.QuestionID)
	})
}
