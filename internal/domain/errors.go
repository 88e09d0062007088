package domain

import "errors"

var (
	// ErrGenerationFailed is returned when neither the detailed nor the simplified
	// generation request produced a usable question.
	ErrGenerationFailed = errors.New("quiz generation failed")
	// ErrDuplicateAttempt is returned when the user already has an attempt for the quiz.
	ErrDuplicateAttempt = errors.New("attempt already exists for this quiz")
	// ErrAttemptNotFound is returned for unknown attempts or attempts owned by another user.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
	// ErrAttemptAlreadyCompleted is returned when answering a completed attempt.
	ErrAttemptAlreadyCompleted = errors.New("quiz attempt has already been completed")
	// ErrQuestionNotFound indicates a submitted question ID is not part of the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrDuplicateAnswer indicates the question was already answered in this attempt.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrDeviceUnavailable indicates the capture device could not be acquired.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrEmptyQuiz guards against attempts on quizzes without questions.
	ErrEmptyQuiz = errors.New("quiz has no questions")
	// ErrDocumentNotFound indicates an unknown source document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidDifficulty indicates a difficulty outside easy/medium/hard.
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	// ErrInvalidInput marks requests missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSummaryExists is returned when an emotion summary was already written for an attempt.
	ErrSummaryExists = errors.New("emotion summary already stored")
)
