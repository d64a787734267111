package quizrunner

import "errors"

var (
	// ErrNoQuestions is returned when a source yields no usable questions
	ErrNoQuestions = errors.New("no questions available")
	// ErrIndexOutOfRange is returned when an answer targets a question that does not exist
	ErrIndexOutOfRange = errors.New("question index out of range")
	// ErrQuizComplete is returned when a quiz that already finished is asked to change
	ErrQuizComplete = errors.New("quiz already complete")
	// ErrInvalidOption is returned when the selected option is not one of the question's choices
	ErrInvalidOption = errors.New("option is not a choice of this question")

	ErrInvalidMode      = errors.New("invalid quiz mode")
	ErrInvalidDirection = errors.New("invalid navigation direction")

	// ErrSessionExpired means the handle has no quiz behind it; callers go back to quiz selection
	ErrSessionExpired = errors.New("quiz session expired")

	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already exists")

	ErrUnsupportedSource = errors.New("unsupported question source")
)
