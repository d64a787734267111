package quizrunner

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects how answers are judged during a quiz
type Mode string

const (
	ModeExam     Mode = "exam"
	ModePractice Mode = "practice"
)

// ParseMode converts a user supplied mode name into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeExam:
		return ModeExam, nil
	case ModePractice:
		return ModePractice, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// OptionsPerQuestion is the fixed number of choices shown for every question
const OptionsPerQuestion = 4

// QuestionRecord is a normalized row produced by a question source
type QuestionRecord struct {
	Question string   `json:"question"`
	Correct  string   `json:"correct"`
	Wrong    []string `json:"wrong"`
}

// Validate checks that the record resolves to exactly one correct option among four
func (r QuestionRecord) Validate() error {
	if r.Question == "" {
		return fmt.Errorf("question text is empty")
	}
	if r.Correct == "" {
		return fmt.Errorf("correct option is empty")
	}
	if len(r.Wrong) != OptionsPerQuestion-1 {
		return fmt.Errorf("expected %d wrong options, got %d", OptionsPerQuestion-1, len(r.Wrong))
	}
	seen := map[string]bool{r.Correct: true}
	for _, w := range r.Wrong {
		if w == "" {
			return fmt.Errorf("wrong option is empty")
		}
		if seen[w] {
			return fmt.Errorf("option %q is listed twice", w)
		}
		seen[w] = true
	}
	return nil
}

// Question is one entry of a quiz with its options in display order
type Question struct {
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectOption string   `json:"correct_option"`
}

// HasOption reports whether option is one of the question's choices
func (q Question) HasOption(option string) bool {
	for _, o := range q.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Progress is the mutable part of a running quiz
type Progress struct {
	Current  int            `json:"current"`
	Score    int            `json:"score"`
	Answers  map[int]string `json:"answers"`
	Feedback map[int]bool   `json:"feedback"`
	// Scored holds the indices that already added to Score in exam mode
	Scored map[int]bool `json:"scored"`
}

// AnswerStatus tags a question in the progress bar
type AnswerStatus string

const (
	StatusCorrect    AnswerStatus = "correct"
	StatusWrong      AnswerStatus = "wrong"
	StatusAnswered   AnswerStatus = "answered"
	StatusUnanswered AnswerStatus = "unanswered"
)

// Direction is a navigation step requested together with an answer
type Direction string

const (
	DirectionNone Direction = ""
	DirectionNext Direction = "next"
	DirectionBack Direction = "back"
)

// View is the read-only projection handed to renderers
type View struct {
	Mode     Mode           `json:"mode"`
	Index    int            `json:"index"`
	Number   int            `json:"number"`
	Total    int            `json:"total"`
	Complete bool           `json:"complete"`
	Question string         `json:"question,omitempty"`
	Options  []string       `json:"options,omitempty"`
	Selected string         `json:"selected,omitempty"`
	Correct  *bool          `json:"correct,omitempty"` // practice mode only
	Statuses []AnswerStatus `json:"statuses"`
}

// Result is the snapshot of a quiz used by result pages. It is small enough to live in a cookie.
type Result struct {
	Score    int       `json:"score"`
	Total    int       `json:"total"`
	Mode     Mode      `json:"mode"`
	Complete bool      `json:"complete"`
	Source   string    `json:"source"`
	TakenAt  time.Time `json:"taken_at"`
}
