package quizrunner

import (
	"fmt"
	"math/rand"
	"time"
)

// ShuffleFunc permutes n elements through swap, with the same contract as rand.Shuffle
type ShuffleFunc func(n int, swap func(i, j int))

// Quiz is one quiz instance: the fixed question set plus the progress made on it.
// Progress is only changed through the methods below.
type Quiz struct {
	Mode      Mode       `json:"mode"`
	Source    string     `json:"source"`
	Questions []Question `json:"questions"`
	Progress  Progress   `json:"progress"`
	StartedAt time.Time  `json:"started_at"`
}

// NewQuiz builds a quiz from source records. Option order of every question and the
// question order are shuffled here and never again.
func NewQuiz(mode Mode, records []QuestionRecord, shuffle ShuffleFunc) (*Quiz, error) {
	if mode != ModeExam && mode != ModePractice {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if len(records) == 0 {
		return nil, ErrNoQuestions
	}
	if shuffle == nil {
		shuffle = rand.Shuffle
	}

	questions := make([]Question, 0, len(records))
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		options := make([]string, 0, OptionsPerQuestion)
		options = append(options, rec.Correct)
		options = append(options, rec.Wrong...)
		shuffle(len(options), func(a, b int) {
			options[a], options[b] = options[b], options[a]
		})
		questions = append(questions, Question{
			Text:          rec.Question,
			Options:       options,
			CorrectOption: rec.Correct,
		})
	}
	shuffle(len(questions), func(a, b int) {
		questions[a], questions[b] = questions[b], questions[a]
	})

	return &Quiz{
		Mode:      mode,
		Questions: questions,
		Progress: Progress{
			Answers:  make(map[int]string),
			Feedback: make(map[int]bool),
			Scored:   make(map[int]bool),
		},
		StartedAt: time.Now(),
	}, nil
}

// Total returns the number of questions
func (q *Quiz) Total() int {
	return len(q.Questions)
}

// Complete reports whether navigation has moved past the last question
func (q *Quiz) Complete() bool {
	return q.Progress.Current >= len(q.Questions)
}

// SubmitAnswer records the selected option for a question, replacing any earlier answer.
//
// In exam mode a question adds to the score the first time it is answered correctly and
// never again; changing the answer later neither adds nor subtracts. Practice mode
// records per-question feedback instead and leaves the score alone.
func (q *Quiz) SubmitAnswer(index int, selected string) error {
	if q.Complete() {
		return ErrQuizComplete
	}
	if index < 0 || index >= len(q.Questions) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(q.Questions))
	}
	question := q.Questions[index]
	if !question.HasOption(selected) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, selected)
	}

	q.Progress.Answers[index] = selected
	correct := selected == question.CorrectOption

	switch q.Mode {
	case ModePractice:
		q.Progress.Feedback[index] = correct
	case ModeExam:
		if correct && !q.Progress.Scored[index] {
			q.Progress.Scored[index] = true
			q.Progress.Score++
		}
	}

	VerboseLog("Answer %q for question %d (correct=%v, score=%d)", selected, index, correct, q.Progress.Score)
	return nil
}

// Navigate moves to the next or previous question. Moving past the last question
// completes the quiz; once complete, navigation does nothing.
func (q *Quiz) Navigate(dir Direction) error {
	switch dir {
	case DirectionNone:
		return nil
	case DirectionNext:
		if q.Complete() {
			return nil
		}
		q.Progress.Current++
		if q.Complete() {
			VerboseLog("Quiz complete after %d questions", len(q.Questions))
		}
	case DirectionBack:
		if q.Complete() {
			return nil
		}
		if q.Progress.Current > 0 {
			q.Progress.Current--
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	return nil
}

// Jump moves directly to target, clamped into the valid question range. It never completes
// the quiz and never touches answers or score.
func (q *Quiz) Jump(target int) error {
	if q.Complete() {
		return ErrQuizComplete
	}
	q.Progress.Current = clamp(target, 0, len(q.Questions)-1)
	return nil
}

// ProgressView returns one status tag per question
func (q *Quiz) ProgressView() []AnswerStatus {
	statuses := make([]AnswerStatus, len(q.Questions))
	for i := range q.Questions {
		feedback, judged := q.Progress.Feedback[i]
		_, answered := q.Progress.Answers[i]
		switch {
		case judged && q.Mode == ModePractice && feedback:
			statuses[i] = StatusCorrect
		case judged && q.Mode == ModePractice:
			statuses[i] = StatusWrong
		case answered:
			statuses[i] = StatusAnswered
		default:
			statuses[i] = StatusUnanswered
		}
	}
	return statuses
}

// View projects the current state for a renderer
func (q *Quiz) View() *View {
	view := &View{
		Mode:     q.Mode,
		Index:    q.Progress.Current,
		Number:   q.Progress.Current + 1,
		Total:    len(q.Questions),
		Complete: q.Complete(),
		Statuses: q.ProgressView(),
	}
	if view.Complete {
		return view
	}

	question := q.Questions[q.Progress.Current]
	view.Question = question.Text
	view.Options = append([]string(nil), question.Options...)
	view.Selected = q.Progress.Answers[q.Progress.Current]
	if q.Mode == ModePractice {
		if correct, ok := q.Progress.Feedback[q.Progress.Current]; ok {
			view.Correct = &correct
		}
	}
	return view
}

// Result returns the snapshot of the quiz. Score stays zero until the quiz is complete.
func (q *Quiz) Result() Result {
	result := Result{
		Total:    len(q.Questions),
		Mode:     q.Mode,
		Complete: q.Complete(),
		Source:   q.Source,
		TakenAt:  q.StartedAt,
	}
	if result.Complete {
		result.Score = q.Progress.Score
	}
	return result
}

// clone returns a deep copy so stores can hand out instances without sharing maps
func (q *Quiz) clone() *Quiz {
	c := *q
	c.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		c.Questions[i] = question
	}
	c.Progress.Answers = make(map[int]string, len(q.Progress.Answers))
	for k, v := range q.Progress.Answers {
		c.Progress.Answers[k] = v
	}
	c.Progress.Feedback = make(map[int]bool, len(q.Progress.Feedback))
	for k, v := range q.Progress.Feedback {
		c.Progress.Feedback[k] = v
	}
	c.Progress.Scored = make(map[int]bool, len(q.Progress.Scored))
	for k, v := range q.Progress.Scored {
		c.Progress.Scored[k] = v
	}
	return &c
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
