package quizrunner

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
)

// Runner ties the question source, the quiz state machine and the session store together.
// Every method is one read-modify-write against the store.
type Runner struct {
	store     Store
	source    QuestionSource
	shuffle   ShuffleFunc
	newHandle func() string
}

// RunnerOption customizes a Runner
type RunnerOption func(*Runner)

// WithShuffle replaces the random shuffle used when a quiz starts
func WithShuffle(shuffle ShuffleFunc) RunnerOption {
	return func(r *Runner) {
		r.shuffle = shuffle
	}
}

// WithHandleGenerator replaces the session handle generator
func WithHandleGenerator(gen func() string) RunnerOption {
	return func(r *Runner) {
		r.newHandle = gen
	}
}

// NewRunner creates a runner over store and source
func NewRunner(store Store, source QuestionSource, opts ...RunnerOption) *Runner {
	r := &Runner{
		store:     store,
		source:    source,
		newHandle: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start loads the questions at sourceRef and creates a new quiz. It returns the handle
// that identifies the quiz in later calls.
func (r *Runner) Start(ctx context.Context, mode Mode, sourceRef string) (string, error) {
	records, err := r.source.Load(ctx, sourceRef)
	if err != nil {
		return "", fmt.Errorf("failed to load questions from %s: %w", sourceRef, err)
	}

	quiz, err := NewQuiz(mode, records, r.shuffle)
	if err != nil {
		return "", err
	}
	quiz.Source = sourceRef

	handle := r.newHandle()
	if err := r.store.Create(ctx, handle, quiz); err != nil {
		return "", err
	}

	log.Printf("Started %s quiz %s with %d questions from %s", mode, handle, quiz.Total(), sourceRef)
	return handle, nil
}

// SubmitAndNavigate records an answer for question index, if one was selected, then moves
// in direction. An empty selection only navigates.
func (r *Runner) SubmitAndNavigate(ctx context.Context, handle string, index int, selected string, dir Direction) error {
	return r.update(ctx, handle, func(quiz *Quiz) error {
		if selected != "" {
			if err := quiz.SubmitAnswer(index, selected); err != nil {
				return err
			}
		}
		return quiz.Navigate(dir)
	})
}

// Jump moves the quiz to target, clamped into range
func (r *Runner) Jump(ctx context.Context, handle string, target int) error {
	return r.update(ctx, handle, func(quiz *Quiz) error {
		return quiz.Jump(target)
	})
}

// CurrentView returns the projection of the current question. ErrSessionExpired tells the
// caller to send the user back to quiz selection.
func (r *Runner) CurrentView(ctx context.Context, handle string) (*View, error) {
	quiz, err := r.load(ctx, handle)
	if err != nil {
		return nil, err
	}
	return quiz.View(), nil
}

// Result returns the score snapshot. Once the quiz is complete the instance is reclaimed,
// so callers keep the snapshot if they need to show it again.
func (r *Runner) Result(ctx context.Context, handle string) (*Result, error) {
	quiz, err := r.load(ctx, handle)
	if err != nil {
		return nil, err
	}

	result := quiz.Result()
	if result.Complete {
		if err := r.store.Remove(ctx, handle); err != nil {
			log.Printf("Failed to remove finished quiz %s: %v", handle, err)
		}
		log.Printf("Quiz %s finished: mode=%s score=%d/%d", handle, result.Mode, result.Score, result.Total)
	}
	return &result, nil
}

// Abandon drops a quiz, for example when the user starts another one
func (r *Runner) Abandon(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	return r.store.Remove(ctx, handle)
}

func (r *Runner) load(ctx context.Context, handle string) (*Quiz, error) {
	if handle == "" {
		return nil, ErrSessionExpired
	}
	quiz, err := r.store.Get(ctx, handle)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			VerboseLog("No quiz behind handle %s", handle)
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	return quiz, nil
}

func (r *Runner) update(ctx context.Context, handle string, apply func(*Quiz) error) error {
	quiz, err := r.load(ctx, handle)
	if err != nil {
		return err
	}
	if err := apply(quiz); err != nil {
		return err
	}
	if err := r.store.Save(ctx, handle, quiz); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionExpired
		}
		return err
	}
	return nil
}
