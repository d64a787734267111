package quizrunner

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store maps session handles to quiz instances.
//
// There is no per-handle locking: two operations racing on the same handle may lose an
// update. Distinct handles never affect each other.
type Store interface {
	Create(ctx context.Context, handle string, quiz *Quiz) error
	Get(ctx context.Context, handle string) (*Quiz, error)
	Save(ctx context.Context, handle string, quiz *Quiz) error
	// Remove is idempotent
	Remove(ctx context.Context, handle string) error
}

// DefaultSessionTTL bounds how long an idle quiz is kept
const DefaultSessionTTL = 2 * time.Hour

type memEntry struct {
	quiz      *Quiz
	expiresAt time.Time
}

// MemoryStore keeps quizzes in process memory. Everything is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store; ttl <= 0 disables expiry
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create adds a new quiz under handle
func (ms *MemoryStore) Create(_ context.Context, handle string, quiz *Quiz) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if e, ok := ms.entries[handle]; ok && !ms.expired(e) {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, handle)
	}
	ms.entries[handle] = &memEntry{quiz: quiz.clone(), expiresAt: ms.deadline()}
	return nil
}

// Get returns a copy of the quiz stored under handle
func (ms *MemoryStore) Get(_ context.Context, handle string) (*Quiz, error) {
	ms.mu.RLock()
	e, ok := ms.entries[handle]
	ms.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}
	if ms.expired(e) {
		ms.mu.Lock()
		// Only drop the entry we saw; a concurrent Create may have replaced it
		if ms.entries[handle] == e {
			delete(ms.entries, handle)
		}
		ms.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}
	return e.quiz.clone(), nil
}

// Save replaces the stored quiz and extends its lifetime
func (ms *MemoryStore) Save(_ context.Context, handle string, quiz *Quiz) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, ok := ms.entries[handle]
	if !ok || ms.expired(e) {
		delete(ms.entries, handle)
		return fmt.Errorf("%w: %s", ErrSessionNotFound, handle)
	}
	ms.entries[handle] = &memEntry{quiz: quiz.clone(), expiresAt: ms.deadline()}
	return nil
}

// Remove deletes the quiz stored under handle
func (ms *MemoryStore) Remove(_ context.Context, handle string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.entries, handle)
	return nil
}

// Size returns the number of stored quizzes, including ones that expired but were not read since
func (ms *MemoryStore) Size() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.entries)
}

func (ms *MemoryStore) deadline() time.Time {
	if ms.ttl <= 0 {
		return time.Time{}
	}
	return ms.now().Add(ms.ttl)
}

func (ms *MemoryStore) expired(e *memEntry) bool {
	return !e.expiresAt.IsZero() && !ms.now().Before(e.expiresAt)
}

// encodeQuiz and decodeQuiz are shared by the stores that keep quizzes outside the process
func encodeQuiz(quiz *Quiz) (string, error) {
	data, err := json.Marshal(quiz)
	if err != nil {
		return "", fmt.Errorf("failed to marshal quiz: %w", err)
	}
	return string(data), nil
}

func decodeQuiz(data string) (*Quiz, error) {
	var quiz Quiz
	if err := json.Unmarshal([]byte(data), &quiz); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quiz: %w", err)
	}
	if quiz.Progress.Answers == nil {
		quiz.Progress.Answers = make(map[int]string)
	}
	if quiz.Progress.Feedback == nil {
		quiz.Progress.Feedback = make(map[int]bool)
	}
	if quiz.Progress.Scored == nil {
		quiz.Progress.Scored = make(map[int]bool)
	}
	return &quiz, nil
}
