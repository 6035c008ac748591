package quiz

import (
	"context"
	"sync"
)

// Store loads quiz documents.
type Store interface {
	GetQuiz(ctx context.Context, quizID string) (Quiz, error)
}

// MemoryStore keeps quizzes in process, used for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	quizzes map[string]Quiz
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with quizzes.
func NewMemoryStore(quizzes ...Quiz) *MemoryStore {
	s := &MemoryStore{quizzes: make(map[string]Quiz, len(quizzes))}
	for _, q := range quizzes {
		s.quizzes[q.ID] = q
	}
	return s
}

// Put adds or replaces a quiz.
func (s *MemoryStore) Put(q Quiz) {
	s.mu.Lock()
	s.quizzes[q.ID] = q
	s.mu.Unlock()
}

// GetQuiz returns a copy of the stored quiz.
func (s *MemoryStore) GetQuiz(_ context.Context, quizID string) (Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[quizID]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q.Clone(), nil
}

// Clone deep-copies the quiz so a running session never shares slices with the store.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Answers = append([]Answer(nil), question.Answers...)
		out.Questions[i] = question
	}
	return out
}
