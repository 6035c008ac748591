package quiz

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when a quiz document does not exist.
	ErrNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz marks a document that breaks the editor's invariants.
	ErrInvalidQuiz = errors.New("invalid quiz")
)

// Default values applied when the editor left a field empty.
const (
	DefaultPoints           = 100
	DefaultTimeLimitSeconds = 30
)

// Quiz is an authored quiz document. The engine treats it as read-only.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Question is one timed multiple-choice question.
type Question struct {
	ID               string   `json:"id" yaml:"id"`
	Text             string   `json:"text" yaml:"text"`
	Answers          []Answer `json:"answers" yaml:"answers"`
	Points           int      `json:"points" yaml:"points"`
	TimeLimitSeconds int      `json:"time_limit_seconds" yaml:"time_limit_seconds"`
}

// Answer is a selectable option of a question.
type Answer struct {
	ID        string `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	IsCorrect bool   `json:"is_correct" yaml:"is_correct"`
}

// Duration is the answer window of the question.
func (q Question) Duration() time.Duration {
	secs := q.TimeLimitSeconds
	if secs <= 0 {
		secs = DefaultTimeLimitSeconds
	}
	return time.Duration(secs) * time.Second
}

// BasePoints is the number of points a correct answer is worth before bonus.
func (q Question) BasePoints() int {
	if q.Points <= 0 {
		return DefaultPoints
	}
	return q.Points
}

// FindAnswer looks up an answer by id.
func (q Question) FindAnswer(id string) (Answer, bool) {
	for _, a := range q.Answers {
		if a.ID == id {
			return a, true
		}
	}
	return Answer{}, false
}

// Validate checks that every question has at least two answers and exactly one correct.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	for i, question := range q.Questions {
		if len(question.Answers) < 2 {
			return fmt.Errorf("%w: question %d has %d answers", ErrInvalidQuiz, i, len(question.Answers))
		}
		correct := 0
		seen := make(map[string]struct{}, len(question.Answers))
		for _, a := range question.Answers {
			if _, dup := seen[a.ID]; dup || a.ID == "" {
				return fmt.Errorf("%w: question %d has duplicate or empty answer id %q", ErrInvalidQuiz, i, a.ID)
			}
			seen[a.ID] = struct{}{}
			if a.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %d has %d correct answers", ErrInvalidQuiz, i, correct)
		}
	}
	return nil
}
