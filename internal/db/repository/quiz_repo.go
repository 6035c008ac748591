package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pigi/quizmaster/internal/quiz"
)

const (
	getQuizSQL    = `SELECT document FROM quizzes WHERE id = $1`
	upsertQuizSQL = `INSERT INTO quizzes (id, title, document)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, document = EXCLUDED.document, updated_at = now()`
)

// QuizRepository stores quiz documents as JSONB.
type QuizRepository struct {
	db DBTX
}

var _ quiz.Store = (*QuizRepository)(nil)

// NewQuizRepository constructs a new quiz repository.
func NewQuizRepository(db DBTX) *QuizRepository {
	return &QuizRepository{db: db}
}

// GetQuiz loads and validates one quiz document.
func (r *QuizRepository) GetQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	var doc []byte
	if err := r.db.QueryRow(ctx, getQuizSQL, quizID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quiz.Quiz{}, quiz.ErrNotFound
		}
		return quiz.Quiz{}, fmt.Errorf("select quiz: %w", err)
	}

	var q quiz.Quiz
	if err := json.Unmarshal(doc, &q); err != nil {
		return quiz.Quiz{}, fmt.Errorf("decode quiz %s: %w", quizID, err)
	}
	q.ID = quizID
	if err := q.Validate(); err != nil {
		return quiz.Quiz{}, err
	}
	return q, nil
}

// Upsert inserts or replaces a quiz document.
func (r *QuizRepository) Upsert(ctx context.Context, q quiz.Quiz) error {
	if err := q.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}
	if _, err := r.db.Exec(ctx, upsertQuizSQL, q.ID, q.Title, doc); err != nil {
		return fmt.Errorf("upsert quiz %s: %w", q.ID, err)
	}
	return nil
}
