package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pigi/quizmaster/internal/session"
)

// ErrResultNotFound is returned when no archive exists for a session.
var ErrResultNotFound = errors.New("session result not found")

const (
	insertResultSQL = `INSERT INTO session_results (session_id, quiz_id, host_id, participant_count, created_at, ended_at, document)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id) DO NOTHING`
	getResultSQL = `SELECT document FROM session_results WHERE session_id = $1`
)

// ResultRepository archives finished sessions.
type ResultRepository struct {
	db DBTX
}

// NewResultRepository constructs a new result repository.
func NewResultRepository(db DBTX) *ResultRepository {
	return &ResultRepository{db: db}
}

// Save writes the archive. Saving the same session twice keeps the first row.
func (r *ResultRepository) Save(ctx context.Context, result session.Result) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = r.db.Exec(ctx, insertResultSQL,
		result.SessionID,
		result.QuizID,
		result.HostID,
		len(result.Participants),
		result.CreatedAt,
		result.EndedAt,
		doc,
	)
	if err != nil {
		return fmt.Errorf("insert session result %s: %w", result.SessionID, err)
	}
	return nil
}

// Get loads an archived result.
func (r *ResultRepository) Get(ctx context.Context, sessionID string) (session.Result, error) {
	var doc []byte
	if err := r.db.QueryRow(ctx, getResultSQL, sessionID).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Result{}, ErrResultNotFound
		}
		return session.Result{}, fmt.Errorf("select session result: %w", err)
	}
	var result session.Result
	if err := json.Unmarshal(doc, &result); err != nil {
		return session.Result{}, fmt.Errorf("decode session result %s: %w", sessionID, err)
	}
	return result, nil
}
