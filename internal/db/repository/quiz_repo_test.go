package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pigi/quizmaster/internal/quiz"
)

const quizDoc = `{"title":"Capitals","questions":[{"id":"q1","text":"France?","points":100,"time_limit_seconds":20,
"answers":[{"id":"a","text":"Paris","is_correct":true},{"id":"b","text":"Lyon"}]}]}`

func TestQuizRepository_GetQuiz(t *testing.T) {
	db := new(mockDB)
	repo := NewQuizRepository(db)
	db.On("QueryRow", mock.Anything, getQuizSQL, "capitals").Return(rowOf{data: []byte(quizDoc)})

	q, err := repo.GetQuiz(context.Background(), "capitals")
	require.NoError(t, err)
	assert.Equal(t, "capitals", q.ID)
	assert.Equal(t, "Capitals", q.Title)
	require.Len(t, q.Questions, 1)
	assert.True(t, q.Questions[0].Answers[0].IsCorrect)
	db.AssertExpectations(t)
}

func TestQuizRepository_GetQuizNotFound(t *testing.T) {
	db := new(mockDB)
	repo := NewQuizRepository(db)
	db.On("QueryRow", mock.Anything, getQuizSQL, "missing").Return(rowOf{err: pgx.ErrNoRows})

	_, err := repo.GetQuiz(context.Background(), "missing")
	assert.ErrorIs(t, err, quiz.ErrNotFound)
}

func TestQuizRepository_GetQuizRejectsInvalidDocument(t *testing.T) {
	db := new(mockDB)
	repo := NewQuizRepository(db)
	bad := `{"title":"x","questions":[{"id":"q1","answers":[{"id":"a","text":"only"}]}]}`
	db.On("QueryRow", mock.Anything, getQuizSQL, "bad").Return(rowOf{data: []byte(bad)})

	_, err := repo.GetQuiz(context.Background(), "bad")
	assert.ErrorIs(t, err, quiz.ErrInvalidQuiz)
}

func TestQuizRepository_Upsert(t *testing.T) {
	db := new(mockDB)
	repo := NewQuizRepository(db)
	q := quiz.Quiz{ID: "capitals", Title: "Capitals", Questions: []quiz.Question{{
		ID:      "q1",
		Answers: []quiz.Answer{{ID: "a", IsCorrect: true}, {ID: "b"}},
	}}}
	db.On("Exec", mock.Anything, upsertQuizSQL, "capitals", "Capitals", mock.AnythingOfType("[]uint8")).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Upsert(context.Background(), q))
	db.AssertExpectations(t)

	failing := new(mockDB)
	failing.On("Exec", mock.Anything, upsertQuizSQL, mock.Anything, mock.Anything, mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("db down"))
	assert.Error(t, NewQuizRepository(failing).Upsert(context.Background(), q))
}
