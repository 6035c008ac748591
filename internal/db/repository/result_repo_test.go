package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pigi/quizmaster/internal/session"
)

func sampleResult() session.Result {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return session.Result{
		SessionID: "s1",
		QuizID:    "capitals",
		HostID:    "admin",
		CreatedAt: created,
		EndedAt:   created.Add(10 * time.Minute),
		Participants: []session.Participant{
			{ID: "p1", DisplayName: "Alice"},
		},
		Leaderboard: []session.LeaderboardEntry{
			{ParticipantID: "p1", DisplayName: "Alice", TotalScore: 150, CorrectCount: 1, Rank: 1},
		},
	}
}

func TestResultRepository_Save(t *testing.T) {
	db := new(mockDB)
	repo := NewResultRepository(db)
	res := sampleResult()

	db.On("Exec", mock.Anything, insertResultSQL, "s1", "capitals", "admin", 1, res.CreatedAt, res.EndedAt, mock.AnythingOfType("[]uint8")).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Save(context.Background(), res))
	db.AssertExpectations(t)
}

func TestResultRepository_Get(t *testing.T) {
	db := new(mockDB)
	repo := NewResultRepository(db)
	doc, err := json.Marshal(sampleResult())
	require.NoError(t, err)
	db.On("QueryRow", mock.Anything, getResultSQL, "s1").Return(rowOf{data: doc})
	db.On("QueryRow", mock.Anything, getResultSQL, "s2").Return(rowOf{err: pgx.ErrNoRows})

	got, err := repo.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 150, got.Leaderboard[0].TotalScore)

	_, err = repo.Get(context.Background(), "s2")
	assert.ErrorIs(t, err, ErrResultNotFound)
}
