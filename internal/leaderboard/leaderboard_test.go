package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pigi/quizmaster/internal/db/repository"
	"github.com/pigi/quizmaster/internal/quiz"
	"github.com/pigi/quizmaster/internal/session"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewService(client, zerolog.Nop(), ServiceOptions{}), mr
}

func sampleEntries() []session.LeaderboardEntry {
	return []session.LeaderboardEntry{
		{ParticipantID: "p2", DisplayName: "Bea", TotalScore: 250, CorrectCount: 2, Rank: 1},
		{ParticipantID: "p1", DisplayName: "Ada", TotalScore: 250, CorrectCount: 2, Rank: 2},
		{ParticipantID: "p3", DisplayName: "Cy", TotalScore: 0, CorrectCount: 0, Rank: 3},
	}
}

func TestServiceSaveAndTop(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	err := svc.Save(ctx, session.Result{SessionID: "s1", Leaderboard: sampleEntries()})
	require.NoError(t, err)

	top, source, err := svc.Top(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, SourceArchive, source)
	assert.Equal(t, sampleEntries(), top, "stored order follows rank, not score")

	top, _, err = svc.Top(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)

	ttl := mr.TTL("lb:session:s1")
	assert.Equal(t, 7*24*time.Hour, ttl)
}

func TestServiceTopMissing(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.Top(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreLiveDoesNotOverwriteArchive(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.StoreLive(ctx, "s1", sampleEntries()[:1]))
	_, source, err := svc.Top(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, source)
	assert.Equal(t, 2*time.Minute, mr.TTL("lb:session:s1"))

	require.NoError(t, svc.Save(ctx, session.Result{SessionID: "s1", Leaderboard: sampleEntries()}))
	require.NoError(t, svc.StoreLive(ctx, "s1", nil))

	top, source, err := svc.Top(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, SourceArchive, source)
	assert.Len(t, top, 3)
}

func TestStoreLiveYieldsToConcurrentArchive(t *testing.T) {
	svc, mr := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.StoreLive(ctx, "s1", sampleEntries()[:1]))

	archived := 0
	svc.beforeLiveWrite = func() {
		archived++
		require.NoError(t, svc.Save(ctx, session.Result{SessionID: "s1", Leaderboard: sampleEntries()}))
	}
	require.NoError(t, svc.StoreLive(ctx, "s1", sampleEntries()[:1]))
	assert.Equal(t, 1, archived, "the retry sees the archive and stops")

	top, source, err := svc.Top(ctx, "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, SourceArchive, source)
	assert.Len(t, top, 3)
	assert.Equal(t, 7*24*time.Hour, mr.TTL("lb:session:s1:source"))
}

func TestServiceSaveReplacesStaleMembers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.StoreLive(ctx, "s1", sampleEntries()))
	require.NoError(t, svc.StoreLive(ctx, "s1", sampleEntries()[:1]))

	top, _, err := svc.Top(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "p2", top[0].ParticipantID)
}

type stubSink struct {
	err   error
	saved []string
}

func (s *stubSink) Save(_ context.Context, r session.Result) error {
	s.saved = append(s.saved, r.SessionID)
	return s.err
}

func TestMultiSinkAttemptsEveryStore(t *testing.T) {
	boom := errors.New("boom")
	first := &stubSink{err: boom}
	second := &stubSink{}

	err := MultiSink{first, nil, second}.Save(context.Background(), session.Result{SessionID: "s1"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"s1"}, first.saved)
	assert.Equal(t, []string{"s1"}, second.saved)
}

type liveMap map[string]*session.Session

func (m liveMap) Get(id string) (*session.Session, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, session.ErrSessionNotFound
}

func (m liveMap) Sessions() []*session.Session {
	out := make([]*session.Session, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

type stubResults struct {
	results map[string]session.Result
	err     error
}

func (s stubResults) Get(_ context.Context, id string) (session.Result, error) {
	if s.err != nil {
		return session.Result{}, s.err
	}
	r, ok := s.results[id]
	if !ok {
		return session.Result{}, repository.ErrResultNotFound
	}
	return r, nil
}

func liveSession(t *testing.T, id string) *session.Session {
	t.Helper()
	s := session.New(session.Options{
		ID:     id,
		HostID: "host",
		Quiz: quiz.Quiz{ID: "q", Title: "Q", Questions: []quiz.Question{{
			ID: "q1", Text: "?", Points: 100, TimeLimitSeconds: 10,
			Answers: []quiz.Answer{{ID: "a", Text: "A", IsCorrect: true}, {ID: "b", Text: "B"}},
		}}},
		Logger: zerolog.Nop(),
	})
	t.Cleanup(s.Close)
	_, err := s.Apply(context.Background(), session.JoinSession{ParticipantID: "p1", DisplayName: "Ada"}, session.ParticipantActor("p1"))
	require.NoError(t, err)
	return s
}

func getLeaderboard(t *testing.T, h *HTTPHandler, id string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/leaderboard", h.HandleGet)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/"+id+"/leaderboard?limit=5", nil))

	var resp Response
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHandleGetLookupOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.StoreLive(ctx, "remote", sampleEntries()))

	results := stubResults{results: map[string]session.Result{
		"archived": {SessionID: "archived", Leaderboard: sampleEntries()[:2]},
	}}
	h := NewHTTPHandler(liveMap{"local": liveSession(t, "local")}, svc, results, zerolog.Nop())

	rec, resp := getLeaderboard(t, h, "local")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SourceMemory, resp.Source)
	require.Len(t, resp.Top, 1)
	assert.Equal(t, "Ada", resp.Top[0].DisplayName)

	rec, resp = getLeaderboard(t, h, "remote")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SourceLive, resp.Source)
	assert.Len(t, resp.Top, 3)

	rec, resp = getLeaderboard(t, h, "archived")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SourceArchive, resp.Source)
	assert.Len(t, resp.Top, 2)

	rec, _ = getLeaderboard(t, h, "missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetArchiveFailure(t *testing.T) {
	h := NewHTTPHandler(liveMap{}, nil, stubResults{err: errors.New("db down")}, zerolog.Nop())

	rec, _ := getLeaderboard(t, h, "s1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "leaderboard_fetch_failed")
}

func TestSnapshotWorkerStoresRunningSessions(t *testing.T) {
	svc, _ := newTestService(t)
	live := liveMap{"s1": liveSession(t, "s1")}
	w := NewSnapshotWorker(svc, live, 10*time.Millisecond, zerolog.Nop())

	w.tick(context.Background())

	top, source, err := svc.Top(context.Background(), "s1", 10)
	require.NoError(t, err)
	assert.Equal(t, SourceLive, source)
	require.Len(t, top, 1)
	assert.Equal(t, "p1", top[0].ParticipantID)
}
