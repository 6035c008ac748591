package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pigi/quizmaster/internal/clock"
	"github.com/pigi/quizmaster/internal/quiz"
)

const testHost = "host-1"

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	envs []Envelope
}

func (r *recorder) Publish(_ context.Context, env Envelope) error {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
	return nil
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.envs))
	for _, env := range r.envs {
		out = append(out, env.Event)
	}
	return out
}

func (r *recorder) types() []EventType {
	var out []EventType
	for _, ev := range r.events() {
		out = append(out, ev.Type())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.envs = nil
	r.mu.Unlock()
}

func testQuiz(questions int) quiz.Quiz {
	q := quiz.Quiz{ID: "quiz-1", Title: "Test quiz"}
	for i := 0; i < questions; i++ {
		q.Questions = append(q.Questions, quiz.Question{
			ID:   "q" + string(rune('1'+i)),
			Text: "Question",
			Answers: []quiz.Answer{
				{ID: "right", Text: "Right", IsCorrect: true},
				{ID: "wrong", Text: "Wrong"},
			},
			Points:           100,
			TimeLimitSeconds: 30,
		})
	}
	return q
}

type harness struct {
	t     *testing.T
	s     *Session
	clock *clock.Fake
	rec   *recorder
}

func newHarness(t *testing.T, questions int) *harness {
	t.Helper()
	fc := clock.NewFake(epoch)
	rec := &recorder{}
	s := New(Options{
		ID:        "session-1",
		HostID:    testHost,
		Quiz:      testQuiz(questions),
		Clock:     fc,
		Publisher: rec,
		Logger:    zerolog.Nop(),
		Config:    DefaultConfig(),
	})
	t.Cleanup(s.Close)
	return &harness{t: t, s: s, clock: fc, rec: rec}
}

func (h *harness) host(cmd Command) (Snapshot, error) {
	return h.s.Apply(context.Background(), cmd, Host(testHost))
}

func (h *harness) mustHost(cmd Command) Snapshot {
	h.t.Helper()
	snap, err := h.host(cmd)
	require.NoError(h.t, err)
	return snap
}

func (h *harness) join(id, name string) {
	h.t.Helper()
	_, err := h.s.Apply(context.Background(), JoinSession{ParticipantID: id, DisplayName: name}, ParticipantActor(id))
	require.NoError(h.t, err)
}

func (h *harness) answer(id string, questionIndex int, answerID string) error {
	var ans *string
	if answerID != "" {
		ans = &answerID
	}
	_, err := h.s.Apply(context.Background(), SubmitAnswer{QuestionIndex: questionIndex, AnswerID: ans}, ParticipantActor(id))
	return err
}

// advance moves the clock and runs one tick, like the manager loop would.
func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.s.Tick()
}

// toActive starts the session and runs the countdown out.
func (h *harness) toActive() {
	h.t.Helper()
	h.mustHost(StartSession{})
	h.advance(DefaultCountdown)
	require.Equal(h.t, StatusQuestionActive, h.s.Status())
}

func (h *harness) toClosed() {
	h.t.Helper()
	h.toActive()
	h.mustHost(CloseQuestion{})
}

func (h *harness) toPaused() {
	h.t.Helper()
	h.toActive()
	h.mustHost(PauseSession{})
}

func (h *harness) toEnded() {
	h.t.Helper()
	h.mustHost(EndSession{})
}
