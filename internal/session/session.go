package session

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/clock"
	"github.com/pigi/quizmaster/internal/quiz"
	"github.com/pigi/quizmaster/internal/session/scoring"
)

const (
	DefaultCountdown     = 5 * time.Second
	MaxDisplayNameLength = 32
)

const (
	reasonStarted        = "started"
	reasonCountdownOver  = "countdown_elapsed"
	reasonTimerExpired   = "timer_expired"
	reasonClosedByHost   = "closed_by_host"
	reasonNextQuestion   = "next_question"
	reasonPaused         = "paused"
	reasonResumed        = "resumed"
	reasonTimerRestarted = "timer_restarted"
	reasonEndedByHost    = "ended_by_host"
	reasonQuizCompleted  = "quiz_completed"
)

// Config tunes the engine.
type Config struct {
	Countdown      time.Duration
	TimeBonusRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Countdown: DefaultCountdown, TimeBonusRatio: scoring.DefaultTimeBonusRatio}
}

// Options are the collaborators of a Session.
type Options struct {
	ID        string
	HostID    string
	Quiz      quiz.Quiz
	Clock     clock.Clock
	Publisher Publisher
	Logger    zerolog.Logger
	Config    Config
}

type tickMark struct {
	questionIndex int
	phase         TimerPhase
	seconds       int
}

// Session owns one live run of a quiz. Every mutation happens under mu;
// events are queued in order and delivered after mu is released.
type Session struct {
	mu sync.Mutex

	id        string
	hostID    string
	quiz      quiz.Quiz
	createdAt time.Time
	endedAt   time.Time
	cfg       Config
	clock     clock.Clock
	scorer    *scoring.Engine
	logger    zerolog.Logger

	status     Status
	pausedFrom Status
	index      int
	timer      *TimerState
	version    uint64
	lastTick   tickMark

	participants map[string]*Participant
	joinOrder    []string
	names        map[string]string
	ledger       *Ledger
	leaderboard  []LeaderboardEntry

	out   *outbox
	ended chan struct{}
}

// New creates a waiting session and starts its event dispatcher.
// Close must be called to release the dispatcher.
func New(opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Publisher == nil {
		opts.Publisher = PublisherFunc(func(context.Context, Envelope) error { return nil })
	}
	if opts.Config.Countdown < 0 {
		opts.Config.Countdown = 0
	}
	logger := opts.Logger.With().Str("component", "session").Str("session_id", opts.ID).Logger()

	s := &Session{
		id:           opts.ID,
		hostID:       opts.HostID,
		quiz:         opts.Quiz.Clone(),
		createdAt:    opts.Clock.Now(),
		cfg:          opts.Config,
		clock:        opts.Clock,
		scorer:       scoring.NewEngine(scoring.Config{TimeBonusRatio: opts.Config.TimeBonusRatio}),
		logger:       logger,
		status:       StatusWaiting,
		index:        -1,
		participants: make(map[string]*Participant),
		names:        make(map[string]string),
		ledger:       newLedger(),
		leaderboard:  []LeaderboardEntry{},
		out:          newOutbox(opts.ID, opts.Publisher, logger),
		ended:        make(chan struct{}),
	}
	s.resetTick()
	go s.out.run(context.Background())
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// HostID returns the identity that controls the session.
func (s *Session) HostID() string { return s.hostID }

// Done is closed when the session reaches Ended.
func (s *Session) Done() <-chan struct{} { return s.ended }

// Flush blocks until every event emitted so far was handed to the publisher.
func (s *Session) Flush() { s.out.flush() }

// Close drains pending events and stops the dispatcher.
func (s *Session) Close() { s.out.close() }

// IsHost reports whether actor holds host authority. Authority is bound to
// the identity fixed at creation, so a reconnecting host keeps it and any
// other identity is refused.
func (s *Session) IsHost(actor Actor) bool {
	return actor.Role == RoleHost && actor.ID != "" && actor.ID == s.hostID
}

// Apply validates and executes one command atomically. A timer transition
// that fell due before now is applied first; beyond that, on error the
// session is left untouched.
func (s *Session) Apply(ctx context.Context, cmd Command, actor Actor) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if s.status == StatusEnded {
		return Snapshot{}, ErrSessionEnded
	}
	if s.timer != nil && s.timer.Overdue(now) {
		s.fireTimer(now)
	}
	if hostOnly(cmd) && !s.IsHost(actor) {
		return Snapshot{}, ErrNotHost
	}

	var err error
	switch c := cmd.(type) {
	case StartSession:
		err = s.start(now)
	case PauseSession:
		err = s.pause(now)
	case ResumeSession:
		err = s.resume(now)
	case ShowQuestion:
		err = s.showNext(now)
	case CloseQuestion:
		err = s.closeByHost(now)
	case RestartTimer:
		s.restartTimer(now)
	case EndSession:
		s.end(now, reasonEndedByHost)
	case SubmitAnswer:
		err = s.submit(now, c, actor)
	case JoinSession:
		err = s.join(now, c, actor)
	case Disconnect:
		err = s.disconnect(now, c, actor)
	default:
		err = errorf(ErrIllegalTransition, "unsupported command %T", cmd)
	}
	if err != nil {
		s.logger.Debug().Err(err).Str("command", string(cmd.Kind())).Str("actor", actor.ID).Str("status", string(s.status)).Msg("command rejected")
		return Snapshot{}, err
	}
	return s.snapshotLocked(now), nil
}

// Tick advances the timer. It emits at most one tick when the displayed
// second changes, or performs the expiry transition when time is up.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusEnded || s.timer == nil || !s.timer.Ticking() {
		return
	}
	now := s.clock.Now()
	if s.timer.Due(now) {
		s.fireTimer(now)
		return
	}

	remaining := s.timer.Remaining(now)
	mark := tickMark{questionIndex: s.timer.QuestionIndex, phase: s.timer.Phase, seconds: displaySeconds(remaining)}
	if mark == s.lastTick {
		return
	}
	s.lastTick = mark
	s.out.push(now, TimerTick{
		QuestionIndex:     mark.questionIndex,
		Phase:             mark.phase,
		RemainingSeconds:  mark.seconds,
		RemainingMs:       remaining.Milliseconds(),
		IsFinalTenSeconds: remaining <= FinalSeconds,
	})
}

// fireTimer performs the transition of a timer that ran out.
func (s *Session) fireTimer(now time.Time) {
	switch s.timer.Phase {
	case PhaseCountdown:
		s.activateQuestion(now)
	case PhaseRunning:
		s.expireQuestion(now)
	}
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(s.clock.Now())
}

// Leaderboard returns the current ranking.
func (s *Session) Leaderboard() []LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntries(s.leaderboard)
}

// Status returns the current lifecycle phase.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Result assembles the archive of the session. EndedAt is zero while live.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.quiz.Questions))
	for i, q := range s.quiz.Questions {
		ids[i] = q.ID
	}
	records := s.ledger.Records()
	return Result{
		SessionID:    s.id,
		QuizID:       s.quiz.ID,
		QuizTitle:    s.quiz.Title,
		HostID:       s.hostID,
		CreatedAt:    s.createdAt,
		EndedAt:      s.endedAt,
		Participants: s.participantsLocked(),
		Answers:      records,
		Leaderboard:  cloneEntries(s.leaderboard),
		Questions:    questionStats(ids, records),
	}
}

func (s *Session) start(now time.Time) error {
	if s.status != StatusWaiting {
		return errorf(ErrIllegalTransition, "cannot start from %s", s.status)
	}
	if len(s.quiz.Questions) == 0 {
		return ErrNoQuestions
	}
	s.index = 0
	s.setTimer(newTimer(0, PhaseCountdown, now, s.cfg.Countdown))
	s.transition(now, StatusCountdown, reasonStarted)
	return nil
}

func (s *Session) pause(now time.Time) error {
	switch s.status {
	case StatusPaused:
		return nil
	case StatusCountdown, StatusQuestionActive, StatusQuestionClosed:
	default:
		return errorf(ErrIllegalTransition, "cannot pause from %s", s.status)
	}
	s.pausedFrom = s.status
	if s.timer != nil {
		if t, ok := s.timer.Pause(now); ok {
			s.timer = &t
		}
	}
	s.transition(now, StatusPaused, reasonPaused)
	return nil
}

func (s *Session) resume(now time.Time) error {
	switch s.status {
	case StatusCountdown, StatusQuestionActive, StatusQuestionClosed:
		return nil
	case StatusPaused:
	default:
		return errorf(ErrIllegalTransition, "cannot resume from %s", s.status)
	}
	if s.timer != nil {
		if t, ok := s.timer.Resume(now); ok {
			s.timer = &t
		}
	}
	to := s.pausedFrom
	s.pausedFrom = ""
	s.transition(now, to, reasonResumed)
	return nil
}

func (s *Session) showNext(now time.Time) error {
	if s.status != StatusQuestionClosed {
		return errorf(ErrIllegalTransition, "cannot show next question from %s", s.status)
	}
	if s.index+1 >= len(s.quiz.Questions) {
		s.end(now, reasonQuizCompleted)
		return nil
	}
	s.index++
	s.setTimer(newTimer(s.index, PhaseCountdown, now, s.cfg.Countdown))
	s.transition(now, StatusCountdown, reasonNextQuestion)
	return nil
}

func (s *Session) closeByHost(now time.Time) error {
	if s.status != StatusQuestionActive {
		return errorf(ErrIllegalTransition, "cannot close question from %s", s.status)
	}
	s.closeQuestion(now, reasonClosedByHost)
	return nil
}

// restartTimer is a no-op when no timer is counting or paused.
func (s *Session) restartTimer(now time.Time) {
	if s.timer == nil {
		return
	}
	switch s.status {
	case StatusCountdown, StatusQuestionActive, StatusPaused:
	default:
		return
	}
	t, ok := s.timer.Restart(now)
	if !ok {
		return
	}
	s.setTimer(t)
	s.transition(now, s.status, reasonTimerRestarted)
}

func (s *Session) end(now time.Time, reason string) {
	if s.questionOpen() {
		s.synthesizeTimeouts(now)
	}
	if s.timer != nil {
		t := s.timer.Expire()
		s.timer = &t
	}
	s.pausedFrom = ""
	s.endedAt = now
	s.transition(now, StatusEnded, reason)
	close(s.ended)
}

func (s *Session) activateQuestion(now time.Time) {
	q := s.quiz.Questions[s.index]
	s.setTimer(newTimer(s.index, PhaseRunning, now, q.Duration()))
	s.transition(now, StatusQuestionActive, reasonCountdownOver)
}

func (s *Session) expireQuestion(now time.Time) {
	s.out.push(now, TimerExpired{QuestionIndex: s.index})
	s.closeQuestion(now, reasonTimerExpired)
}

func (s *Session) closeQuestion(now time.Time, reason string) {
	t := s.timer.Expire()
	s.timer = &t
	s.synthesizeTimeouts(now)
	s.transition(now, StatusQuestionClosed, reason)
	s.out.push(now, s.leaderboardEvent())
}

// questionOpen reports whether answers for the current index are still possible.
func (s *Session) questionOpen() bool {
	return s.status == StatusQuestionActive ||
		(s.status == StatusPaused && s.pausedFrom == StatusQuestionActive)
}

// synthesizeTimeouts gives every joined participant without a record for the
// current question a zero-point timeout record.
func (s *Session) synthesizeTimeouts(now time.Time) {
	offset := int64(0)
	if s.timer != nil {
		offset = s.timer.Duration.Milliseconds()
	}
	added := 0
	for _, pid := range s.joinOrder {
		if s.ledger.Has(pid, s.index) {
			continue
		}
		rec := AnswerRecord{
			SessionID:           s.id,
			ParticipantID:       pid,
			QuestionIndex:       s.index,
			SubmittedAtOffsetMs: offset,
		}
		if err := s.ledger.Append(rec); err == nil {
			added++
		}
	}
	if added > 0 {
		s.recomputeLeaderboard()
		s.logger.Debug().Int("question_index", s.index).Int("timeouts", added).Msg("synthesized timeout records")
	}
}

func (s *Session) submit(now time.Time, c SubmitAnswer, actor Actor) error {
	p, ok := s.participants[actor.ID]
	if actor.Role != RoleParticipant || !ok {
		return ErrParticipantNotFound
	}
	if s.status != StatusQuestionActive || c.QuestionIndex != s.index {
		return s.rejectAnswer(now, p.ID, c.QuestionIndex, errorf(ErrQuestionNotActive, "question %d is not accepting answers", c.QuestionIndex))
	}
	if s.ledger.Has(p.ID, c.QuestionIndex) {
		// the first answer stands; the retry is absorbed without feedback
		return ErrDuplicateAnswer
	}

	question := s.quiz.Questions[s.index]
	correct := false
	if c.AnswerID != nil {
		answer, found := question.FindAnswer(*c.AnswerID)
		if !found {
			return s.rejectAnswer(now, p.ID, c.QuestionIndex, errorf(ErrInvalidAnswer, "unknown answer %q", *c.AnswerID))
		}
		correct = answer.IsCorrect
	}

	remaining := s.timer.Remaining(now)
	rec := AnswerRecord{
		SessionID:           s.id,
		ParticipantID:       p.ID,
		QuestionIndex:       s.index,
		SelectedAnswerID:    cloneString(c.AnswerID),
		SubmittedAtOffsetMs: s.timer.Elapsed(now).Milliseconds(),
		IsCorrect:           correct,
		PointsAwarded:       s.scorer.Score(correct, question.BasePoints(), remaining, s.timer.Duration),
	}
	if err := s.ledger.Append(rec); err != nil {
		return err
	}
	if !c.ClientSentAt.IsZero() {
		s.logger.Debug().Str("participant_id", p.ID).Dur("client_skew", now.Sub(c.ClientSentAt)).Msg("answer received")
	}

	s.version++
	s.recomputeLeaderboard()
	s.out.push(now, AnswerAccepted{Record: rec}, s.leaderboardEvent())
	return nil
}

func (s *Session) rejectAnswer(now time.Time, participantID string, questionIndex int, err *Error) error {
	s.out.push(now, AnswerRejected{
		ParticipantID: participantID,
		QuestionIndex: questionIndex,
		Code:          err.Code,
		Message:       err.Message,
	})
	return err
}

func (s *Session) join(now time.Time, c JoinSession, actor Actor) error {
	if actor.Role == RoleHost {
		return errorf(ErrIllegalTransition, "host cannot join as a participant")
	}
	pid := c.ParticipantID
	if pid == "" {
		pid = actor.ID
	}
	if pid == "" {
		return errorf(ErrParticipantNotFound, "missing participant id")
	}

	if existing, ok := s.participants[pid]; ok {
		if existing.ConnectionState != Connected {
			existing.ConnectionState = Connected
			s.version++
		}
		s.out.push(now, ParticipantJoined{Participant: *existing, Rejoined: true})
		return nil
	}

	name := strings.TrimSpace(c.DisplayName)
	if n := utf8.RuneCountInString(name); n == 0 || n > MaxDisplayNameLength {
		return ErrInvalidDisplayName
	}
	key := strings.ToLower(name)
	if _, taken := s.names[key]; taken {
		return errorf(ErrDisplayNameTaken, "%q is already taken", name)
	}

	p := &Participant{
		ID:              pid,
		SessionID:       s.id,
		DisplayName:     name,
		ConnectionState: Connected,
		JoinedAt:        now,
	}
	s.participants[pid] = p
	s.joinOrder = append(s.joinOrder, pid)
	s.names[key] = pid
	s.version++
	s.recomputeLeaderboard()
	s.out.push(now, ParticipantJoined{Participant: *p})
	return nil
}

func (s *Session) disconnect(now time.Time, c Disconnect, actor Actor) error {
	if actor.Role != RoleSystem && actor.ID != c.ParticipantID {
		return errorf(ErrParticipantNotFound, "cannot disconnect another participant")
	}
	p, ok := s.participants[c.ParticipantID]
	if !ok {
		return ErrParticipantNotFound
	}
	if p.ConnectionState == Disconnected {
		return nil
	}
	p.ConnectionState = Disconnected
	s.version++
	s.out.push(now, ParticipantDisconnected{ParticipantID: p.ID})
	return nil
}

func (s *Session) setTimer(t TimerState) {
	s.timer = &t
	s.resetTick()
}

func (s *Session) resetTick() {
	s.lastTick = tickMark{questionIndex: -1, seconds: -1}
}

func (s *Session) transition(now time.Time, to Status, reason string) {
	from := s.status
	s.status = to
	s.version++
	s.logger.Info().Str("from", string(from)).Str("to", string(to)).Str("reason", reason).Int("question_index", s.index).Msg("session transition")
	s.out.push(now, SessionStateChanged{
		From:     from,
		To:       to,
		Reason:   reason,
		Snapshot: s.snapshotLocked(now),
	})
}

func (s *Session) recomputeLeaderboard() {
	s.leaderboard = ComputeLeaderboard(s.participantsLocked(), s.ledger.Records())
}

func (s *Session) leaderboardEvent() LeaderboardUpdated {
	return LeaderboardUpdated{
		QuestionIndex: s.index,
		Answered:      s.ledger.CountFor(s.index),
		Entries:       cloneEntries(s.leaderboard),
	}
}

func (s *Session) participantsLocked() []Participant {
	out := make([]Participant, 0, len(s.joinOrder))
	for _, pid := range s.joinOrder {
		out = append(out, *s.participants[pid])
	}
	return out
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		ID:                   s.id,
		QuizID:               s.quiz.ID,
		QuizTitle:            s.quiz.Title,
		HostID:               s.hostID,
		Status:               s.status,
		PausedFrom:           s.pausedFrom,
		CurrentQuestionIndex: s.index,
		QuestionCount:        len(s.quiz.Questions),
		CreatedAt:            s.createdAt,
		Version:              s.version,
		Participants:         s.participantsLocked(),
		Leaderboard:          cloneEntries(s.leaderboard),
	}
	if s.timer != nil && s.status != StatusEnded {
		snap.Timer = s.timer.View(now)
	}
	snap.Question = s.questionView()
	return snap
}

// questionView exposes the current question once it is answerable. The
// answer key is revealed only after it closes.
func (s *Session) questionView() *QuestionView {
	phase := s.status
	if phase == StatusPaused {
		phase = s.pausedFrom
	}
	if phase != StatusQuestionActive && phase != StatusQuestionClosed {
		return nil
	}
	q := s.quiz.Questions[s.index]
	v := &QuestionView{
		Index:            s.index,
		ID:               q.ID,
		Text:             q.Text,
		Answers:          make([]AnswerView, 0, len(q.Answers)),
		Points:           q.BasePoints(),
		TimeLimitSeconds: int(q.Duration() / time.Second),
	}
	for _, a := range q.Answers {
		v.Answers = append(v.Answers, AnswerView{ID: a.ID, Text: a.Text})
		if a.IsCorrect && phase == StatusQuestionClosed {
			v.CorrectAnswerID = a.ID
		}
	}
	return v
}

func cloneEntries(in []LeaderboardEntry) []LeaderboardEntry {
	out := make([]LeaderboardEntry, len(in))
	copy(out, in)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
