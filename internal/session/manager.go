package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/pigi/quizmaster/internal/clock"
	"github.com/pigi/quizmaster/internal/quiz"
)

const (
	DefaultTickInterval   = 100 * time.Millisecond
	DefaultRetention      = 10 * time.Minute
	defaultArchiveTimeout = 10 * time.Second
	defaultArchiveRetry   = time.Second
	archiveAttempts       = 3
)

// ResultSink archives finished sessions.
type ResultSink interface {
	Save(ctx context.Context, result Result) error
}

// Recorder receives engine outcomes for instrumentation.
type Recorder interface {
	CommandApplied(kind, outcome string)
	SessionOpened()
	SessionClosed()
}

type nopRecorder struct{}

func (nopRecorder) CommandApplied(string, string) {}
func (nopRecorder) SessionOpened()                {}
func (nopRecorder) SessionClosed()                {}

// ManagerOptions configures the session manager.
type ManagerOptions struct {
	Session      Config
	TickInterval time.Duration
	Retention    time.Duration
	Clock        clock.Clock
	Recorder     Recorder

	// ArchiveRetryDelay is the first pause between failed archive attempts.
	ArchiveRetryDelay time.Duration
	// NewID generates session ids. Defaults to random UUIDs.
	NewID             func() string
}

type managed struct {
	session *Session
	archive sync.Once
}

// Manager is the registry of live sessions. It runs one tick loop per session,
// archives each session exactly once when it ends and evicts it after the
// retention period.
type Manager struct {
	quizzes   quiz.Store
	sink      ResultSink
	publisher Publisher
	opts      ManagerOptions
	logger    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*managed

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a manager. sink may be nil when results are not archived.
func NewManager(quizzes quiz.Store, sink ResultSink, publisher Publisher, opts ManagerOptions, logger zerolog.Logger) *Manager {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.ArchiveRetryDelay <= 0 {
		opts.ArchiveRetryDelay = defaultArchiveRetry
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		quizzes:   quizzes,
		sink:      sink,
		publisher: publisher,
		opts:      opts,
		logger:    logger.With().Str("component", "session_manager").Logger(),
		sessions:  make(map[string]*managed),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Create loads the quiz once, caches it for the session's lifetime and starts
// the session's tick loop.
func (m *Manager) Create(ctx context.Context, quizID, hostID string) (Snapshot, error) {
	if hostID == "" {
		return Snapshot{}, errorf(ErrNotHost, "missing host identity")
	}
	q, err := m.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		if errors.Is(err, quiz.ErrNotFound) {
			return Snapshot{}, errorf(ErrQuizNotFound, "quiz %q not found", quizID)
		}
		return Snapshot{}, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	if len(q.Questions) == 0 {
		return Snapshot{}, ErrNoQuestions
	}

	s := New(Options{
		ID:        m.opts.NewID(),
		HostID:    hostID,
		Quiz:      q,
		Clock:     m.opts.Clock,
		Publisher: m.publisher,
		Logger:    m.logger,
		Config:    m.opts.Session,
	})
	entry := &managed{session: s}

	m.mu.Lock()
	m.sessions[s.ID()] = entry
	m.mu.Unlock()

	m.opts.Recorder.SessionOpened()
	m.wg.Add(1)
	go m.run(entry)

	m.logger.Info().Str("session_id", s.ID()).Str("quiz_id", quizID).Str("host_id", hostID).Msg("session created")
	return s.Snapshot(), nil
}

// Get returns a live or retained session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	entry, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.session, nil
}

// Apply routes a command to its session.
func (m *Manager) Apply(ctx context.Context, sessionID string, cmd Command, actor Actor) (Snapshot, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		m.opts.Recorder.CommandApplied(string(cmd.Kind()), string(CodeSessionNotFound))
		return Snapshot{}, err
	}
	snap, err := s.Apply(ctx, cmd, actor)
	outcome := "ok"
	if err != nil {
		outcome = string(CodeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	m.opts.Recorder.CommandApplied(string(cmd.Kind()), outcome)
	return snap, err
}

// Sessions lists registered sessions, ended ones included.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, entry := range m.sessions {
		out = append(out, entry.session)
	}
	return out
}

// Len is the number of registered sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops every tick loop and dispatcher.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) run(entry *managed) {
	defer m.wg.Done()
	s := entry.session
	logger := m.logger.With().Str("session_id", s.ID()).Logger()

	ticker := time.NewTicker(m.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			s.Close()
			m.opts.Recorder.SessionClosed()
			return
		case <-s.Done():
			s.Close()
			m.opts.Recorder.SessionClosed()
			m.archive(entry, logger)
			m.retain(s.ID())
			return
		case <-ticker.C:
			m.tick(s, logger)
		}
	}
}

func (m *Manager) tick(s *Session, logger zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("session tick panicked")
		}
	}()
	s.Tick()
}

func (m *Manager) archive(entry *managed, logger zerolog.Logger) {
	entry.archive.Do(func() {
		if m.sink == nil {
			return
		}
		result := entry.session.Result()
		attempts := 0
		backoff := retry.WithMaxRetries(archiveAttempts-1, retry.NewExponential(m.opts.ArchiveRetryDelay))
		err := retry.Do(m.ctx, backoff, func(context.Context) error {
			attempts++
			if err := m.save(result); err != nil {
				logger.Warn().Err(err).Int("attempt", attempts).Msg("archive session result failed")
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			logger.Error().Err(err).Int("attempts", attempts).Msg("session result not archived")
			return
		}
		logger.Info().Int("participants", len(result.Participants)).Int("answers", len(result.Answers)).Msg("session result archived")
	})
}

func (m *Manager) save(result Result) error {
	ctx, cancel := context.WithTimeout(m.ctx, defaultArchiveTimeout)
	defer cancel()
	return m.sink.Save(ctx, result)
}

// retain keeps an ended session readable for the retention period.
func (m *Manager) retain(sessionID string) {
	timer := time.NewTimer(m.opts.Retention)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.ctx.Done():
	}
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	m.logger.Debug().Str("session_id", sessionID).Msg("session evicted")
}
