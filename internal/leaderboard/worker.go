package leaderboard

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/session"
)

// LiveSource lists the sessions running on this instance.
type LiveSource interface {
	Sessions() []*session.Session
}

// SnapshotWorker periodically copies live session leaderboards into Redis.
type SnapshotWorker struct {
	svc      *Service
	source   LiveSource
	logger   zerolog.Logger
	interval time.Duration
}

func NewSnapshotWorker(svc *Service, source LiveSource, interval time.Duration, logger zerolog.Logger) *SnapshotWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SnapshotWorker{
		svc:      svc,
		source:   source,
		logger:   logger.With().Str("component", "leaderboard_snapshot_worker").Logger(),
		interval: interval,
	}
}

// Run blocks until context cancellation.
func (w *SnapshotWorker) Run(ctx context.Context) error {
	if w.svc == nil || w.source == nil {
		return nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SnapshotWorker) tick(ctx context.Context) {
	stored := 0
	for _, s := range w.source.Sessions() {
		if s.Status() == session.StatusEnded {
			continue
		}
		if err := w.svc.StoreLive(ctx, s.ID(), s.Leaderboard()); err != nil {
			w.logger.Warn().Err(err).Str("session_id", s.ID()).Msg("snapshot failed")
			continue
		}
		stored++
	}
	if stored > 0 {
		w.logger.Debug().Int("sessions", stored).Msg("live leaderboards stored")
	}
}
