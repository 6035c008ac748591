package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/auth"
	"github.com/pigi/quizmaster/internal/auth/jwt"
	"github.com/pigi/quizmaster/internal/config"
	"github.com/pigi/quizmaster/internal/db/repository"
	"github.com/pigi/quizmaster/internal/leaderboard"
	"github.com/pigi/quizmaster/internal/live"
	"github.com/pigi/quizmaster/internal/logging"
	"github.com/pigi/quizmaster/internal/metrics"
	"github.com/pigi/quizmaster/internal/quiz"
	"github.com/pigi/quizmaster/internal/server"
	"github.com/pigi/quizmaster/internal/session"
	ws "github.com/pigi/quizmaster/pkg/http/ws"
)

// runner is a background loop that stops when its context is cancelled.
type runner interface {
	Run(ctx context.Context) error
}

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool     *pgxpool.Pool
	redis    *redis.Client
	http     *http.Server
	sessions *session.Manager

	workers   map[string]runner
	bgCancels []context.CancelFunc
}

// New bootstraps logger, optional Postgres and Redis, the session engine and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env, cfg.LogLevel)
	logger.Info().Msg("starting application bootstrap")

	a := &Application{cfg: cfg, logger: logger, workers: make(map[string]runner)}

	if cfg.Postgres.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
	} else {
		logger.Warn().Msg("PG_HOST not set; quizzes come from QUIZ_SEED_FILE and results are not archived in Postgres")
	}

	if cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
	} else {
		logger.Warn().Msg("REDIS_ADDR not set; quiz cache and leaderboard store disabled")
	}

	quizzes, err := a.quizStore()
	if err != nil {
		a.close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	instruments := metrics.New(registry)

	hub := ws.NewHub(logger)
	hub.OnDrop = instruments.DeliveryDropped

	var delivery live.Delivery = live.HubDelivery{Hub: hub}
	if cfg.Events.Bus == config.EventBusRedis {
		delivery = live.NewRedisBus(a.redis, cfg.Events.ChannelPrefix)
		a.workers["event_relay"] = live.NewRelay(a.redis, hub, cfg.Events.ChannelPrefix, logger)
	}
	publisher := live.NewPublisher(delivery, hub, instruments, logger)

	var (
		sinks   leaderboard.MultiSink
		results leaderboard.ResultReader
		lbSvc   *leaderboard.Service
	)
	if a.pool != nil {
		repo := repository.NewResultRepository(a.pool)
		sinks = append(sinks, repo)
		results = repo
	}
	if a.redis != nil {
		lbSvc = leaderboard.NewService(a.redis, logger, leaderboard.ServiceOptions{
			TopN:       cfg.Leaderboard.TopN,
			ArchiveTTL: cfg.Leaderboard.ArchiveTTL,
		})
		sinks = append(sinks, lbSvc)
	}

	var sink session.ResultSink
	if len(sinks) > 0 {
		sink = sinks
	}
	a.sessions = session.NewManager(quizzes, sink, publisher, session.ManagerOptions{
		Session: session.Config{
			Countdown:      cfg.Session.Countdown,
			TimeBonusRatio: cfg.Session.TimeBonusRatio,
		},
		TickInterval: cfg.Session.TickInterval,
		Retention:    cfg.Session.Retention,
		Recorder:     instruments,
	}, logger)

	if lbSvc != nil && cfg.Leaderboard.SnapshotInterval > 0 {
		a.workers["leaderboard_snapshot"] = leaderboard.NewSnapshotWorker(lbSvc, a.sessions, cfg.Leaderboard.SnapshotInterval, logger)
	}

	tokens := jwt.NewManager(jwt.TokenConfig{
		Secret:          []byte(cfg.Security.JWTSecret),
		AdminTTL:        cfg.Security.AdminTokenTTL,
		SessionTokenTTL: cfg.Security.SessionTokenTTL,
		Issuer:          cfg.Name,
	})
	creds := auth.Credentials{Username: cfg.Security.AdminUsername, PasswordHash: cfg.Security.AdminPasswordHash}
	if !creds.Configured() {
		logger.Warn().Msg("ADMIN_PASSWORD_HASH not set; admin login disabled")
	}

	a.http = server.NewHTTPServer(cfg, logger, server.Deps{
		Pool:        a.pool,
		Redis:       a.redis,
		Tokens:      tokens,
		Auth:        auth.NewHTTPHandlers(creds, tokens, logger),
		Sessions:    live.NewHTTPHandlers(a.sessions, tokens, logger),
		WebSocket:   live.NewHandler(a.sessions, hub, tokens, server.NewUpgrader(cfg.Security.AllowedOrigins), instruments, logger),
		Leaderboard: leaderboard.NewHTTPHandler(a.sessions, lbSvc, results, logger),
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	return a, nil
}

// quizStore picks the quiz source: Postgres when configured, otherwise the
// seed file. A Redis read-through cache sits in front of Postgres.
func (a *Application) quizStore() (quiz.Store, error) {
	if a.pool != nil {
		var store quiz.Store = repository.NewQuizRepository(a.pool)
		if a.redis != nil {
			store = quiz.NewCache(a.redis, store, a.cfg.Quiz.CacheTTL, a.logger)
		}
		return store, nil
	}

	mem := quiz.NewMemoryStore()
	if a.cfg.Quiz.SeedFile != "" {
		seeded, err := quiz.LoadFile(a.cfg.Quiz.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("load quiz seed file: %w", err)
		}
		for _, q := range seeded {
			mem.Put(q)
		}
		a.logger.Info().Int("quizzes", len(seeded)).Str("file", a.cfg.Quiz.SeedFile).Msg("quizzes seeded")
	}
	return mem, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := a.sessions.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("session manager shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}
	a.close()

	a.logger.Info().Msg("shutdown complete")
	return runErr
}

func (a *Application) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	for name, w := range a.workers {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := w.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Str("worker", name).Msg("background worker stopped")
			}
		}()
	}
}
