package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/auth"
	"github.com/pigi/quizmaster/internal/auth/jwt"
	"github.com/pigi/quizmaster/internal/config"
	"github.com/pigi/quizmaster/internal/leaderboard"
	"github.com/pigi/quizmaster/internal/live"
	"github.com/pigi/quizmaster/internal/logging"
	httperrors "github.com/pigi/quizmaster/pkg/http/errors"
)

// NewUpgrader builds the WebSocket upgrader. An empty allow list accepts any
// origin, which is what local development needs.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// Deps are the handlers and clients the HTTP server exposes. Nil members are skipped.
type Deps struct {
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Tokens      *jwt.Manager
	Auth        *auth.HTTPHandlers
	Sessions    *live.HTTPHandlers
	WebSocket   *live.Handler
	Leaderboard *leaderboard.HTTPHandler
	Metrics     http.Handler
}

// NewHTTPServer wires every route of the API service.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, deps Deps) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewHandler(logger, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// NewHandler builds the routed handler, split out for tests.
func NewHandler(logger zerolog.Logger, deps Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httperrors.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pingDependencies(ctx, deps.Pool, deps.Redis); err != nil {
			reqLogger := logging.FromContext(ctx)
			reqLogger.Error().Err(err).Msg("dependency ping failed")
			httperrors.RespondError(w, http.StatusServiceUnavailable, httperrors.ErrCodeServiceUnavailable, "Upstream unavailable")
			return
		}
		httperrors.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	if deps.Auth != nil {
		mux.HandleFunc("POST /v1/auth/login", deps.Auth.Login)
	}

	if deps.Sessions != nil {
		mux.Handle("POST /v1/sessions", auth.RequireRole(jwt.RoleAdmin, http.HandlerFunc(deps.Sessions.CreateSession)))
		mux.HandleFunc("GET /v1/sessions/{id}", deps.Sessions.GetSession)
	}

	if deps.Leaderboard != nil {
		mux.HandleFunc("GET /v1/sessions/{id}/leaderboard", deps.Leaderboard.HandleGet)
	}

	if deps.WebSocket != nil {
		mux.HandleFunc("GET /ws/sessions", deps.WebSocket.HandleWebSocket)
	}

	var handler http.Handler = mux
	if deps.Tokens != nil {
		handler = auth.AuthMiddleware(deps.Tokens, logger)(handler)
	}
	return requestLogger(logger, handler)
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	var errs []error
	if pool != nil {
		errs = append(errs, pool.Ping(ctx))
	}
	if redis != nil {
		errs = append(errs, redis.Ping(ctx).Err())
	}
	return errors.Join(errs...)
}

// requestLogger puts the logger on the request context and logs each request.
func requestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(logging.IntoContext(r.Context(), logger)))
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets WebSocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
