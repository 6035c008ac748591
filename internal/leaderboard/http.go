package leaderboard

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/db/repository"
	"github.com/pigi/quizmaster/internal/session"
	httperrors "github.com/pigi/quizmaster/pkg/http/errors"
)

// Source of a leaderboard read straight from the in-process session.
const SourceMemory = "memory"

// LiveLookup resolves sessions hosted by this instance.
type LiveLookup interface {
	Get(sessionID string) (*session.Session, error)
}

// ResultReader loads archived results from durable storage.
type ResultReader interface {
	Get(ctx context.Context, sessionID string) (session.Result, error)
}

// Response is the leaderboard payload served over REST.
type Response struct {
	SessionID   string                     `json:"session_id"`
	Top         []session.LeaderboardEntry `json:"top"`
	Source      string                     `json:"source"`
	RetrievedAt string                     `json:"retrieved_at"`
}

// HTTPHandler exposes REST endpoints for leaderboard queries.
type HTTPHandler struct {
	live    LiveLookup
	svc     *Service
	results ResultReader
	logger  zerolog.Logger
}

// NewHTTPHandler constructs a leaderboard HTTP handler. svc and results may be nil.
func NewHTTPHandler(live LiveLookup, svc *Service, results ResultReader, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		live:    live,
		svc:     svc,
		results: results,
		logger:  logger.With().Str("component", "leaderboard_http").Logger(),
	}
}

// HandleGet responds with the leaderboard of a session.
// Route: GET /v1/sessions/{id}/leaderboard?limit=10
//
// Lookup order: this instance, then Redis (live snapshot or archive), then
// the Postgres archive.
func (h *HTTPHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingField, "session id required")
		return
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	top, source, err := h.lookup(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("leaderboard lookup failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeLeaderboardFetchFailed, "failed to fetch leaderboard")
		return
	}
	if source == "" {
		httperrors.RespondNotFound(w, httperrors.ErrCodeSessionNotFound, "session not found")
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, Response{
		SessionID:   sessionID,
		Top:         top,
		Source:      source,
		RetrievedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HTTPHandler) lookup(ctx context.Context, sessionID string, limit int) ([]session.LeaderboardEntry, string, error) {
	if h.live != nil {
		if s, err := h.live.Get(sessionID); err == nil {
			return truncate(s.Leaderboard(), limit), SourceMemory, nil
		}
	}

	if h.svc != nil {
		entries, source, err := h.svc.Top(ctx, sessionID, limit)
		switch {
		case err == nil:
			return entries, source, nil
		case errors.Is(err, ErrNotFound):
		default:
			h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("redis leaderboard fetch failed")
		}
	}

	if h.results != nil {
		result, err := h.results.Get(ctx, sessionID)
		if err == nil {
			return truncate(result.Leaderboard, limit), SourceArchive, nil
		}
		if !errors.Is(err, repository.ErrResultNotFound) {
			return nil, "", err
		}
	}
	return nil, "", nil
}

func truncate(entries []session.LeaderboardEntry, limit int) []session.LeaderboardEntry {
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
