package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/auth"
	"github.com/pigi/quizmaster/internal/auth/jwt"
	"github.com/pigi/quizmaster/internal/session"
	httperrors "github.com/pigi/quizmaster/pkg/http/errors"
)

// Creator opens new sessions.
type Creator interface {
	Create(ctx context.Context, quizID, hostID string) (session.Snapshot, error)
	Get(sessionID string) (*session.Session, error)
}

// CreateSessionRequest is the body of POST /v1/sessions.
type CreateSessionRequest struct {
	QuizID string `json:"quiz_id"`
}

// CreateSessionResponse carries the host credentials for a new session.
type CreateSessionResponse struct {
	SessionID string           `json:"session_id"`
	HostToken string           `json:"host_token"`
	JoinURL   string           `json:"join_url"`
	Snapshot  session.Snapshot `json:"snapshot"`
}

// HTTPHandlers provides REST endpoints for sessions.
type HTTPHandlers struct {
	sessions Creator
	tokens   *jwt.Manager
	logger   zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for session endpoints.
func NewHTTPHandlers(sessions Creator, tokens *jwt.Manager, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		sessions: sessions,
		tokens:   tokens,
		logger:   logger.With().Str("component", "session_http").Logger(),
	}
}

// CreateSession handles POST /v1/sessions. The caller becomes the host.
func (h *HTTPHandlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}
	req.QuizID = strings.TrimSpace(req.QuizID)
	if req.QuizID == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "quiz_id is required", "quiz_id")
		return
	}

	hostID := claims.ActorID()
	snap, err := h.sessions.Create(r.Context(), req.QuizID, hostID)
	switch {
	case errors.Is(err, session.ErrQuizNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeQuizNotFound, "Quiz not found")
		return
	case errors.Is(err, session.ErrNoQuestions):
		httperrors.RespondValidationError(w, httperrors.ErrCodeValidationFailed, "Quiz has no questions", "quiz_id")
		return
	case err != nil:
		h.logger.Error().Err(err).Str("quiz_id", req.QuizID).Msg("failed to create session")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodeSessionCreationFailed, "Failed to create session")
		return
	}

	token, err := h.tokens.GenerateHostToken(snap.ID, hostID)
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", snap.ID).Msg("failed to issue host token")
		httperrors.RespondInternalError(w, "Failed to issue host token")
		return
	}

	httperrors.RespondJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: snap.ID,
		HostToken: token,
		JoinURL:   "/ws/sessions?session_id=" + url.QueryEscape(snap.ID),
		Snapshot:  snap,
	})
}

// GetSession handles GET /v1/sessions/{id}.
func (h *HTTPHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.PathValue("id"))
	if err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeSessionNotFound, "Session not found")
		return
	}
	httperrors.RespondJSON(w, http.StatusOK, s.Snapshot())
}
