package auth

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/auth/jwt"
	httperrors "github.com/pigi/quizmaster/pkg/http/errors"
)

// LoginRequest is the body of POST /v1/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the admin token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// HTTPHandlers provides REST endpoints for authentication.
type HTTPHandlers struct {
	creds  Credentials
	tokens *jwt.Manager
	logger zerolog.Logger
}

// NewHTTPHandlers creates HTTP handlers for auth endpoints.
func NewHTTPHandlers(creds Credentials, tokens *jwt.Manager, logger zerolog.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		creds:  creds,
		tokens: tokens,
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// Login handles POST /v1/auth/login
func (h *HTTPHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httperrors.RespondError(w, http.StatusMethodNotAllowed, httperrors.ErrCodeInvalidRequest, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid JSON payload")
		return
	}

	if err := h.creds.Authenticate(req.Username, req.Password); err != nil {
		h.logger.Warn().Str("username", req.Username).Msg("admin login failed")
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeLoginFailed, "Invalid username or password")
		return
	}

	token, err := h.tokens.GenerateAdminToken(req.Username)
	if err != nil {
		h.logger.Error().Err(err).Msg("sign admin token")
		httperrors.RespondInternalError(w, "Failed to issue token")
		return
	}

	httperrors.RespondJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(h.tokens.AdminTTL().Seconds()),
	})
}
