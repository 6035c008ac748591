package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pigi/quizmaster/internal/auth/jwt"
	"github.com/pigi/quizmaster/internal/session"
	httperrors "github.com/pigi/quizmaster/pkg/http/errors"
	ws "github.com/pigi/quizmaster/pkg/http/ws"
)

const commandTimeout = 5 * time.Second

// Sessions is the part of session.Manager the transport needs.
type Sessions interface {
	Get(sessionID string) (*session.Session, error)
	Apply(ctx context.Context, sessionID string, cmd session.Command, actor session.Actor) (session.Snapshot, error)
}

// Handler serves the session WebSocket endpoint.
type Handler struct {
	sessions Sessions
	hub      *ws.Hub
	tokens   *jwt.Manager
	upgrader websocket.Upgrader
	metrics  Metrics
	logger   zerolog.Logger
}

// NewHandler creates a session WebSocket handler. metrics may be nil.
func NewHandler(sessions Sessions, hub *ws.Hub, tokens *jwt.Manager, upgrader websocket.Upgrader, metrics Metrics, logger zerolog.Logger) *Handler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Handler{
		sessions: sessions,
		hub:      hub,
		tokens:   tokens,
		upgrader: upgrader,
		metrics:  metrics,
		logger:   logger.With().Str("component", "live_ws").Logger(),
	}
}

// client is the per-connection state. It is only touched by the read loop.
type client struct {
	conn      *ws.Connection
	sessionID string
	memberID  string
	role      string
	joined    bool
	token     string
	logger    zerolog.Logger
}

func (c *client) actor() session.Actor {
	if c.role == ws.RoleHost {
		return session.Host(c.memberID)
	}
	return session.ParticipantActor(c.memberID)
}

// HandleWebSocket upgrades the request and runs the connection.
// Route: GET /ws/sessions?session_id=...&token=...
//
// A host token binds the connection to the host. A participant token resumes
// an earlier participant. Without a token the connection watches the session
// until it sends join_session.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeMissingField, "session_id is required")
		return
	}
	s, err := h.sessions.Get(sessionID)
	if err != nil {
		httperrors.RespondNotFound(w, httperrors.ErrCodeSessionNotFound, "Session not found")
		return
	}

	c := &client{sessionID: sessionID, role: ws.RoleParticipant, memberID: uuid.NewString()}
	if token := r.URL.Query().Get("token"); token != "" {
		claims, err := h.tokens.ValidateForSession(token, sessionID)
		if err != nil {
			h.logger.Warn().Err(err).Str("session_id", sessionID).Msg("WebSocket token validation failed")
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid token")
			return
		}
		c.memberID = claims.ActorID()
		c.token = token
		if claims.Role == jwt.RoleHost {
			if !s.IsHost(session.Host(claims.ActorID())) {
				httperrors.RespondForbidden(w, httperrors.ErrCodeForbidden, "Not the host of this session")
				return
			}
			c.role = ws.RoleHost
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c.logger = h.logger.With().Str("session_id", sessionID).Str("member_id", c.memberID).Str("role", c.role).Logger()
	c.conn = ws.NewConnection(conn, sessionID, c.memberID, c.role, c.logger)
	h.hub.Register(c.conn)
	h.metrics.ConnectionOpened()
	go c.conn.WritePump()

	h.greet(r.Context(), s, c)

	c.conn.ReadPump(func(msg ws.Message) error {
		return h.handleMessage(s, c, msg)
	})

	h.metrics.ConnectionClosed()
	if h.hub.Unregister(c.conn) && c.joined {
		h.disconnect(c)
	}
	c.logger.Debug().Msg("connection closed")
}

// disconnect records the lost connection. When the participant reconnected
// while the disconnect was in flight, the newer connection wins.
func (h *Handler) disconnect(c *client) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if _, err := h.sessions.Apply(ctx, c.sessionID, session.Disconnect{ParticipantID: c.memberID}, session.System); err != nil {
		c.logger.Debug().Err(err).Msg("disconnect not recorded")
		return
	}
	if h.hub.Connected(c.sessionID, c.memberID) {
		cmd := session.JoinSession{ParticipantID: c.memberID}
		if _, err := h.sessions.Apply(ctx, c.sessionID, cmd, session.ParticipantActor(c.memberID)); err != nil {
			c.logger.Debug().Err(err).Msg("reconnect not restored")
		}
	}
}

// greet sends the initial snapshot. Pending events are flushed first so
// nothing older than the snapshot arrives after it.
func (h *Handler) greet(ctx context.Context, s *session.Session, c *client) {
	if c.token != "" && c.role == ws.RoleParticipant {
		if err := h.rejoin(ctx, s, c); err == nil {
			return
		}
		c.logger.Debug().Msg("participant token did not resume, watching instead")
		c.memberID = uuid.NewString()
		c.token = ""
		h.hub.Rebind(c.conn, c.memberID)
	}
	s.Flush()
	h.send(c, ws.TypeSessionSnapshot, "", s.Snapshot())
}

func (h *Handler) rejoin(ctx context.Context, s *session.Session, c *client) error {
	cmd := session.JoinSession{ParticipantID: c.memberID}
	if _, err := h.apply(ctx, s, c, cmd, session.ParticipantActor(c.memberID)); err != nil {
		return err
	}
	c.joined = true
	s.Flush()
	h.send(c, ws.TypeSessionJoined, "", ws.SessionJoinedPayload{
		ParticipantID: c.memberID,
		Token:         c.token,
		Snapshot:      s.Snapshot(),
	})
	return nil
}

func (h *Handler) handleMessage(s *session.Session, c *client, msg ws.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch msg.Type {
	case ws.TypePing:
		return h.send(c, ws.TypePong, msg.RequestID, nil)
	case ws.TypeRequestSnapshot:
		return h.send(c, ws.TypeSessionSnapshot, msg.RequestID, s.Snapshot())
	case ws.TypeJoinSession:
		return h.handleJoin(ctx, s, c, msg)
	case ws.TypeSubmitAnswer:
		return h.handleSubmit(ctx, s, c, msg)
	}

	cmd, ok := hostCommand(msg.Type)
	if !ok {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeUnknownMessageType, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
	if _, err := h.apply(ctx, s, c, cmd, c.actor()); err != nil {
		return h.sendCommandError(c, msg.RequestID, err)
	}
	return nil
}

func hostCommand(msgType string) (session.Command, bool) {
	switch msgType {
	case ws.TypeStartSession:
		return session.StartSession{}, true
	case ws.TypePauseSession:
		return session.PauseSession{}, true
	case ws.TypeResumeSession:
		return session.ResumeSession{}, true
	case ws.TypeShowQuestion:
		return session.ShowQuestion{}, true
	case ws.TypeCloseQuestion:
		return session.CloseQuestion{}, true
	case ws.TypeRestartTimer:
		return session.RestartTimer{}, true
	case ws.TypeEndSession:
		return session.EndSession{}, true
	}
	return nil, false
}

func (h *Handler) handleJoin(ctx context.Context, s *session.Session, c *client, msg ws.Message) error {
	if c.role == ws.RoleHost {
		return h.sendCommandError(c, msg.RequestID, session.ErrIllegalTransition)
	}
	var req ws.JoinSessionPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid join_session payload")
	}

	if c.joined {
		return h.send(c, ws.TypeSessionJoined, msg.RequestID, ws.SessionJoinedPayload{
			ParticipantID: c.memberID,
			Token:         c.token,
			Snapshot:      s.Snapshot(),
		})
	}

	participantID := c.memberID
	token := ""
	if req.RejoinToken != "" {
		claims, err := h.tokens.ValidateForSession(req.RejoinToken, c.sessionID)
		if err != nil || claims.Role != jwt.RoleParticipant {
			return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidToken, "Invalid rejoin token")
		}
		participantID = claims.ActorID()
		token = req.RejoinToken
	}

	cmd := session.JoinSession{ParticipantID: participantID, DisplayName: req.DisplayName}
	if _, err := h.apply(ctx, s, c, cmd, session.ParticipantActor(participantID)); err != nil {
		return h.sendCommandError(c, msg.RequestID, err)
	}

	if participantID != c.memberID {
		h.hub.Rebind(c.conn, participantID)
		c.memberID = participantID
		c.logger = c.logger.With().Str("participant_id", participantID).Logger()
	}
	if token == "" {
		name := req.DisplayName
		if p, ok := findParticipant(s.Snapshot(), participantID); ok {
			name = p.DisplayName
		}
		issued, err := h.tokens.GenerateParticipantToken(c.sessionID, participantID, name)
		if err != nil {
			c.logger.Error().Err(err).Msg("failed to issue participant token")
			return h.sendError(c, msg.RequestID, httperrors.ErrCodeInternalError, "Failed to issue token")
		}
		token = issued
	}
	c.joined = true
	c.token = token

	s.Flush()
	return h.send(c, ws.TypeSessionJoined, msg.RequestID, ws.SessionJoinedPayload{
		ParticipantID: participantID,
		Token:         token,
		Snapshot:      s.Snapshot(),
	})
}

func (h *Handler) handleSubmit(ctx context.Context, s *session.Session, c *client, msg ws.Message) error {
	if !c.joined {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeNotJoined, "Join the session before answering")
	}
	var req ws.SubmitAnswerPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return h.sendError(c, msg.RequestID, httperrors.ErrCodeInvalidPayload, "Invalid submit_answer payload")
	}

	cmd := session.SubmitAnswer{QuestionIndex: req.QuestionIndex, AnswerID: req.AnswerID}
	if req.ClientSentAt != "" {
		if sentAt, err := time.Parse(time.RFC3339Nano, req.ClientSentAt); err == nil {
			cmd.ClientSentAt = sentAt
		}
	}

	_, err := h.apply(ctx, s, c, cmd, c.actor())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrQuestionNotActive), errors.Is(err, session.ErrInvalidAnswer):
		// already reported to the participant as answer_rejected
		return nil
	case errors.Is(err, session.ErrDuplicateAnswer):
		// a retry of an answer that already counts
		return nil
	default:
		return h.sendCommandError(c, msg.RequestID, err)
	}
}

func (h *Handler) apply(ctx context.Context, s *session.Session, c *client, cmd session.Command, actor session.Actor) (session.Snapshot, error) {
	snap, err := h.sessions.Apply(ctx, s.ID(), cmd, actor)
	if err != nil {
		c.logger.Debug().Err(err).Str("command", string(cmd.Kind())).Msg("command rejected")
	}
	return snap, err
}

func (h *Handler) send(c *client, msgType, requestID string, payload any) error {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	msg.RequestID = requestID
	return c.conn.Send(msg)
}

func (h *Handler) sendError(c *client, requestID, code, message string) error {
	return h.send(c, ws.TypeError, requestID, ws.ErrorPayload{Code: code, Message: message})
}

func (h *Handler) sendCommandError(c *client, requestID string, err error) error {
	code := string(session.CodeOf(err))
	if code == "" {
		c.logger.Error().Err(err).Msg("command failed")
		return h.sendError(c, requestID, httperrors.ErrCodeCommandFailed, "Command failed")
	}
	return h.sendError(c, requestID, code, err.Error())
}

func findParticipant(snap session.Snapshot, id string) (session.Participant, bool) {
	for _, p := range snap.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return session.Participant{}, false
}
