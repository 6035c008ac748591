package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeJoinSession     = "join_session"
	TypeStartSession    = "start_session"
	TypePauseSession    = "pause_session"
	TypeResumeSession   = "resume_session"
	TypeShowQuestion    = "show_question"
	TypeCloseQuestion   = "close_question"
	TypeRestartTimer    = "restart_timer"
	TypeEndSession      = "end_session"
	TypeSubmitAnswer    = "submit_answer"
	TypeRequestSnapshot = "request_snapshot"
	TypePing            = "ping"

	// Server -> Client
	TypeSessionSnapshot         = "session_snapshot"
	TypeSessionJoined           = "session_joined"
	TypeSessionStateChanged     = "session_state_changed"
	TypeTimerTick               = "timer_tick"
	TypeTimerExpired            = "timer_expired"
	TypeAnswerAccepted          = "answer_accepted"
	TypeAnswerRejected          = "answer_rejected"
	TypeLeaderboardUpdated      = "leaderboard_updated"
	TypeParticipantJoined       = "participant_joined"
	TypeParticipantDisconnected = "participant_disconnected"
	TypeError                   = "error"
	TypePong                    = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
// Seq is the position of a session event in its stream; clients ignore a
// seq they have already applied.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Seq       uint64          `json:"seq,omitempty"`
}

// NewMessage marshals payload into a message of the given type.
func NewMessage(msgType string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: msgType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: data}, nil
}

// Client Messages (incoming)

type JoinSessionPayload struct {
	DisplayName string `json:"display_name"`
	RejoinToken string `json:"rejoin_token,omitempty"`
}

type SubmitAnswerPayload struct {
	QuestionIndex int     `json:"question_index"`
	AnswerID      *string `json:"answer_id"`
	ClientSentAt  string  `json:"client_sent_at,omitempty"` // RFC3339, diagnostics only
}

// Server Messages (outgoing)

type SessionJoinedPayload struct {
	ParticipantID string `json:"participant_id"`
	Token         string `json:"token"`
	Snapshot      any    `json:"snapshot"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
