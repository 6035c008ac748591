package live

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pigi/quizmaster/internal/session"
	ws "github.com/pigi/quizmaster/pkg/http/ws"
)

// Frame is a session event in transport form. It is what travels over the
// Redis bus and what the hub turns into a WebSocket message.
type Frame struct {
	SessionID string           `json:"session_id"`
	Seq       uint64           `json:"seq"`
	Type      string           `json:"type"`
	Audience  session.Audience `json:"audience"`
	Droppable bool             `json:"droppable,omitempty"`
	Payload   json.RawMessage  `json:"payload"`
}

// NewFrame encodes an envelope.
func NewFrame(env session.Envelope) (Frame, error) {
	if env.Event == nil {
		return Frame{}, errors.New("envelope without event")
	}
	payload, err := json.Marshal(env.Event)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s: %w", env.Event.Type(), err)
	}
	return Frame{
		SessionID: env.SessionID,
		Seq:       env.Seq,
		Type:      string(env.Event.Type()),
		Audience:  env.Event.Audience(),
		Droppable: env.Event.Droppable(),
		Payload:   payload,
	}, nil
}

// Message is the WebSocket form of the frame.
func (f Frame) Message() ws.Message {
	return ws.Message{Type: f.Type, Payload: f.Payload, Seq: f.Seq}
}

// Dispatch hands a frame to the local connections it is addressed to.
func Dispatch(hub *ws.Hub, f Frame) error {
	msg := f.Message()
	switch f.Audience.Kind {
	case session.AudienceHost:
		hub.SendToRole(f.SessionID, ws.RoleHost, msg, f.Droppable)
	case session.AudienceParticipant:
		err := hub.SendToMember(f.SessionID, f.Audience.ParticipantID, msg, f.Droppable)
		// a participant without a live connection resyncs from the snapshot
		if err != nil && !errors.Is(err, ws.ErrConnectionNotFound) {
			return err
		}
	default:
		hub.Broadcast(f.SessionID, msg, f.Droppable)
	}
	return nil
}
