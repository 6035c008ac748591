package session

import "time"

// EventType names an outbound event on the wire.
type EventType string

const (
	EventSessionStateChanged     EventType = "session_state_changed"
	EventTimerTick               EventType = "timer_tick"
	EventTimerExpired            EventType = "timer_expired"
	EventAnswerAccepted          EventType = "answer_accepted"
	EventAnswerRejected          EventType = "answer_rejected"
	EventLeaderboardUpdated      EventType = "leaderboard_updated"
	EventParticipantJoined       EventType = "participant_joined"
	EventParticipantDisconnected EventType = "participant_disconnected"
)

// AudienceKind selects the recipients of an event.
type AudienceKind string

const (
	AudienceAll         AudienceKind = "all"
	AudienceHost        AudienceKind = "host"
	AudienceParticipant AudienceKind = "participant"
)

// Audience addresses an event.
type Audience struct {
	Kind          AudienceKind `json:"kind"`
	ParticipantID string       `json:"participant_id,omitempty"`
}

var everyone = Audience{Kind: AudienceAll}

func only(participantID string) Audience {
	return Audience{Kind: AudienceParticipant, ParticipantID: participantID}
}

// Event is the closed set of outbound domain events.
type Event interface {
	Type() EventType
	Audience() Audience
	// Droppable events may be coalesced or dropped under backpressure.
	Droppable() bool
}

// Envelope is an event stamped with its session and position in the session's stream.
type Envelope struct {
	SessionID string    `json:"session_id"`
	Seq       uint64    `json:"seq"`
	At        time.Time `json:"at"`
	Event     Event     `json:"-"`
}

// SessionStateChanged carries every transition together with the resulting snapshot.
type SessionStateChanged struct {
	From     Status   `json:"from"`
	To       Status   `json:"to"`
	Reason   string   `json:"reason"`
	Snapshot Snapshot `json:"snapshot"`
}

// TimerTick is emitted when the displayed whole-second value changes.
type TimerTick struct {
	QuestionIndex     int        `json:"question_index"`
	Phase             TimerPhase `json:"phase"`
	RemainingSeconds  int        `json:"remaining_seconds"`
	RemainingMs       int64      `json:"remaining_ms"`
	IsFinalTenSeconds bool       `json:"is_final_ten_seconds"`
}

// TimerExpired fires exactly once per question.
type TimerExpired struct {
	QuestionIndex int `json:"question_index"`
}

// AnswerAccepted confirms a recorded answer to its participant.
type AnswerAccepted struct {
	Record AnswerRecord `json:"record"`
}

// AnswerRejected tells a participant why a submission was not recorded.
type AnswerRejected struct {
	ParticipantID string `json:"participant_id"`
	QuestionIndex int    `json:"question_index"`
	Code          Code   `json:"code"`
	Message       string `json:"message"`
}

// LeaderboardUpdated carries the fully recomputed ranking.
type LeaderboardUpdated struct {
	QuestionIndex int                `json:"question_index"`
	Answered      int                `json:"answered"`
	Entries       []LeaderboardEntry `json:"entries"`
}

// ParticipantJoined announces a new or returning participant.
type ParticipantJoined struct {
	Participant Participant `json:"participant"`
	Rejoined    bool        `json:"rejoined"`
}

// ParticipantDisconnected announces a lost connection.
type ParticipantDisconnected struct {
	ParticipantID string `json:"participant_id"`
}

func (SessionStateChanged) Type() EventType     { return EventSessionStateChanged }
func (TimerTick) Type() EventType               { return EventTimerTick }
func (TimerExpired) Type() EventType            { return EventTimerExpired }
func (AnswerAccepted) Type() EventType          { return EventAnswerAccepted }
func (AnswerRejected) Type() EventType          { return EventAnswerRejected }
func (LeaderboardUpdated) Type() EventType      { return EventLeaderboardUpdated }
func (ParticipantJoined) Type() EventType       { return EventParticipantJoined }
func (ParticipantDisconnected) Type() EventType { return EventParticipantDisconnected }

func (SessionStateChanged) Audience() Audience     { return everyone }
func (TimerTick) Audience() Audience               { return everyone }
func (TimerExpired) Audience() Audience            { return everyone }
func (e AnswerAccepted) Audience() Audience        { return only(e.Record.ParticipantID) }
func (e AnswerRejected) Audience() Audience        { return only(e.ParticipantID) }
func (LeaderboardUpdated) Audience() Audience      { return everyone }
func (ParticipantJoined) Audience() Audience       { return everyone }
func (ParticipantDisconnected) Audience() Audience { return everyone }

func (SessionStateChanged) Droppable() bool     { return false }
func (TimerTick) Droppable() bool               { return true }
func (TimerExpired) Droppable() bool            { return false }
func (AnswerAccepted) Droppable() bool          { return false }
func (AnswerRejected) Droppable() bool          { return false }
func (LeaderboardUpdated) Droppable() bool      { return false }
func (ParticipantJoined) Droppable() bool       { return false }
func (ParticipantDisconnected) Droppable() bool { return false }
