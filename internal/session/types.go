package session

import (
	"time"
)

// Status is the lifecycle phase of a session.
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusCountdown      Status = "countdown"
	StatusQuestionActive Status = "question_active"
	StatusQuestionClosed Status = "question_closed"
	StatusPaused         Status = "paused"
	StatusEnded          Status = "ended"
)

// ConnectionState tracks whether a participant currently has a live connection.
type ConnectionState string

const (
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
)

// Role identifies who issues a command.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	// RoleSystem is used by the transport for connection lifecycle commands.
	RoleSystem Role = "system"
)

// Actor is the authenticated issuer of a command.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Host builds a host actor.
func Host(id string) Actor { return Actor{ID: id, Role: RoleHost} }

// ParticipantActor builds a participant actor.
func ParticipantActor(id string) Actor { return Actor{ID: id, Role: RoleParticipant} }

// System is the actor used by the transport itself.
var System = Actor{ID: "system", Role: RoleSystem}

// Participant is a joined viewer of a session.
type Participant struct {
	ID              string          `json:"id"`
	SessionID       string          `json:"session_id"`
	DisplayName     string          `json:"display_name"`
	ConnectionState ConnectionState `json:"connection_state"`
	JoinedAt        time.Time       `json:"joined_at"`
}

// AnswerRecord is the immutable outcome of one participant on one question.
// A nil SelectedAnswerID means the participant timed out.
type AnswerRecord struct {
	SessionID           string  `json:"session_id"`
	ParticipantID       string  `json:"participant_id"`
	QuestionIndex       int     `json:"question_index"`
	SelectedAnswerID    *string `json:"selected_answer_id"`
	SubmittedAtOffsetMs int64   `json:"submitted_at_offset_ms"`
	IsCorrect           bool    `json:"is_correct"`
	PointsAwarded       int     `json:"points_awarded"`
}

// TimedOut reports whether the record was synthesized on expiry.
func (r AnswerRecord) TimedOut() bool { return r.SelectedAnswerID == nil }

// LeaderboardEntry is a derived ranking row.
type LeaderboardEntry struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	TotalScore    int    `json:"total_score"`
	CorrectCount  int    `json:"correct_count"`
	Rank          int    `json:"rank"`
}

// TimerView is the wire form of the active timer. Clients re-derive remaining
// time from phase, started_at, accumulated_paused_ms and duration_ms.
type TimerView struct {
	QuestionIndex       int        `json:"question_index"`
	Phase               TimerPhase `json:"phase"`
	StartedAt           time.Time  `json:"started_at"`
	AccumulatedPausedMs int64      `json:"accumulated_paused_ms"`
	PausedAt            *time.Time `json:"paused_at,omitempty"`
	DurationMs          int64      `json:"duration_ms"`
	RemainingMs         int64      `json:"remaining_ms"`
}

// QuestionView is a question without its answer key. CorrectAnswerID is only
// set once the question is closed.
type QuestionView struct {
	Index            int          `json:"index"`
	ID               string       `json:"id"`
	Text             string       `json:"text"`
	Answers          []AnswerView `json:"answers"`
	Points           int          `json:"points"`
	TimeLimitSeconds int          `json:"time_limit_seconds"`
	CorrectAnswerID  string       `json:"correct_answer_id,omitempty"`
}

// AnswerView is a selectable option as shown to participants.
type AnswerView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Snapshot is a consistent read-only copy of a session.
type Snapshot struct {
	ID                   string             `json:"id"`
	QuizID               string             `json:"quiz_id"`
	QuizTitle            string             `json:"quiz_title"`
	HostID               string             `json:"host_id"`
	Status               Status             `json:"status"`
	PausedFrom           Status             `json:"paused_from,omitempty"`
	CurrentQuestionIndex int                `json:"current_question_index"`
	QuestionCount        int                `json:"question_count"`
	CreatedAt            time.Time          `json:"created_at"`
	Version              uint64             `json:"version"`
	Timer                *TimerView         `json:"timer,omitempty"`
	Question             *QuestionView      `json:"question,omitempty"`
	Participants         []Participant      `json:"participants"`
	Leaderboard          []LeaderboardEntry `json:"leaderboard"`
}

// QuestionStats summarises one question of a finished session.
type QuestionStats struct {
	QuestionIndex   int    `json:"question_index"`
	QuestionID      string `json:"question_id"`
	Answered        int    `json:"answered"`
	Correct         int    `json:"correct"`
	TimedOut        int    `json:"timed_out"`
	AverageOffsetMs int64  `json:"average_offset_ms"`
}

// Result is handed to the results store when a session ends.
type Result struct {
	SessionID    string             `json:"session_id"`
	QuizID       string             `json:"quiz_id"`
	QuizTitle    string             `json:"quiz_title"`
	HostID       string             `json:"host_id"`
	CreatedAt    time.Time          `json:"created_at"`
	EndedAt      time.Time          `json:"ended_at"`
	Participants []Participant      `json:"participants"`
	Answers      []AnswerRecord     `json:"answers"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard"`
	Questions    []QuestionStats    `json:"questions"`
}
