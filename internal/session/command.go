package session

import "time"

// CommandKind names a command on the wire and in metrics.
type CommandKind string

const (
	KindStartSession  CommandKind = "start_session"
	KindPauseSession  CommandKind = "pause_session"
	KindResumeSession CommandKind = "resume_session"
	KindShowQuestion  CommandKind = "show_question"
	KindCloseQuestion CommandKind = "close_question"
	KindRestartTimer  CommandKind = "restart_timer"
	KindEndSession    CommandKind = "end_session"
	KindSubmitAnswer  CommandKind = "submit_answer"
	KindJoinSession   CommandKind = "join_session"
	KindDisconnect    CommandKind = "disconnect"
)

// Command is the closed set of inputs accepted by Session.Apply.
type Command interface {
	Kind() CommandKind
	command()
}

// StartSession moves a waiting session into the first question's countdown.
type StartSession struct{}

// PauseSession freezes the running timer and remembers the current phase.
type PauseSession struct{}

// ResumeSession restores the phase that was paused.
type ResumeSession struct{}

// ShowQuestion advances to the next question, or ends the session after the last one.
type ShowQuestion struct{}

// CloseQuestion stops accepting answers for the active question.
type CloseQuestion struct{}

// RestartTimer replaces the current timer with a fresh one.
type RestartTimer struct{}

// EndSession terminates the session.
type EndSession struct{}

// SubmitAnswer records a participant's choice. A nil AnswerID is an explicit
// "no answer". ClientSentAt is untrusted and only logged.
type SubmitAnswer struct {
	QuestionIndex int
	AnswerID      *string
	ClientSentAt  time.Time
}

// JoinSession adds a participant, or reconnects one when ParticipantID is already known.
type JoinSession struct {
	ParticipantID string
	DisplayName   string
}

// Disconnect marks a participant's connection as lost.
type Disconnect struct {
	ParticipantID string
}

func (StartSession) Kind() CommandKind  { return KindStartSession }
func (PauseSession) Kind() CommandKind  { return KindPauseSession }
func (ResumeSession) Kind() CommandKind { return KindResumeSession }
func (ShowQuestion) Kind() CommandKind  { return KindShowQuestion }
func (CloseQuestion) Kind() CommandKind { return KindCloseQuestion }
func (RestartTimer) Kind() CommandKind  { return KindRestartTimer }
func (EndSession) Kind() CommandKind    { return KindEndSession }
func (SubmitAnswer) Kind() CommandKind  { return KindSubmitAnswer }
func (JoinSession) Kind() CommandKind   { return KindJoinSession }
func (Disconnect) Kind() CommandKind    { return KindDisconnect }

func (StartSession) command()  {}
func (PauseSession) command()  {}
func (ResumeSession) command() {}
func (ShowQuestion) command()  {}
func (CloseQuestion) command() {}
func (RestartTimer) command()  {}
func (EndSession) command()    {}
func (SubmitAnswer) command()  {}
func (JoinSession) command()   {}
func (Disconnect) command()    {}

// hostOnly reports whether the command requires host authority.
func hostOnly(cmd Command) bool {
	switch cmd.(type) {
	case StartSession, PauseSession, ResumeSession, ShowQuestion, CloseQuestion, RestartTimer, EndSession:
		return true
	}
	return false
}
