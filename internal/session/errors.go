package session

import (
	"errors"
	"fmt"
)

// Code is a stable machine readable identifier of a domain error.
type Code string

const (
	CodeIllegalTransition   Code = "illegal_transition"
	CodeSessionEnded        Code = "session_ended"
	CodeQuestionNotActive   Code = "question_not_active"
	CodeDuplicateAnswer     Code = "duplicate_answer"
	CodeInvalidAnswer       Code = "invalid_answer"
	CodeQuizNotFound        Code = "quiz_not_found"
	CodeSessionNotFound     Code = "session_not_found"
	CodeNotHost             Code = "not_host"
	CodeParticipantNotFound Code = "participant_not_found"
	CodeInvalidDisplayName  Code = "invalid_display_name"
	CodeDisplayNameTaken    Code = "display_name_taken"
	CodeNoQuestions         Code = "no_questions"
)

// Error is an expected domain outcome. It is returned as a value and never panics.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on the code so wrapped or reworded errors still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrIllegalTransition   = &Error{Code: CodeIllegalTransition, Message: "command not allowed in current state"}
	ErrSessionEnded        = &Error{Code: CodeSessionEnded, Message: "session has ended"}
	ErrQuestionNotActive   = &Error{Code: CodeQuestionNotActive, Message: "question is not accepting answers"}
	ErrDuplicateAnswer     = &Error{Code: CodeDuplicateAnswer, Message: "answer already recorded"}
	ErrInvalidAnswer       = &Error{Code: CodeInvalidAnswer, Message: "answer does not belong to the question"}
	ErrQuizNotFound        = &Error{Code: CodeQuizNotFound, Message: "quiz not found"}
	ErrSessionNotFound     = &Error{Code: CodeSessionNotFound, Message: "session not found"}
	ErrNotHost             = &Error{Code: CodeNotHost, Message: "only the host can do that"}
	ErrParticipantNotFound = &Error{Code: CodeParticipantNotFound, Message: "participant not found"}
	ErrInvalidDisplayName  = &Error{Code: CodeInvalidDisplayName, Message: "display name must be 1 to 32 characters"}
	ErrDisplayNameTaken    = &Error{Code: CodeDisplayNameTaken, Message: "display name already taken"}
	ErrNoQuestions         = &Error{Code: CodeNoQuestions, Message: "quiz has no questions"}
)

func errorf(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the domain code of err, or "" when err is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
