package session

import (
	"errors"
	"fmt"
)

// Code identifies a user-facing precondition failure.
type Code string

const (
	CodeAlreadyInSession Code = "ALREADY_IN_SESSION"
	CodeSessionNotFound  Code = "SESSION_NOT_FOUND"
	CodeSessionFull      Code = "SESSION_FULL"
	CodeSessionTerminal  Code = "SESSION_TERMINAL"
	CodeNotEnoughPlayers Code = "NOT_ENOUGH_PLAYERS"
	CodeNotYourTurn      Code = "NOT_YOUR_TURN"
	CodeGameAlreadyOver  Code = "GAME_ALREADY_OVER"
	CodeIllegalMove      Code = "ILLEGAL_MOVE"
)

// Error is an expected, actor-caused rejection. It never mutates stored state.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error with the same code, so wrapped copies still compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

var (
	ErrAlreadyInSession = &Error{Code: CodeAlreadyInSession, Message: "user already has an unfinished session"}
	ErrSessionNotFound  = &Error{Code: CodeSessionNotFound, Message: "session not found"}
	ErrSessionFull      = &Error{Code: CodeSessionFull, Message: "session already has two participants"}
	ErrSessionTerminal  = &Error{Code: CodeSessionTerminal, Message: "session already ended"}
	ErrNotEnoughPlayers = &Error{Code: CodeNotEnoughPlayers, Message: "waiting for an opponent"}
	ErrNotYourTurn      = &Error{Code: CodeNotYourTurn, Message: "not your turn"}
	ErrGameAlreadyOver  = &Error{Code: CodeGameAlreadyOver, Message: "game already over"}
	ErrIllegalMove      = &Error{Code: CodeIllegalMove, Message: "illegal move"}
)

// IsPrecondition reports whether err is a user-facing rejection rather than a system failure.
func IsPrecondition(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// CodeOf returns the precondition code of err, or "" for other errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UnavailableError wraps a persistence failure. The action was not applied and may be retried.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("session store %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Retryable() bool { return true }

func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsRetryable reports whether err signals a transient store failure.
func IsRetryable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
