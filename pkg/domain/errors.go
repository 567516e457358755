package domain

import (
	"errors"
	"fmt"
)

// ErrKeyNotFound is returned by storage adapters when a key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// ErrDraftNotFound is returned when no draft exists for a DraftKey.
var ErrDraftNotFound = errors.New("draft not found")

// ErrNoActiveScene is returned when an operation needs a scene and the engine has none.
var ErrNoActiveScene = errors.New("no active scene")

// ErrVideoUnsupported is returned when a video session is requested on a runtime without video support.
var ErrVideoUnsupported = errors.New("video editing unsupported")

// ErrSessionDisposed is returned when an operation is attempted on a disposed session.
var ErrSessionDisposed = errors.New("session disposed")

// ErrInvalidTransition is returned when the session state machine rejects a transition.
var ErrInvalidTransition = errors.New("invalid session state transition")

// ErrUnknownAction is returned when an action name has no registered handler.
var ErrUnknownAction = errors.New("unknown action")

// ErrNotStarted is returned when a component is used before being started.
var ErrNotStarted = errors.New("not started")

// ErrorKind classifies user visible failures.
type ErrorKind string

const (
	KindStartFailed      ErrorKind = "start-failed"
	KindVideoUnavailable ErrorKind = "video-unavailable"
	KindActionFailed     ErrorKind = "action-failed"
	KindStorageFailed    ErrorKind = "storage-failed"
)

// messages holds the localized text shown for each kind.
var messages = map[ErrorKind]string{
	KindStartFailed:      "The editor failed to start. Please close it and try again.",
	KindVideoUnavailable: "Video editing is not available on this device.",
	KindActionFailed:     "This action could not be completed.",
	KindStorageFailed:    "Your draft could not be saved on this device.",
}

// Message returns the localized user facing text for the kind.
func (k ErrorKind) Message() string {
	if m, ok := messages[k]; ok {
		return m
	}
	return "Something went wrong."
}

// SessionError is a user visible failure carrying a localized message and the underlying cause.
type SessionError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// NewSessionError builds a SessionError with the default message for kind.
func NewSessionError(kind ErrorKind, cause error) *SessionError {
	return &SessionError{Kind: kind, Message: kind.Message(), Cause: cause}
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *SessionError) Unwrap() error {
	return e.Cause
}
