package orchestrator

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine-level failures.
type ErrorKind string

const (
	// KindSessionBusy means another Step is in flight for the session.
	KindSessionBusy ErrorKind = "session_busy"
	// KindSessionNotFound means the session ID is unknown and no new
	// session could be started from the given input.
	KindSessionNotFound ErrorKind = "session_not_found"
	// KindPersistence means the session store rejected a read or write.
	// The step's effects are not committed.
	KindPersistence ErrorKind = "persistence_error"
	// KindClarificationLimit means the planner kept asking questions
	// after the clarification budget was spent and a forced advance.
	KindClarificationLimit ErrorKind = "clarification_limit_exceeded"
)

// EngineError is a coordination failure tied to a session.
type EngineError struct {
	SessionID string
	Kind      ErrorKind
	Message   string
	Err       error
}

func (e *EngineError) Error() string {
	msg := fmt.Sprintf("session %s: %s", e.SessionID, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// IsKind reports whether err is an EngineError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ee *EngineError
	return errors.As(err, &ee) && ee.Kind == kind
}
