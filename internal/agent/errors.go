package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an agent failure.
type ErrorKind string

const (
	// KindMalformedOutput indicates the model's output failed schema
	// validation and could not be folded into session state.
	KindMalformedOutput ErrorKind = "malformed_output"
	// KindCapabilityUnavailable indicates the agent cannot serve the
	// requested operation.
	KindCapabilityUnavailable ErrorKind = "capability_unavailable"
)

// AgentError is a classified agent failure.
type AgentError struct {
	// Agent is the registry name of the failing agent.
	Agent string
	// Kind is the stable failure classification.
	Kind ErrorKind
	// Message is a human-readable description.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *AgentError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent %s: %s: %s", e.Agent, e.Kind, e.Message)
	}
	return fmt.Sprintf("agent %s: %s", e.Agent, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *AgentError) Unwrap() error {
	return e.Err
}

// IsMalformed reports whether err is an AgentError of kind
// KindMalformedOutput.
func IsMalformed(err error) bool {
	var ae *AgentError
	return errors.As(err, &ae) && ae.Kind == KindMalformedOutput
}

// malformed builds a MalformedOutput error for the named agent.
func malformed(agent, format string, args ...interface{}) *AgentError {
	return &AgentError{
		Agent:   agent,
		Kind:    KindMalformedOutput,
		Message: fmt.Sprintf(format, args...),
	}
}
