package provider

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// KindTimeout indicates the call exceeded the provider's timeout. Transient.
	KindTimeout ErrorKind = "timeout"
	// KindRateLimited indicates the provider rejected the call due to rate limits. Transient.
	KindRateLimited ErrorKind = "rate_limited"
	// KindServiceUnavailable indicates a provider-side outage or flake. Transient.
	KindServiceUnavailable ErrorKind = "service_unavailable"
	// KindAuthError indicates invalid or missing credentials. Permanent.
	KindAuthError ErrorKind = "auth_error"
	// KindInvalidRequest indicates the request itself was rejected. Permanent.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindExhausted indicates all retry attempts were consumed.
	KindExhausted ErrorKind = "provider_exhausted"
	// KindUnknownProvider indicates the provider name is not registered.
	KindUnknownProvider ErrorKind = "unknown_provider"
)

// Error is a classified provider failure. The wrapped cause never
// crosses the engine boundary; callers see the kind and message only.
type Error struct {
	// Provider is the provider name the call was routed to.
	Provider string
	// Kind is the stable failure classification.
	Kind ErrorKind
	// Message is a human-readable description.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Transient returns true if the failure is eligible for retry.
func (e *Error) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindServiceUnavailable:
		return true
	default:
		return false
	}
}

// IsKind reports whether err is a provider Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}
