// Package webhookerr defines the error-kind taxonomy for the delivery
// engine: which failures are terminal and which are retried.
package webhookerr

import (
	"errors"
	"fmt"
)

// Kind classifies a delivery or verification failure.
type Kind string

const (
	EndpointGone       Kind = "endpoint_gone"
	PayloadTooLarge    Kind = "payload_too_large"
	HTTPClientError    Kind = "http_client_error"
	HTTPServerError    Kind = "http_server_error"
	NetworkError       Kind = "network_error"
	Timeout            Kind = "timeout"
	UnexpectedRedirect Kind = "unexpected_redirect"
	Overloaded         Kind = "overloaded"
	BadSignature       Kind = "bad_signature"
	StaleTimestamp     Kind = "stale_timestamp"
	MalformedSignature Kind = "malformed_signature"
	CircuitOpen        Kind = "circuit_open"
	RateLimited        Kind = "rate_limited"
)

// retryable records which kinds the Worker recovers from automatically.
var retryable = map[Kind]bool{
	HTTPServerError: true,
	NetworkError:    true,
	Timeout:         true,
	CircuitOpen:     true,
	RateLimited:     true,
}

// Retryable reports whether a failure of this kind should be retried per
// the engine's backoff policy.
func (k Kind) Retryable() bool {
	return retryable[k]
}

// Error wraps a Kind with a human-readable message and, optionally, the
// underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind == kind
	}
	return false
}
