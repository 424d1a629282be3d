package ksef

import (
	"errors"
	"fmt"
)

// TransportError wraps a connection, DNS or timeout failure
type TransportError struct {
	Operation string
	Cause     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Operation, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// HTTPError is returned for any response with status >= 400
type HTTPError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Operation, e.StatusCode, e.Message)
}

// ProtocolError is returned when a 2xx response lacks a required field
type ProtocolError struct {
	Operation string
	Field     string
	Cause     error
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: malformed response: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s: response missing %s", e.Operation, e.Field)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether err is a transient transport failure
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// StatusCode extracts the HTTP status from err, if any
func StatusCode(err error) (int, bool) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode, true
	}
	return 0, false
}
