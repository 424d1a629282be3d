package model

import "fmt"

// Outcome is the result of a network-dependent operation.
// It is one of Success, Failure or Pending.
type Outcome interface {
	isOutcome()
}

// Success carries the session token obtained by a completed operation
type Success struct {
	SessionToken string
}

// Failure describes why an operation did not complete.
// Code is the HTTP status when the Service answered, nil otherwise.
type Failure struct {
	Message string
	Code    *int
}

// Pending means the operation has not reached a terminal state yet
type Pending struct{}

func (Success) isOutcome() {}
func (Failure) isOutcome() {}
func (Pending) isOutcome() {}

func (f Failure) String() string {
	if f.Code != nil {
		return fmt.Sprintf("%s (HTTP %d)", f.Message, *f.Code)
	}
	return f.Message
}

// NewFailure builds a Failure without an HTTP code
func NewFailure(message string) Failure {
	return Failure{Message: message}
}

// NewHTTPFailure builds a Failure carrying an HTTP status code
func NewHTTPFailure(message string, code int) Failure {
	return Failure{Message: message, Code: &code}
}
