package model

import "fmt"

// EncryptionError is returned when a key cannot be used or a payload cannot be encrypted
type EncryptionError struct {
	Operation string
	Message   string
	Cause     error
}

func (e *EncryptionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("encryption failed [%s]: %s (%v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("encryption failed [%s]: %s", e.Operation, e.Message)
}

func (e *EncryptionError) Unwrap() error {
	return e.Cause
}

// NewEncryptionError creates a new encryption error
func NewEncryptionError(operation, message string, cause error) *EncryptionError {
	return &EncryptionError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// InvalidInputError is returned when a required input is empty
type InvalidInputError struct {
	Field   string
	Message string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Message)
}

// NewInvalidInputError creates a new invalid input error
func NewInvalidInputError(field, message string) *InvalidInputError {
	return &InvalidInputError{
		Field:   field,
		Message: message,
	}
}

// PreconditionError is returned before any network call when the caller
// supplied an unusable NIP or token
type PreconditionError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e *PreconditionError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("precondition failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("precondition failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

// NewPreconditionError creates a new precondition error
func NewPreconditionError(field string, value interface{}, rule, message string) *PreconditionError {
	return &PreconditionError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}
