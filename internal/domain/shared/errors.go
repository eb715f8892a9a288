// Package shared contains the error taxonomy used across all domain packages.
// Every "known" error is expected and operator-facing; anything else propagates
// unmodified and is treated as fatal by the caller. This package has zero
// external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base error kinds that can be used for error checking with errors.Is().
var (
	// ErrConfiguration - catalog/question-mapping/storage misconfiguration.
	// Never retried; a human must fix the sheet/form mismatch before reprocessing.
	ErrConfiguration = errors.New("configuration error")

	// ErrFormInput - malformed or inconsistent student input.
	ErrFormInput = errors.New("form input error")

	// ErrStudentRecord - backing roster row is itself malformed.
	ErrStudentRecord = errors.New("student record error")

	// ErrNotFound - entity lookup failed.
	ErrNotFound = errors.New("not found")

	// ErrExternalService - failure reported by an outbound collaborator.
	ErrExternalService = errors.New("external service error")

	// ErrEmailDelivery - writes succeeded but the outbound email did not.
	// Requires manual follow-up; must never be silently dropped.
	ErrEmailDelivery = errors.New("email delivery error")
)

// KnownError represents an expected, operator-facing error with context.
type KnownError struct {
	Domain  string // e.g. "assignment", "submission", "record", "policy"
	Op      string // operation that failed, e.g. "ByName", "Flush"
	Kind    error  // base kind for errors.Is() checking
	Message string // human-readable message, surfaced verbatim to operators
	Err     error  // underlying error (optional)
}

// Error implements the error interface.
func (e *KnownError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *KnownError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *KnownError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewKnownError creates a new known error.
func NewKnownError(domain, op string, kind error, message string) *KnownError {
	return &KnownError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapKnownError wraps an existing error with domain context.
func WrapKnownError(domain, op string, kind error, message string, err error) *KnownError {
	return &KnownError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Configuration creates a ConfigurationError for the given domain and operation.
func Configuration(domain, op, message string) *KnownError {
	return NewKnownError(domain, op, ErrConfiguration, message)
}

// FormInput creates a FormInputError for the given operation.
func FormInput(op, message string) *KnownError {
	return NewKnownError("submission", op, ErrFormInput, message)
}

// StudentRecord creates a StudentRecordError for the given operation.
func StudentRecord(op, message string) *KnownError {
	return NewKnownError("record", op, ErrStudentRecord, message)
}

// IsKnown reports whether the error belongs to the known taxonomy.
// Unknown errors are expected to trigger an operator-facing alert upstream.
func IsKnown(err error) bool {
	var known *KnownError
	return errors.As(err, &known)
}

// IsConfiguration checks if the error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsFormInput checks if the error is a form input error.
func IsFormInput(err error) bool {
	return errors.Is(err, ErrFormInput)
}

// IsStudentRecord checks if the error is a malformed-roster-row error.
func IsStudentRecord(err error) bool {
	return errors.Is(err, ErrStudentRecord)
}

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
