// Package shared contains errors and failure classification used across the
// domain, application and infrastructure layers. It has no external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base errors for errors.Is checks.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")

	// ErrServiceUnavailable marks every failure of the remote progress store:
	// transport errors and non-success responses alike.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrStorage marks failures of local persistent storage.
	ErrStorage = errors.New("storage failure")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "progress", "star"
	Op      string // operation that failed
	Kind    error  // base error for errors.Is
	Message string
	Err     error // underlying cause, optional
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is matches against both the kind and the underlying error.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Progress domain errors.
var (
	ErrSkillProgressNotFound = NewDomainError("progress", "Find", ErrNotFound, "skill progress not found")
	ErrInvalidSkillID        = NewDomainError("progress", "Validate", ErrInvalidID, "invalid skill ID")
	ErrInvalidLessonType     = NewDomainError("progress", "Validate", ErrInvalidInput, "lesson type must be chat or simulation")
	ErrInvalidTotalSteps     = NewDomainError("progress", "Validate", ErrValueOutOfRange, "total steps cannot be negative")
	ErrInvalidSessionID      = NewDomainError("progress", "Validate", ErrInvalidID, "chat session ID is required")
	ErrInvalidLearnerID      = NewDomainError("progress", "Validate", ErrInvalidID, "learner ID is required")
	ErrMissingCredential     = NewDomainError("auth", "Resolve", ErrUnauthorized, "missing or unknown session credential")
	ErrTooManyRequests       = NewDomainError("auth", "RateLimit", ErrRateLimited, "too many requests")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsUnauthorized checks if the error is an authorization error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
