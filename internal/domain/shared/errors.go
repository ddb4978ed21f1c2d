// Package shared contains common domain types, errors, and events that are
// used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"time"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Ingress errors
	ErrMalformed  = errors.New("malformed event")
	ErrOverloaded = errors.New("buffer overloaded")
	ErrClosed     = errors.New("component closed")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrCooldown        = errors.New("cooldown in effect")
	ErrStaleKey        = errors.New("stale key: aggregate superseded")

	// External service errors
	ErrPersistenceUnavailable = errors.New("persistence store unavailable")
	ErrServiceUnavailable     = errors.New("service unavailable")
	ErrTimeout                = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ingress", "aggregator", "orchestrator"
	Op      string // Operation that failed, e.g., "Submit", "Fold"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
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
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// CooldownError is returned when a timed transition guard is violated.
// It carries the remaining wait so the caller can schedule a retry instead
// of polling.
type CooldownError struct {
	Remaining time.Duration
}

// Error implements the error interface.
func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown in effect: retry in %s", e.Remaining.Round(time.Second))
}

// Is makes errors.Is(err, ErrCooldown) match CooldownError values.
func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldown
}

// NewCooldownError creates a CooldownError with the given remaining wait.
func NewCooldownError(remaining time.Duration) *CooldownError {
	if remaining < 0 {
		remaining = 0
	}
	return &CooldownError{Remaining: remaining}
}

// IsMalformed checks if the error is a malformed-event rejection.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// IsOverloaded checks if the error is a buffer-overflow rejection.
func IsOverloaded(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrOverloaded)
}
