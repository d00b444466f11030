// Package shared contains common domain types and errors used across all
// domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")

	// Storage errors. StorageUnavailable is connection-level and retryable;
	// StorageQueryFailed is statement-level and never retried.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageQueryFailed = errors.New("storage query failed")

	// RateLimited is expected control flow, not a failure: the gain is
	// simply not applied this time.
	ErrRateLimited = errors.New("rate limited")

	// InvalidStateTransition indicates a caller sequencing bug and is
	// surfaced immediately, never silently absorbed.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// InvariantViolation is a defensive check failure. Always fatal to the
	// operation, logged at high severity, never auto-corrected.
	ErrInvariantViolation = errors.New("invariant violation")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "ledger", "rank", "identity"
	Op      string // Operation that failed, e.g., "Append", "Evaluate"
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

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorageUnavailable checks if the error is a connection-level storage
// failure that the caller may retry later.
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// IsRateLimited checks if the error signals a rejected gain.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsRetryable reports whether the operation can be retried. Retryability is
// an explicit property of the error kind, not inferred from type hierarchy.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
