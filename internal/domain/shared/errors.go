// Package shared contains common domain types, errors and events that are
// used across all domain packages.
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

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// Infrastructure errors
	ErrTransient          = errors.New("transient store failure")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// Stable machine-readable error codes exposed to API clients.
const (
	CodeNotEnrolled        = "NOT_ENROLLED"
	CodeAlreadyEnrolled    = "ALREADY_ENROLLED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeModuleNotFound     = "MODULE_NOT_FOUND"
	CodeContentNotFound    = "CONTENT_NOT_FOUND"
	CodeEnrollmentNotFound = "ENROLLMENT_NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeForbidden          = "FORBIDDEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeUnavailable        = "UNAVAILABLE"
	CodeConflict           = "CONFLICT"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "enrollment", "progress", "streak"
	Op      string // Operation that failed, e.g. "Enroll", "MarkComplete"
	Kind    error  // Base error type for errors.Is() checking
	Code    string // Stable API code
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

// Is implements errors.Is() matching. Against another *DomainError only the
// codes are compared, so copies made with WithMessage still match their
// sentinel.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return de.Code != "" && de.Code == e.Code
	}
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// WithMessage returns a copy carrying a more specific message.
func (e *DomainError) WithMessage(format string, args ...any) *DomainError {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// WithOp returns a copy attributed to another operation.
func (e *DomainError) WithOp(op string) *DomainError {
	cp := *e
	cp.Op = op
	return &cp
}

// Wrap returns a copy that carries err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	cp := *e
	cp.Err = err
	return &cp
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, code, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Code:    code,
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

// Enrollment domain errors
var (
	ErrEnrollmentNotFound = NewDomainError("enrollment", "Find", ErrNotFound, CodeEnrollmentNotFound, "enrollment not found")
	ErrAlreadyEnrolled    = NewDomainError("enrollment", "Enroll", ErrAlreadyExists, CodeAlreadyEnrolled, "an active or paused enrollment already exists for this module")
	ErrInvalidTransition  = NewDomainError("enrollment", "Transition", ErrStateTransition, CodeInvalidTransition, "invalid enrollment status transition")
	ErrNotEnrolled        = NewDomainError("enrollment", "Require", ErrForbidden, CodeNotEnrolled, "no active enrollment for this module")
)

// Catalog errors
var (
	ErrModuleNotFound  = NewDomainError("catalog", "FindModule", ErrNotFound, CodeModuleNotFound, "module not found")
	ErrContentNotFound = NewDomainError("catalog", "FindContent", ErrNotFound, CodeContentNotFound, "content not found")
)

// Cross-cutting errors
var (
	ErrValidationFailed = NewDomainError("request", "Validate", ErrValidation, CodeValidation, "validation failed")
	ErrAccessForbidden  = NewDomainError("request", "Authorize", ErrForbidden, CodeForbidden, "access to another user's data is forbidden")
	ErrUnauthenticated  = NewDomainError("request", "Authenticate", ErrUnauthorized, CodeUnauthorized, "authentication required")
	ErrUnavailable      = NewDomainError("store", "Access", ErrServiceUnavailable, CodeUnavailable, "storage temporarily unavailable")
	ErrVersionConflict  = NewDomainError("store", "Update", ErrConcurrentModification, CodeConflict, "record was modified concurrently")
)

// NewValidationError builds a validation error for a named field.
func NewValidationError(op, format string, args ...any) *DomainError {
	return ErrValidationFailed.WithOp(op).WithMessage(format, args...)
}

// NewTransientError marks a store failure that may succeed on retry.
func NewTransientError(op string, err error) *DomainError {
	return WrapError("store", op, ErrTransient, "transient store failure", err)
}

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

// IsTransient checks if the store failure is eligible for internal retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsConflict checks if a conditional write lost a version race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// CodeOf extracts the API code of err, or CodeInternal for unknown errors.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	switch {
	case IsValidation(err):
		return CodeValidation
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case IsNotFound(err):
		return CodeNotFound
	case IsTransient(err), errors.Is(err, ErrServiceUnavailable):
		return CodeUnavailable
	case IsConflict(err):
		return CodeConflict
	}
	return CodeInternal
}

// MessageOf returns the human-readable message for err.
func MessageOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}
