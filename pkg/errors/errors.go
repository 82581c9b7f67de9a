package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrSlotConflict covers any temporal overlap with an existing appointment
	// for the same provider, or insufficient contiguous free time.
	ErrSlotConflict = New("SLOT_CONFLICT", http.StatusConflict, "provider already scheduled at this time")

	// ErrProviderUnavailable means no effective shift exists for the provider
	// on the requested date; distinct from the provider being fully booked.
	ErrProviderUnavailable = New("PROVIDER_UNAVAILABLE", http.StatusUnprocessableEntity, "provider has no working hours on this date")

	// ErrRetryTimeout is a transient store failure (lock/transaction timeout).
	// Safe for the caller to retry the whole flow, unlike ErrSlotConflict.
	ErrRetryTimeout = New("RETRY_TIMEOUT", http.StatusServiceUnavailable, "booking could not acquire its lock in time, retry")

	// ErrCacheMiss is an internal sentinel for absent cache entries.
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Validation builds a collect-all validation error from the given violations.
func Validation(details []string) *Error {
	e := Clone(ErrValidation, "")
	e.Details = details
	return e
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
