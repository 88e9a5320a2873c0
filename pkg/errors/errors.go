package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness for the ops
// API surface.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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

// WithError returns a copy carrying err as the underlying cause. The
// receiver is not mutated, so predefined errors stay shareable.
func (e *Error) WithError(err error) *Error {
	return &Error{Code: e.Code, Status: e.Status, Message: e.Message, Err: err}
}

// Predefined errors for the pipeline taxonomy.
var (
	ErrNotFound         = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation       = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrConflict         = New("CONFLICT", http.StatusConflict, "conflict")
	ErrInternal         = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrRunInProgress    = New("RUN_IN_PROGRESS", http.StatusConflict, "a pipeline run is already in progress")
	ErrPeriodUnresolved = New("PERIOD_UNRESOLVED", http.StatusUnprocessableEntity, "academic period could not be resolved")
	ErrIncompleteResult = New("INCOMPLETE_INDICATORS", http.StatusUnprocessableEntity, "indicator group returned an incomplete result")
	ErrPersistence      = New("PERSISTENCE_FAULT", http.StatusBadGateway, "warehouse write failed")
	ErrUpstream         = New("UPSTREAM_FAULT", http.StatusBadGateway, "source platform request failed")
	ErrCacheMiss        = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

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
