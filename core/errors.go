package core

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes service errors across the whole pipeline.
type ErrorCode string

const (
	// ErrBadInput covers caller mistakes: unsupported extension, oversized
	// file, unknown columns, empty question. Never retried.
	ErrBadInput ErrorCode = "bad_input"
	// ErrNotFound covers unknown sessions and absent tables/reports.
	ErrNotFound ErrorCode = "not_found"
	// ErrNoInput is raised when a processing step has nothing to work on,
	// e.g. a session with zero uploaded images.
	ErrNoInput ErrorCode = "no_input"
	// ErrParse marks a model reply that could not be decoded into rows.
	ErrParse ErrorCode = "parse"
	// ErrTransient marks an upstream failure worth retrying.
	ErrTransient ErrorCode = "transient"
	// ErrRateLimited marks an upstream 429.
	ErrRateLimited ErrorCode = "rate_limited"
	// ErrUpstreamExhausted is raised once the retry budget is spent; it
	// always wraps the last underlying cause.
	ErrUpstreamExhausted ErrorCode = "upstream_exhausted"
	// ErrExecution marks a failed analyst script run.
	ErrExecution ErrorCode = "execution"
	// ErrStorage marks a fatal filesystem failure; not retried.
	ErrStorage ErrorCode = "storage"
	// ErrInternal is the catch-all.
	ErrInternal ErrorCode = "internal"
)

// AppError provides coded context for every failure the service surfaces.
type AppError struct {
	Code    ErrorCode
	Message string
	Status  int
	Details map[string]any
	wrapped error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.wrapped }

// WrapError creates a new AppError with the provided code. Existing AppErrors
// pass through unchanged so inner codes are preserved.
func WrapError(err error, code ErrorCode) *AppError {
	if err == nil {
		return nil
	}
	var app *AppError
	if errors.As(err, &app) {
		return app
	}
	return &AppError{Code: code, Message: err.Error(), wrapped: err}
}

// NewError builds an AppError explicitly.
func NewError(code ErrorCode, message string, opts ...ErrorOption) *AppError {
	e := &AppError{Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrorOption mutates an AppError during construction.
type ErrorOption func(*AppError)

// WithStatus sets the HTTP status code the API layer should use.
func WithStatus(status int) ErrorOption {
	return func(e *AppError) { e.Status = status }
}

// WithDetails attaches structured context.
func WithDetails(details map[string]any) ErrorOption {
	return func(e *AppError) { e.Details = details }
}

// WithWrapped attaches an underlying error.
func WithWrapped(err error) ErrorOption {
	return func(e *AppError) { e.wrapped = err }
}

// Code extracts the error code, defaulting to ErrInternal for plain errors.
func Code(err error) ErrorCode {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ErrInternal
}

func classify(code ErrorCode) func(error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		var app *AppError
		if errors.As(err, &app) {
			return app.Code == code
		}
		return false
	}
}

// Helper predicates for common error handling patterns.
var (
	IsBadInput          = classify(ErrBadInput)
	IsNotFound          = classify(ErrNotFound)
	IsNoInput           = classify(ErrNoInput)
	IsParse             = classify(ErrParse)
	IsTransient         = classify(ErrTransient)
	IsRateLimited       = classify(ErrRateLimited)
	IsUpstreamExhausted = classify(ErrUpstreamExhausted)
	IsExecution         = classify(ErrExecution)
	IsStorage           = classify(ErrStorage)
)

// Retryable reports whether the extraction client should attempt the call
// again. Only transient and rate-limit failures qualify.
func Retryable(err error) bool {
	return IsTransient(err) || IsRateLimited(err)
}
