// Package errors provides custom error types for the taxamap system.
// Every failure that crosses a package boundary is one of these types or
// wraps one of the sentinels, so callers can branch with errors.Is/As.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the taxamap system
var (
	// ErrNotFound indicates that a requested entity or record was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrSourceUnavailable indicates a transient network or service failure at a source
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrRateLimited indicates that a source rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrMalformed indicates a response (or call) that could not be interpreted
	ErrMalformed = errors.New("malformed response")

	// ErrInvalidCall marks a capability call rejected before reaching its
	// source, such as a missing argument or an unserved capability
	ErrInvalidCall = errors.New("invalid call")

	// ErrBudgetExceeded indicates a research session ran out of turns or time
	ErrBudgetExceeded = errors.New("session budget exceeded")

	// ErrStoreWrite indicates a failed transactional write to the record store
	ErrStoreWrite = errors.New("store write failed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
	Reason   string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %s not found: %s", e.Resource, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id, reason string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id, Reason: reason}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// SourceErrorKind classifies a failed source invocation.
type SourceErrorKind string

// Source error kinds.
const (
	KindNotFound    SourceErrorKind = "not_found"
	KindUnavailable SourceErrorKind = "unavailable"
	KindRateLimited SourceErrorKind = "rate_limited"
	KindMalformed   SourceErrorKind = "malformed"
)

// SourceError is the typed failure of one capability invocation.
type SourceError struct {
	Source     string
	Capability string
	Kind       SourceErrorKind
	RetryAfter time.Duration // set by the source for KindRateLimited, zero otherwise
	Err        error
}

// Error implements the error interface
func (e *SourceError) Error() string {
	msg := fmt.Sprintf("%s/%s: %s", e.Source, e.Capability, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements errors.Unwrap
func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *SourceError) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindUnavailable:
		return target == ErrSourceUnavailable
	case KindRateLimited:
		return target == ErrRateLimited
	case KindMalformed:
		return target == ErrMalformed
	}
	return false
}

// NewSourceError creates a new SourceError
func NewSourceError(source, capability string, kind SourceErrorKind, err error) *SourceError {
	return &SourceError{
		Source:     source,
		Capability: capability,
		Kind:       kind,
		Err:        err,
	}
}

// NewInvalidCallError creates a malformed SourceError for a call the
// registry refused. It matches both ErrMalformed and ErrInvalidCall.
func NewInvalidCallError(source, capability string, err error) *SourceError {
	return NewSourceError(source, capability, KindMalformed, fmt.Errorf("%w: %w", ErrInvalidCall, err))
}

// APIError represents a non-success HTTP response from a source API
type APIError struct {
	Source     string
	StatusCode int
	Message    string
	Endpoint   string
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from %s (status %d): %s", e.Source, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from %s: %s", e.Source, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *APIError) Is(target error) bool {
	switch {
	case e.StatusCode == 404:
		return target == ErrNotFound
	case e.StatusCode == 429:
		return target == ErrRateLimited
	case e.StatusCode >= 500:
		return target == ErrSourceUnavailable
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(source string, statusCode int, message string) *APIError {
	return &APIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
	}
}

// StoreError represents a failed record store operation.
type StoreError struct {
	Operation string // "upsert", "append", "get", "migrate"
	ID        string
	Err       error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("store %s %s: %v", e.Operation, e.ID, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support. Only write operations report ErrStoreWrite.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreWrite && (e.Operation == "upsert" || e.Operation == "append")
}

// NewStoreError creates a new StoreError
func NewStoreError(operation, id string, err error) *StoreError {
	return &StoreError{Operation: operation, ID: id, Err: err}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "json", "yaml", "html"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support. A payload that cannot be parsed is malformed.
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformed
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// TimeoutError represents an operation timeout
type TimeoutError struct {
	Operation string
	Duration  time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %s", e.Operation, e.Duration)
}

// Is implements errors.Is support
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation string, d time.Duration) *TimeoutError {
	return &TimeoutError{Operation: operation, Duration: d}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsSourceUnavailable checks if an error indicates a transient source failure
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable)
}

// IsMalformed checks if an error is a malformed response error
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// IsInvalidCall checks if an error is a call refused before reaching a source
func IsInvalidCall(err error) bool {
	return errors.Is(err, ErrInvalidCall)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsRetryable reports whether the caller may retry the same operation later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreWrite) ||
		errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout)
}

// Helper wrapping functions for common patterns

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapStore wraps an error as a StoreError
func WrapStore(operation, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewStoreError(operation, id, err)
}

// AsSourceError converts any invocation failure into a SourceError for the
// given source and capability, classifying it from the wrapped sentinels.
// Unclassified errors are treated as transient unavailability.
func AsSourceError(source, capability string, err error) *SourceError {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return se
	}
	out := &SourceError{Source: source, Capability: capability, Err: err}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		out.RetryAfter = apiErr.RetryAfter
	}
	switch {
	case errors.Is(err, ErrNotFound):
		out.Kind = KindNotFound
	case errors.Is(err, ErrRateLimited):
		out.Kind = KindRateLimited
	case errors.Is(err, ErrMalformed):
		out.Kind = KindMalformed
	case apiErr != nil && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		out.Kind = KindMalformed
	default:
		out.Kind = KindUnavailable
	}
	return out
}
