package common

import (
	"errors"
	"fmt"
)

// Common error types used across the application
var (
	// ErrInvalidInput indicates invalid user input
	ErrInvalidInput = errors.New("invalid input")
	// ErrTimeout indicates a target exceeded its time budget
	ErrTimeout = errors.New("operation timed out")
	// ErrMalformedResponse indicates a response that could not be used as a document
	ErrMalformedResponse = errors.New("malformed response")
	// ErrInvalidConfiguration indicates configuration issues
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// WrapError wraps an error with additional context information
func WrapError(err error, message string) error {
	if err == nil {
		return fmt.Errorf("%s: <nil>", message)
	}
	return fmt.Errorf("%s: %w", message, err)
}

// NewError creates a new error with a formatted message
func NewError(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

// ValidationError represents validation errors with field-specific information
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NetworkError represents network-related errors
type NetworkError struct {
	URL     string
	Reason  string
	Wrapped error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for URL '%s': %s", e.URL, e.Reason)
}

func (e *NetworkError) Unwrap() error {
	return e.Wrapped
}

// NewNetworkError creates a new network error
func NewNetworkError(url, reason string, wrapped error) *NetworkError {
	return &NetworkError{
		URL:     url,
		Reason:  reason,
		Wrapped: wrapped,
	}
}

// HTTPError represents a non-success HTTP status
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *HTTPError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("HTTP %d error for URL '%s': %s", e.StatusCode, e.URL, e.Message)
	}
	return fmt.Sprintf("HTTP %d error: %s", e.StatusCode, e.Message)
}

// NewHTTPErrorWithURL creates a new HTTP error with URL context
func NewHTTPErrorWithURL(statusCode int, message, url string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		URL:        url,
	}
}

// FetchError is the per-target failure of a fetch. It never aborts a run;
// the orchestrator turns it into a fetch-error event.
type FetchError struct {
	TargetID string
	URL      string
	Reason   string
	Err      error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch failed for '%s': %s: %v", e.TargetID, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch failed for '%s': %s", e.TargetID, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError creates a new fetch error
func NewFetchError(targetID, url, reason string, err error) *FetchError {
	return &FetchError{
		TargetID: targetID,
		URL:      url,
		Reason:   reason,
		Err:      err,
	}
}

// ParseError reports a format-specific normalization failure. Callers
// degrade to plain-text normalization instead of failing.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse failed: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new parse error
func NewParseError(format string, err error) *ParseError {
	return &ParseError{Format: format, Err: err}
}

// StateCommitError is the only error that fails a run.
type StateCommitError struct {
	Backend string
	Err     error
}

func (e *StateCommitError) Error() string {
	return fmt.Sprintf("state commit failed (%s): %v", e.Backend, e.Err)
}

func (e *StateCommitError) Unwrap() error {
	return e.Err
}

// NewStateCommitError creates a new state commit error
func NewStateCommitError(backend string, err error) *StateCommitError {
	return &StateCommitError{Backend: backend, Err: err}
}

// IsStateCommitError reports whether err carries a StateCommitError.
func IsStateCommitError(err error) bool {
	var commitErr *StateCommitError
	return errors.As(err, &commitErr)
}
