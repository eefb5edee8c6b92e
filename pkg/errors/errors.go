// Package errors classifies pipeline failures so callers can decide whether
// to retry, downgrade a metric to unavailable, or fail a namespace.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a structured error classification.
type ErrorCode string

const (
	// ErrCodeTransport indicates a network or upstream API failure.
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// ErrCodeTimeout indicates an attempt exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeData indicates a malformed or contract-violating response.
	ErrCodeData ErrorCode = "DATA"
	// ErrCodeSink indicates the recommendation store rejected a read or write.
	ErrCodeSink ErrorCode = "SINK"
	// ErrCodeConfig indicates invalid static configuration.
	ErrCodeConfig ErrorCode = "CONFIG"
)

// ErrAlreadyProcessed is returned when a scope already has rows for today.
// It is a short-circuit, not a failure.
var ErrAlreadyProcessed = stderrors.New("already processed today")

// StructuredError carries an error code, a message, the underlying cause
// and optional context for logging.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{Code: code, Message: message, Cause: cause}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{Code: code, Message: message, Cause: cause, Context: context}
}

// CodeOf returns the code of the outermost StructuredError in err's chain,
// or "" when there is none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
