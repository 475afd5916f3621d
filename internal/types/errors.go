package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for scribe errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	CONFIG_NOT_FOUND         ErrorCode = "CONFIG_NOT_FOUND"
)

// Operation submission error codes
const (
	OPERATION_INVALID   ErrorCode = "OPERATION_INVALID"
	OPERATION_NOT_FOUND ErrorCode = "OPERATION_NOT_FOUND"
	QUEUE_FULL          ErrorCode = "QUEUE_FULL"
	SERVICE_STOPPED     ErrorCode = "SERVICE_STOPPED"
)

// Dead-letter archive error codes
const (
	ARCHIVE_OPEN_FAILED  ErrorCode = "ARCHIVE_OPEN_FAILED"
	ARCHIVE_WRITE_FAILED ErrorCode = "ARCHIVE_WRITE_FAILED"
	ARCHIVE_QUERY_FAILED ErrorCode = "ARCHIVE_QUERY_FAILED"
)

// ScribeError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type ScribeError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *ScribeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
// This enables using errors.Is() and errors.As() with wrapped errors.
func (e *ScribeError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a ScribeError with the same Code.
func (e *ScribeError) Is(target error) bool {
	var scribeErr *ScribeError
	if errors.As(target, &scribeErr) {
		return e.Code == scribeErr.Code
	}
	return false
}

// NewError creates a new non-retryable ScribeError with the given code and message.
func NewError(code ErrorCode, message string) *ScribeError {
	return &ScribeError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable ScribeError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., network timeouts).
func NewRetryableError(code ErrorCode, message string) *ScribeError {
	return &ScribeError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable ScribeError that wraps an existing error.
// The wrapped error is accessible via Unwrap() for error chain inspection.
func WrapError(code ErrorCode, message string, cause error) *ScribeError {
	return &ScribeError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// WrapRetryableError creates a retryable ScribeError that wraps an existing error.
func WrapRetryableError(code ErrorCode, message string, cause error) *ScribeError {
	return &ScribeError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     cause,
	}
}

// IsRetryable reports whether err (or any error in its chain) is a ScribeError
// marked retryable. Non-ScribeError values are treated as non-retryable.
func IsRetryable(err error) bool {
	var scribeErr *ScribeError
	if errors.As(err, &scribeErr) {
		return scribeErr.Retryable
	}
	return false
}
