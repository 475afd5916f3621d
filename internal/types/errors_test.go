package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestScribeError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ScribeError
		contains []string
	}{
		{
			name: "simple error without cause",
			err:  NewError(CONFIG_LOAD_FAILED, "failed to load configuration"),
			contains: []string{
				"[CONFIG_LOAD_FAILED]",
				"failed to load configuration",
			},
		},
		{
			name: "error with cause",
			err:  WrapError(ARCHIVE_WRITE_FAILED, "insert failed", errors.New("database is locked")),
			contains: []string{
				"[ARCHIVE_WRITE_FAILED]",
				"insert failed",
				"database is locked",
			},
		},
		{
			name: "retryable error",
			err:  NewRetryableError(QUEUE_FULL, "pending queue at capacity"),
			contains: []string{
				"[QUEUE_FULL]",
				"pending queue at capacity",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errMsg := tt.err.Error()
			for _, substring := range tt.contains {
				if !strings.Contains(errMsg, substring) {
					t.Errorf("Error() = %v, want to contain %v", errMsg, substring)
				}
			}
		})
	}
}

func TestScribeError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := WrapError(OPERATION_INVALID, "submission rejected", cause)

	if got := wrapped.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	bare := NewError(OPERATION_NOT_FOUND, "no such operation")
	if got := bare.Unwrap(); got != nil {
		t.Errorf("Unwrap() = %v, want nil", got)
	}
}

func TestScribeError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    *ScribeError
		target error
		want   bool
	}{
		{
			name:   "same code matches",
			err:    NewError(QUEUE_FULL, "a"),
			target: NewError(QUEUE_FULL, "b"),
			want:   true,
		},
		{
			name:   "different code does not match",
			err:    NewError(QUEUE_FULL, "a"),
			target: NewError(SERVICE_STOPPED, "b"),
			want:   false,
		},
		{
			name:   "non-scribe error does not match",
			err:    NewError(QUEUE_FULL, "a"),
			target: errors.New("plain"),
			want:   false,
		},
		{
			name:   "matches through wrapping",
			err:    NewError(SERVICE_STOPPED, "a"),
			target: fmt.Errorf("outer: %w", NewError(SERVICE_STOPPED, "inner")),
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Is(tt.target); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable scribe error", NewRetryableError(QUEUE_FULL, "busy"), true},
		{"non-retryable scribe error", NewError(OPERATION_INVALID, "bad"), false},
		{"wrapped retryable", fmt.Errorf("outer: %w", WrapRetryableError(ARCHIVE_OPEN_FAILED, "open", errors.New("io"))), true},
		{"plain error", errors.New("plain"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
