package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

var (
	testTraceID = trace.TraceID{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
	testSpanID  = trace.SpanID{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}
)

// newSpanContext returns a context carrying a valid remote span context, which
// is all WithContext needs for correlation.
func newSpanContext() context.Context {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    testTraceID,
		SpanID:     testSpanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func TestNewTracedLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelInfo)

	logger := NewTracedLogger(handler, "scribe", "executor")

	require.NotNil(t, logger)
	assert.Equal(t, "scribe", logger.service)
	assert.Equal(t, "executor", logger.component)
	assert.True(t, logger.redactSensitive)
}

func TestTracedLogger_WithComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelInfo)
	logger := NewTracedLogger(handler, "scribe", "service")

	child := logger.WithComponent("breaker")

	child.Info(context.Background(), "circuit opened")

	output := buf.String()
	assert.Contains(t, output, `"component":"breaker"`)
	assert.Contains(t, output, `"service":"scribe"`)

	// Parent identity is unchanged.
	assert.Equal(t, "service", logger.component)
}

func TestTracedLogger_Levels(t *testing.T) {
	tests := []struct {
		name  string
		log   func(l *TracedLogger, ctx context.Context)
		level string
	}{
		{
			name:  "debug",
			log:   func(l *TracedLogger, ctx context.Context) { l.Debug(ctx, "debug message", "key", "value") },
			level: "DEBUG",
		},
		{
			name:  "info",
			log:   func(l *TracedLogger, ctx context.Context) { l.Info(ctx, "info message", "key", "value") },
			level: "INFO",
		},
		{
			name:  "warn",
			log:   func(l *TracedLogger, ctx context.Context) { l.Warn(ctx, "warn message", "key", "value") },
			level: "WARN",
		},
		{
			name:  "error",
			log:   func(l *TracedLogger, ctx context.Context) { l.Error(ctx, "error message", "key", "value") },
			level: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := NewJSONHandler(buf, slog.LevelDebug)
			logger := NewTracedLogger(handler, "scribe", "executor")

			tt.log(logger, context.Background())

			output := buf.String()
			assert.Contains(t, output, tt.level)
			assert.Contains(t, output, tt.name+" message")
			assert.Contains(t, output, "scribe")
			assert.Contains(t, output, "executor")
		})
	}
}

func TestTracedLogger_WithContext_TraceCorrelation(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelInfo)
	logger := NewTracedLogger(handler, "scribe", "executor")

	ctx := newSpanContext()

	logger.Info(ctx, "test message with trace")

	output := buf.String()

	assert.Contains(t, output, "trace_id")
	assert.Contains(t, output, "span_id")
	assert.Contains(t, output, testTraceID.String())
	assert.Contains(t, output, testSpanID.String())

	assert.Contains(t, output, `"service":"scribe"`)
	assert.Contains(t, output, `"component":"executor"`)
}

func TestTracedLogger_WithContext_NoTrace(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelInfo)
	logger := NewTracedLogger(handler, "scribe", "executor")

	logger.Info(context.Background(), "test message without trace")

	output := buf.String()

	assert.Contains(t, output, `"service":"scribe"`)
	assert.Contains(t, output, `"component":"executor"`)

	assert.NotContains(t, output, "trace_id")
	assert.NotContains(t, output, "span_id")
}

func TestNewJSONHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelInfo)

	require.NotNil(t, handler)

	logger := slog.New(handler)
	logger.Info("test message", "key", "value")

	var logEntry map[string]interface{}
	err := json.Unmarshal(buf.Bytes(), &logEntry)
	require.NoError(t, err)

	assert.Equal(t, "INFO", logEntry["level"])
	assert.Equal(t, "test message", logEntry["msg"])
	assert.Equal(t, "value", logEntry["key"])
}

func TestNewTextHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewTextHandler(buf, slog.LevelInfo)

	require.NotNil(t, handler)

	logger := slog.New(handler)
	logger.Info("test message", "key", "value")

	output := buf.String()
	assert.Contains(t, output, "INFO")
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "key=value")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestRedactSensitiveData(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelInfo)
	logger := NewTracedLogger(handler, "scribe", "config")

	logger.Info(context.Background(), "connecting",
		"uri", "bolt://localhost:7687",
		"username", "neo4j",
		"password", "hunter2",
		"api_key", "sk-12345",
	)

	output := buf.String()

	assert.Contains(t, output, "bolt://localhost:7687")
	assert.Contains(t, output, "neo4j")
	assert.Contains(t, output, "[REDACTED]")
	assert.NotContains(t, output, "hunter2")
	assert.NotContains(t, output, "sk-12345")
}

func TestRedactSensitiveData_DebugNotRedacted(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(buf, slog.LevelDebug)
	logger := NewTracedLogger(handler, "scribe", "config")

	logger.Debug(context.Background(), "raw config", "password", "hunter2")

	output := buf.String()
	assert.Contains(t, output, "hunter2")
}

func TestRedactSensitiveData_OddArgs(t *testing.T) {
	args := []any{"password", "hunter2", "dangling"}

	result := redactSensitiveData(args)

	// Odd-length args cannot be interpreted as pairs; pass through untouched.
	assert.Equal(t, args, result)
}

func TestRedactSensitiveData_NormalizesKeys(t *testing.T) {
	args := []any{"API_KEY", "sk-123", "Secret_Key", "shhh"}

	result := redactSensitiveData(args)

	assert.Equal(t, "[REDACTED]", result[1])
	assert.Equal(t, "[REDACTED]", result[3])
}
