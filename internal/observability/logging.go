package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// TracedLogger is a structured logger with automatic trace correlation.
// It wraps slog.Logger and stamps every entry with the service and component
// names, plus the OpenTelemetry trace and span ids when a span is active.
type TracedLogger struct {
	logger          *slog.Logger
	service         string
	component       string
	redactSensitive bool
}

// NewTracedLogger creates a new TracedLogger with the specified handler and
// identity fields.
//
// Parameters:
//   - handler: The slog.Handler to use for formatting and outputting logs
//   - service: The service name stamped on every entry (e.g. "scribe")
//   - component: The subsystem producing logs (e.g. "executor", "breaker")
func NewTracedLogger(handler slog.Handler, service, component string) *TracedLogger {
	return &TracedLogger{
		logger:          slog.New(handler),
		service:         service,
		component:       component,
		redactSensitive: true,
	}
}

// WithComponent returns a logger that shares the handler and service identity
// but reports a different component name.
func (l *TracedLogger) WithComponent(component string) *TracedLogger {
	return &TracedLogger{
		logger:          l.logger,
		service:         l.service,
		component:       component,
		redactSensitive: l.redactSensitive,
	}
}

// Debug logs a debug-level message with automatic trace correlation.
// Debug logs include all fields without redaction.
func (l *TracedLogger) Debug(ctx context.Context, msg string, args ...any) {
	logger := l.WithContext(ctx)
	logger.Debug(msg, args...)
}

// Info logs an info-level message with automatic trace correlation.
// Sensitive data in args is redacted at info level and above.
func (l *TracedLogger) Info(ctx context.Context, msg string, args ...any) {
	logger := l.WithContext(ctx)
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	logger.Info(msg, args...)
}

// Warn logs a warning-level message with automatic trace correlation.
// Sensitive data in args is redacted at warn level and above.
func (l *TracedLogger) Warn(ctx context.Context, msg string, args ...any) {
	logger := l.WithContext(ctx)
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	logger.Warn(msg, args...)
}

// Error logs an error-level message with automatic trace correlation.
// Sensitive data in args is redacted at error level.
func (l *TracedLogger) Error(ctx context.Context, msg string, args ...any) {
	logger := l.WithContext(ctx)
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	logger.Error(msg, args...)
}

// WithContext creates a new slog.Logger with trace correlation fields added.
// Extracts trace_id and span_id from the OpenTelemetry span in the context
// and adds service and component to every log entry.
func (l *TracedLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger

	logger = logger.With(
		slog.String("service", l.service),
		slog.String("component", l.component),
	)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()
		logger = logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}

	return logger
}

// NewJSONHandler creates a new JSON log handler with the specified output and level.
// JSON format is ideal for structured logging in production environments.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// NewTextHandler creates a new text log handler with the specified output and level.
// Text format is human-readable and useful for development and debugging.
func NewTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	})
}

// ParseLevel maps a config-file level string to a slog.Level.
// Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactSensitiveData redacts sensitive fields in log arguments. Credentials
// can reach the logger through config dumps and driver errors, so fields such
// as password, token, and api_key are replaced with "[REDACTED]".
func redactSensitiveData(args []any) []any {
	if len(args)%2 != 0 {
		// Invalid args, return as-is
		return args
	}

	sensitiveFields := map[string]bool{
		"apikey":     true,
		"secret":     true,
		"secretkey":  true,
		"password":   true,
		"token":      true,
		"credential": true,
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 0; i < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			normalizedKey := strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if sensitiveFields[normalizedKey] {
				redacted[i+1] = "[REDACTED]"
			}
		}
	}

	return redacted
}
