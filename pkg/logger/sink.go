package logger

import (
	"context"
	"log/slog"
)

// ErrorSink is the monitoring sink for unexpected failures in user-facing
// flows. The caller gets a generic message; the sink keeps the detail.
type ErrorSink struct {
	logger *slog.Logger
}

// NewErrorSink creates a sink writing to logger
func NewErrorSink(logger *slog.Logger) *ErrorSink {
	return &ErrorSink{logger: logger}
}

// Capture records err for operation op. The email is masked before logging.
func (s *ErrorSink) Capture(ctx context.Context, op, email string, err error) {
	if s == nil || s.logger == nil || err == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("sink", "monitoring"),
		slog.String("operation", op),
		slog.Any("error", err),
	}
	if email != "" {
		attrs = append(attrs, slog.String("email", MaskEmail(email)))
	}

	s.logger.LogAttrs(ctx, slog.LevelError, "unexpected failure", attrs...)
}
