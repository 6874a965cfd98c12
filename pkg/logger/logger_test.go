package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "al***@example.com"},
		{"a@example.com", "a***@example.com"},
		{"  bob.smith@mail.example.org ", "bo***@mail.example.org"},
		{"not-an-email", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
		{"user@", "[invalid-email]"},
		{"", "[invalid-email]"},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.email))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("token=abc"))
	assert.True(t, SanitizeQueryString("Email=a@b.c"))
	assert.True(t, SanitizeQueryString("redirect=%2Fsettings"))
	assert.False(t, SanitizeQueryString("page=2&sort=desc"))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("k", "v", "production").Value.String())
	assert.Equal(t, "v", RedactedAttr("k", "v", "development").Value.String())
}

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestErrorSink_CaptureMasksEmail(t *testing.T) {
	var buf bytes.Buffer
	sink := NewErrorSink(newJSONLogger(&buf))

	sink.Capture(context.Background(), "password_reset.request", "alice@example.com", errors.New("boom"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "al***@example.com", record["email"])
	assert.Equal(t, "password_reset.request", record["operation"])
	assert.Equal(t, "boom", record["error"])
	assert.NotContains(t, buf.String(), "alice@example.com")
}

func TestErrorSink_NilSafe(t *testing.T) {
	var sink *ErrorSink
	assert.NotPanics(t, func() {
		sink.Capture(context.Background(), "op", "a@b.c", errors.New("x"))
	})
}

func TestAuditLogger_LevelFollowsOutcome(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(newJSONLogger(&buf))

	audit.LogTwoFactor(context.Background(), AuditEvent{
		EventType:     EventTwoFactorVerify,
		UserID:        "user-1",
		Success:       false,
		FailureReason: "invalid_code",
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "two_factor", record["audit_type"])
	assert.Equal(t, EventTwoFactorVerify, record["event_type"])
	assert.Equal(t, "invalid_code", record["failure_reason"])
}

func TestAuditLogger_RecoveryMasksEmail(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(newJSONLogger(&buf))

	audit.LogRecovery(context.Background(), AuditEvent{
		EventType: EventPasswordResetRequest,
		Email:     "carol@example.com",
		Success:   true,
	})

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "INFO", record["level"])
	assert.Equal(t, "ca***@example.com", record["email"])
}
