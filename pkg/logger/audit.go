package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventTwoFactorSetup        = "2fa_setup"
	EventTwoFactorEnabled      = "2fa_enabled"
	EventTwoFactorDisabled     = "2fa_disabled"
	EventTwoFactorVerify       = "2fa_verify"
	EventBackupCodeUsed        = "2fa_backup_code"
	EventBackupCodesRegen      = "2fa_backup_codes_regenerated"
	EventSessionRevoked        = "session_revoked"
	EventSessionsRevokedOthers = "sessions_revoked_others"
	EventPasswordResetRequest  = "password_reset_request"
	EventPasswordReset         = "password_reset"
	EventPasswordChange        = "password_change"
	EventVerificationResend    = "email_verification_resend"
	EventEmailVerified         = "email_verified"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string // masked before it is logged
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security audit events as structured log records
type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogTwoFactor logs two-factor lifecycle and verification events
func (al *AuditLogger) LogTwoFactor(ctx context.Context, event AuditEvent) {
	al.log(ctx, "two_factor", event)
}

// LogSession logs session registry mutations
func (al *AuditLogger) LogSession(ctx context.Context, event AuditEvent) {
	al.log(ctx, "session", event)
}

// LogRecovery logs credential recovery events
func (al *AuditLogger) LogRecovery(ctx context.Context, event AuditEvent) {
	al.log(ctx, "recovery", event)
}

func (al *AuditLogger) log(ctx context.Context, auditType string, event AuditEvent) {
	if al == nil || al.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", MaskEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
