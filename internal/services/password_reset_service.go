package services

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/auth"
	"github.com/BradenHooton/portalguard/pkg/logger"
)

const (
	msgResetRequested   = "If an account exists for that email, a password reset link has been sent."
	msgResetDone        = "Your password has been reset. Please sign in again."
	msgPasswordChanged  = "Your password has been changed. Other sessions have been signed out."
	msgInvalidResetLink = "This password reset link is invalid or has expired."
	msgWeakPassword     = "Password does not meet the requirements."
	msgWrongPassword    = "Current password is incorrect."
	ruleSamePassword    = "must differ from the current password"
)

// SessionRevoker ends sessions after a credential change
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID string) (int64, error)
	RevokeAllOthers(ctx context.Context, userID, currentSessionID string) (int64, error)
}

// PasswordResetService implements the password reset and change flows
type PasswordResetService struct {
	flow     recoveryFlow
	idp      IdentityProvider
	email    EmailService
	sessions SessionRevoker
	audit    *logger.AuditLogger
	interval time.Duration
	hash     func(password string) (string, error)
}

func NewPasswordResetService(
	gate *ActionGate,
	idp IdentityProvider,
	email EmailService,
	sessions SessionRevoker,
	audit *logger.AuditLogger,
	sink *logger.ErrorSink,
	interval time.Duration,
) *PasswordResetService {
	if interval <= 0 {
		interval = models.PasswordResetInterval
	}
	return &PasswordResetService{
		flow:     recoveryFlow{gate: gate, sink: sink},
		idp:      idp,
		email:    email,
		sessions: sessions,
		audit:    audit,
		interval: interval,
		hash:     auth.HashPassword,
	}
}

// RequestReset mails a reset link when the account exists. At most one
// request per email passes the gate per interval, whether or not the
// account exists.
func (s *PasswordResetService) RequestReset(ctx context.Context, email, ipAddress string) *models.ActionResult {
	result := s.flow.run(ctx, models.ActionPasswordReset, s.interval, email, ipAddress, func(ctx context.Context) error {
		user, err := s.idp.FindUserByEmail(ctx, email)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		token, expiresAt, err := s.idp.IssueRecoveryToken(ctx, user, models.PurposePasswordReset)
		if err != nil {
			return err
		}
		return s.email.SendPasswordResetEmail(ctx, user.Email, token, expiresAt)
	})

	event := logger.AuditEvent{
		EventType: logger.EventPasswordResetRequest,
		Email:     email,
		IPAddress: ipAddress,
		Success:   result == nil,
	}
	if result != nil {
		event.FailureReason = result.Message
		s.audit.LogRecovery(ctx, event)
		return result
	}

	s.audit.LogRecovery(ctx, event)
	return &models.ActionResult{Success: true, Message: msgResetRequested}
}

// ValidateToken reports whether a reset token is live, without consuming it
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string) bool {
	_, err := s.idp.PeekRecoveryToken(ctx, models.PurposePasswordReset, token)
	return err == nil
}

// UpdatePassword sets a new password from a reset token. The password is
// checked and hashed first, so neither a weak password nor a hashing
// failure consumes the token.
func (s *PasswordResetService) UpdatePassword(ctx context.Context, token, newPassword, ipAddress string) *models.ActionResult {
	if result := weakPasswordResult(newPassword); result != nil {
		return result
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		s.flow.sink.Capture(ctx, "password_reset_update", "", err)
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	record, err := s.idp.ConsumeRecoveryToken(ctx, models.PurposePasswordReset, token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRecoveryToken) {
			s.audit.LogRecovery(ctx, logger.AuditEvent{
				EventType:     logger.EventPasswordReset,
				IPAddress:     ipAddress,
				FailureReason: "invalid_token",
			})
			return &models.ActionResult{Success: false, Message: msgInvalidResetLink}
		}
		s.flow.sink.Capture(ctx, "password_reset_update", "", err)
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	if err := s.idp.SetPasswordHash(ctx, record.UserID, hash); err != nil {
		s.flow.sink.Capture(ctx, "password_reset_update", record.Email, err)
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	if _, err := s.sessions.RevokeAll(ctx, record.UserID); err != nil {
		s.flow.sink.Capture(ctx, "password_reset_revoke_sessions", record.Email, err)
	}

	s.audit.LogRecovery(ctx, logger.AuditEvent{
		EventType: logger.EventPasswordReset,
		UserID:    record.UserID,
		Email:     record.Email,
		IPAddress: ipAddress,
		Success:   true,
	})
	return &models.ActionResult{Success: true, Message: msgResetDone}
}

// ChangePassword replaces the caller's password and signs out every other
// session
func (s *PasswordResetService) ChangePassword(ctx context.Context, principal *models.Principal, currentPassword, newPassword, ipAddress string) *models.ActionResult {
	if result := weakPasswordResult(newPassword); result != nil {
		return result
	}
	if currentPassword == newPassword {
		return &models.ActionResult{Success: false, Message: msgWeakPassword, Errors: []string{ruleSamePassword}}
	}

	if err := s.idp.VerifyPassword(ctx, principal.UserID, currentPassword); err != nil {
		if errors.Is(err, models.ErrInvalidCurrentPassword) {
			s.audit.LogRecovery(ctx, logger.AuditEvent{
				EventType:     logger.EventPasswordChange,
				UserID:        principal.UserID,
				IPAddress:     ipAddress,
				FailureReason: "invalid_current_password",
			})
			return &models.ActionResult{Success: false, Message: msgWrongPassword}
		}
		s.flow.sink.Capture(ctx, "password_change", principal.Email, err)
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	if err := s.idp.SetPassword(ctx, principal.UserID, newPassword); err != nil {
		s.flow.sink.Capture(ctx, "password_change", principal.Email, err)
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	if _, err := s.sessions.RevokeAllOthers(ctx, principal.UserID, principal.SessionID); err != nil {
		s.flow.sink.Capture(ctx, "password_change_revoke_sessions", principal.Email, err)
	}

	s.audit.LogRecovery(ctx, logger.AuditEvent{
		EventType: logger.EventPasswordChange,
		UserID:    principal.UserID,
		Email:     principal.Email,
		IPAddress: ipAddress,
		Success:   true,
	})
	return &models.ActionResult{Success: true, Message: msgPasswordChanged}
}

// weakPasswordResult lists every failed strength rule, or returns nil
func weakPasswordResult(password string) *models.ActionResult {
	err := auth.ValidatePassword(password)
	if err == nil {
		return nil
	}

	var pve *auth.PasswordValidationError
	if errors.As(err, &pve) {
		return &models.ActionResult{Success: false, Message: msgWeakPassword, Errors: pve.Errors}
	}
	return &models.ActionResult{Success: false, Message: msgWeakPassword}
}
