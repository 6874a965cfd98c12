package services

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/logger"
)

const (
	msgVerificationSent = "If an account with that email needs verification, a new verification email has been sent."
	msgEmailVerified    = "Your email address has been verified."
	msgInvalidVerifyURL = "This verification link is invalid or has expired."
)

// EmailVerificationService handles verification email resends and
// completion
type EmailVerificationService struct {
	flow     recoveryFlow
	idp      IdentityProvider
	email    EmailService
	audit    *logger.AuditLogger
	interval time.Duration
}

func NewEmailVerificationService(
	gate *ActionGate,
	idp IdentityProvider,
	email EmailService,
	audit *logger.AuditLogger,
	sink *logger.ErrorSink,
	interval time.Duration,
) *EmailVerificationService {
	if interval <= 0 {
		interval = models.EmailVerificationInterval
	}
	return &EmailVerificationService{
		flow:     recoveryFlow{gate: gate, sink: sink},
		idp:      idp,
		email:    email,
		audit:    audit,
		interval: interval,
	}
}

// ResendVerification mails a fresh verification link to an unverified
// account. Unknown and already verified emails get the same answer.
func (s *EmailVerificationService) ResendVerification(ctx context.Context, email, ipAddress string) *models.ActionResult {
	result := s.flow.run(ctx, models.ActionEmailVerification, s.interval, email, ipAddress, func(ctx context.Context) error {
		user, err := s.idp.FindUserByEmail(ctx, email)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.EmailVerified {
			return nil
		}

		token, expiresAt, err := s.idp.IssueRecoveryToken(ctx, user, models.PurposeEmailVerification)
		if err != nil {
			return err
		}
		return s.email.SendVerificationEmail(ctx, user.Email, token, expiresAt)
	})

	event := logger.AuditEvent{
		EventType: logger.EventVerificationResend,
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
	return &models.ActionResult{Success: true, Message: msgVerificationSent}
}

// VerifyEmail consumes a verification token and marks the email verified
func (s *EmailVerificationService) VerifyEmail(ctx context.Context, token string) *models.ActionResult {
	record, err := s.idp.ConsumeRecoveryToken(ctx, models.PurposeEmailVerification, token)
	if err != nil {
		if errors.Is(err, models.ErrInvalidRecoveryToken) {
			return &models.ActionResult{Success: false, Message: msgInvalidVerifyURL}
		}
		s.flow.sink.Capture(ctx, "verify_email", "", err)
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	if err := s.idp.MarkEmailVerified(ctx, record.UserID); err != nil {
		s.flow.sink.Capture(ctx, "verify_email", record.Email, err)
		return &models.ActionResult{Success: false, Message: msgTryLater}
	}

	s.audit.LogRecovery(ctx, logger.AuditEvent{
		EventType: logger.EventEmailVerified,
		UserID:    record.UserID,
		Email:     record.Email,
		Success:   true,
	})
	return &models.ActionResult{Success: true, Message: msgEmailVerified}
}
