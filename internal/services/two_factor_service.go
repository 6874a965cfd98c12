package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/metrics"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/logger"
)

// Verification methods, used as metric and audit labels
const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

// TwoFactorRepository defines the persistence operations of the second factor
type TwoFactorRepository interface {
	GetSecret(ctx context.Context, userID string) (*models.TwoFactorSecret, error)
	UpsertPendingSecret(ctx context.Context, secret *models.TwoFactorSecret) error
	EnableSecret(ctx context.Context, userID string, step int64, codeHashes []string) error
	AdvanceLastUsedStep(ctx context.Context, userID string, step int64) (bool, error)
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string) error
}

// TwoFactorConfig holds two-factor configuration
type TwoFactorConfig struct {
	BackupCodeCount int
}

// TwoFactorService drives the NotConfigured → PendingSetup → Enabled
// lifecycle and verifies TOTP and backup codes
type TwoFactorService struct {
	repo    TwoFactorRepository
	totp    *auth.TOTPManager
	audit   *logger.AuditLogger
	metrics *metrics.Recorder
	logger  *slog.Logger
	config  TwoFactorConfig
	now     func() time.Time
}

func NewTwoFactorService(
	repo TwoFactorRepository,
	totpMgr *auth.TOTPManager,
	audit *logger.AuditLogger,
	recorder *metrics.Recorder,
	logger *slog.Logger,
	config TwoFactorConfig,
) *TwoFactorService {
	return &TwoFactorService{
		repo:    repo,
		totp:    totpMgr,
		audit:   audit,
		metrics: recorder,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// getSecret returns the user's secret, or nil when none exists
func (s *TwoFactorService) getSecret(ctx context.Context, userID string) (*models.TwoFactorSecret, error) {
	secret, err := s.repo.GetSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, storeFailure(s.logger, "failed to load two-factor secret", err)
	}
	return secret, nil
}

// Setup creates a pending secret and a backup code batch. The plaintext
// codes are returned here and on Enable only.
func (s *TwoFactorService) Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	existing, err := s.getSecret(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing.State() == models.TwoFactorEnabled {
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	generated, err := s.totp.GenerateSecret(email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, err := s.totp.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pending, pendingNonce, err := s.totp.Encrypt([]byte(strings.Join(codes, "\n")))
	if err != nil {
		s.logger.Error("failed to encrypt pending backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret := &models.TwoFactorSecret{
		UserID:                  userID,
		EncryptedSecret:         generated.Encrypted,
		Nonce:                   generated.Nonce,
		PendingBackupCodes:      pending,
		PendingBackupCodesNonce: pendingNonce,
	}
	if err := s.repo.UpsertPendingSecret(ctx, secret); err != nil {
		if errors.Is(err, models.ErrTwoFactorAlreadyEnabled) {
			return nil, err
		}
		return nil, storeFailure(s.logger, "failed to store pending secret", err)
	}

	s.audit.LogTwoFactor(ctx, logger.AuditEvent{
		EventType: logger.EventTwoFactorSetup,
		UserID:    userID,
		Success:   true,
	})

	return &models.TwoFactorSetup{
		Secret:          generated.Secret,
		ProvisioningURI: generated.ProvisioningURI,
		QRCodeImage:     generated.QRCodeImage,
		BackupCodes:     codes,
	}, nil
}

// Enable confirms the pending secret with a TOTP code and activates the
// backup code batch generated at setup, which is returned for display.
func (s *TwoFactorService) Enable(ctx context.Context, userID, code string) ([]string, error) {
	if !auth.IsTOTPFormat(code) {
		return nil, models.ErrInvalidCodeFormat
	}

	secret, err := s.getSecret(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch secret.State() {
	case models.TwoFactorNotConfigured:
		return nil, models.ErrNoPendingSetup
	case models.TwoFactorEnabled:
		return nil, models.ErrTwoFactorAlreadyEnabled
	}

	step, ok, err := s.match(secret, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.recordVerification(ctx, userID, logger.EventTwoFactorEnabled, MethodTOTP, false)
		return nil, models.ErrInvalidCode
	}

	codes, err := s.pendingCodes(secret)
	if err != nil {
		return nil, err
	}

	if err := s.repo.EnableSecret(ctx, userID, step, s.hashCodes(codes)); err != nil {
		if errors.Is(err, models.ErrNoPendingSetup) {
			// enabled concurrently, or the step was already consumed
			return nil, models.ErrInvalidCode
		}
		return nil, storeFailure(s.logger, "failed to enable two-factor", err)
	}

	s.recordVerification(ctx, userID, logger.EventTwoFactorEnabled, MethodTOTP, true)
	return codes, nil
}

// Verify checks a TOTP code against the enabled secret. A time step is
// accepted at most once.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	if !auth.IsTOTPFormat(code) {
		return models.ErrInvalidCodeFormat
	}

	secret, err := s.getSecret(ctx, userID)
	if err != nil {
		return err
	}
	if secret.State() != models.TwoFactorEnabled {
		return models.ErrTwoFactorNotEnabled
	}

	step, ok, err := s.match(secret, code)
	if err != nil {
		return err
	}
	if ok {
		ok, err = s.repo.AdvanceLastUsedStep(ctx, userID, step)
		if err != nil {
			return storeFailure(s.logger, "failed to record TOTP step", err)
		}
	}

	s.recordVerification(ctx, userID, logger.EventTwoFactorVerify, MethodTOTP, ok)
	if !ok {
		return models.ErrInvalidCode
	}
	return nil
}

// VerifyBackupCode redeems a backup code. Unknown and already used codes
// fail identically.
func (s *TwoFactorService) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if !auth.IsBackupCodeFormat(code) {
		return models.ErrInvalidCodeFormat
	}

	consumed, err := s.repo.ConsumeBackupCode(ctx, userID, s.totp.HashBackupCode(code))
	if err != nil {
		return storeFailure(s.logger, "failed to consume backup code", err)
	}

	s.recordVerification(ctx, userID, logger.EventBackupCodeUsed, MethodBackupCode, consumed)
	if !consumed {
		return models.ErrInvalidCode
	}
	return nil
}

// VerifyAny accepts either a TOTP code or a backup code, dispatching on the
// code's shape. Returns the method that matched.
func (s *TwoFactorService) VerifyAny(ctx context.Context, userID, code string) (string, error) {
	switch {
	case auth.IsTOTPFormat(code):
		return MethodTOTP, s.Verify(ctx, userID, code)
	case auth.IsBackupCodeFormat(code):
		return MethodBackupCode, s.VerifyBackupCode(ctx, userID, code)
	default:
		return "", models.ErrInvalidCodeFormat
	}
}

// Disable verifies code and then removes the secret and every backup code
func (s *TwoFactorService) Disable(ctx context.Context, userID, code string) error {
	if !auth.IsTOTPFormat(code) && !auth.IsBackupCodeFormat(code) {
		return models.ErrInvalidCodeFormat
	}

	enabled, err := s.IsEnabled(ctx, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return models.ErrTwoFactorNotEnabled
	}

	if _, err := s.VerifyAny(ctx, userID, code); err != nil {
		s.audit.LogTwoFactor(ctx, logger.AuditEvent{
			EventType:     logger.EventTwoFactorDisabled,
			UserID:        userID,
			FailureReason: "verification_failed",
		})
		return err
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return storeFailure(s.logger, "failed to delete two-factor secret", err)
	}

	s.audit.LogTwoFactor(ctx, logger.AuditEvent{
		EventType: logger.EventTwoFactorDisabled,
		UserID:    userID,
		Success:   true,
	})
	return nil
}

// RegenerateBackupCodes verifies code, then replaces the whole batch
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if _, err := s.VerifyAny(ctx, userID, code); err != nil {
		return nil, err
	}

	codes, err := s.totp.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.repo.ReplaceBackupCodes(ctx, userID, s.hashCodes(codes)); err != nil {
		if errors.Is(err, models.ErrTwoFactorNotEnabled) {
			return nil, err
		}
		return nil, storeFailure(s.logger, "failed to replace backup codes", err)
	}

	s.audit.LogTwoFactor(ctx, logger.AuditEvent{
		EventType: logger.EventBackupCodesRegen,
		UserID:    userID,
		Success:   true,
	})
	return codes, nil
}

// Status reports the lifecycle state and the number of unused backup codes
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	secret, err := s.getSecret(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &models.TwoFactorStatus{State: secret.State()}
	if status.State != models.TwoFactorEnabled {
		return status, nil
	}

	status.EnabledAt = secret.EnabledAt
	status.RemainingBackupCodes, err = s.repo.CountUnusedBackupCodes(ctx, userID)
	if err != nil {
		return nil, storeFailure(s.logger, "failed to count backup codes", err)
	}
	return status, nil
}

// IsEnabled reports whether the user has an enabled secret
func (s *TwoFactorService) IsEnabled(ctx context.Context, userID string) (bool, error) {
	secret, err := s.getSecret(ctx, userID)
	if err != nil {
		return false, err
	}
	return secret.State() == models.TwoFactorEnabled, nil
}

func (s *TwoFactorService) match(secret *models.TwoFactorSecret, code string) (int64, bool, error) {
	plain, err := s.totp.Decrypt(secret.EncryptedSecret, secret.Nonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret",
			slog.String("user_id", secret.UserID),
			slog.Any("error", err))
		return 0, false, models.ErrInternalServer
	}

	step, ok := s.totp.MatchStep(string(plain), code, s.now())
	return step, ok, nil
}

// pendingCodes recovers the batch generated at setup. A record without one
// gets a fresh batch.
func (s *TwoFactorService) pendingCodes(secret *models.TwoFactorSecret) ([]string, error) {
	if len(secret.PendingBackupCodes) == 0 {
		codes, err := s.totp.GenerateBackupCodes(s.config.BackupCodeCount)
		if err != nil {
			s.logger.Error("failed to generate backup codes", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return codes, nil
	}

	plain, err := s.totp.Decrypt(secret.PendingBackupCodes, secret.PendingBackupCodesNonce)
	if err != nil {
		s.logger.Error("failed to decrypt pending backup codes",
			slog.String("user_id", secret.UserID),
			slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return strings.Split(string(plain), "\n"), nil
}

func (s *TwoFactorService) hashCodes(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = s.totp.HashBackupCode(code)
	}
	return hashes
}

func (s *TwoFactorService) recordVerification(ctx context.Context, userID, event, method string, success bool) {
	s.metrics.TwoFactorVerification(method, success)

	audit := logger.AuditEvent{
		EventType: event,
		UserID:    userID,
		Success:   success,
		Metadata:  map[string]string{"method": method},
	}
	if !success {
		audit.FailureReason = "invalid_code"
	}
	s.audit.LogTwoFactor(ctx, audit)
}
