package services

import (
	"context"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/aws/aws-sdk-go-v2/service/ses"
)

// MockTwoFactorRepository implements TwoFactorRepository for testing
type MockTwoFactorRepository struct {
	GetSecretFunc              func(ctx context.Context, userID string) (*models.TwoFactorSecret, error)
	UpsertPendingSecretFunc    func(ctx context.Context, secret *models.TwoFactorSecret) error
	EnableSecretFunc           func(ctx context.Context, userID string, step int64, codeHashes []string) error
	AdvanceLastUsedStepFunc    func(ctx context.Context, userID string, step int64) (bool, error)
	ConsumeBackupCodeFunc      func(ctx context.Context, userID, codeHash string) (bool, error)
	ReplaceBackupCodesFunc     func(ctx context.Context, userID string, codeHashes []string) error
	CountUnusedBackupCodesFunc func(ctx context.Context, userID string) (int, error)
	DeleteFunc                 func(ctx context.Context, userID string) error
}

func (m *MockTwoFactorRepository) GetSecret(ctx context.Context, userID string) (*models.TwoFactorSecret, error) {
	if m.GetSecretFunc != nil {
		return m.GetSecretFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorRepository) UpsertPendingSecret(ctx context.Context, secret *models.TwoFactorSecret) error {
	if m.UpsertPendingSecretFunc != nil {
		return m.UpsertPendingSecretFunc(ctx, secret)
	}
	return nil
}

func (m *MockTwoFactorRepository) EnableSecret(ctx context.Context, userID string, step int64, codeHashes []string) error {
	if m.EnableSecretFunc != nil {
		return m.EnableSecretFunc(ctx, userID, step, codeHashes)
	}
	return nil
}

func (m *MockTwoFactorRepository) AdvanceLastUsedStep(ctx context.Context, userID string, step int64) (bool, error) {
	if m.AdvanceLastUsedStepFunc != nil {
		return m.AdvanceLastUsedStepFunc(ctx, userID, step)
	}
	return true, nil
}

func (m *MockTwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, userID, codeHash)
	}
	return false, nil
}

func (m *MockTwoFactorRepository) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	if m.ReplaceBackupCodesFunc != nil {
		return m.ReplaceBackupCodesFunc(ctx, userID, codeHashes)
	}
	return nil
}

func (m *MockTwoFactorRepository) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	if m.CountUnusedBackupCodesFunc != nil {
		return m.CountUnusedBackupCodesFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockTwoFactorRepository) Delete(ctx context.Context, userID string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc           func(ctx context.Context, session *models.Session) error
	ListActiveByUserFunc func(ctx context.Context, userID string) ([]*models.Session, error)
	TouchFunc            func(ctx context.Context, userID, id string) error
	DeleteFunc           func(ctx context.Context, userID, id string) (bool, error)
	DeleteAllExceptFunc  func(ctx context.Context, userID, keepID string) (int64, error)
	DeleteAllByUserFunc  func(ctx context.Context, userID string) (int64, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListActiveByUserFunc != nil {
		return m.ListActiveByUserFunc(ctx, userID)
	}
	return []*models.Session{}, nil
}

func (m *MockSessionRepository) Touch(ctx context.Context, userID, id string) error {
	if m.TouchFunc != nil {
		return m.TouchFunc(ctx, userID, id)
	}
	return nil
}

func (m *MockSessionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, userID, id)
	}
	return false, nil
}

func (m *MockSessionRepository) DeleteAllExcept(ctx context.Context, userID, keepID string) (int64, error) {
	if m.DeleteAllExceptFunc != nil {
		return m.DeleteAllExceptFunc(ctx, userID, keepID)
	}
	return 0, nil
}

func (m *MockSessionRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	if m.DeleteAllByUserFunc != nil {
		return m.DeleteAllByUserFunc(ctx, userID)
	}
	return 0, nil
}

// MockActionLogRepository implements ActionLogRepository for testing
type MockActionLogRepository struct {
	RecordFunc             func(ctx context.Context, entry *models.ActionLogEntry) error
	GetLastSuccessTimeFunc func(ctx context.Context, email string, action models.Action) (*time.Time, error)

	Entries []*models.ActionLogEntry
}

func (m *MockActionLogRepository) Record(ctx context.Context, entry *models.ActionLogEntry) error {
	m.Entries = append(m.Entries, entry)
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, entry)
	}
	return nil
}

func (m *MockActionLogRepository) GetLastSuccessTime(ctx context.Context, email string, action models.Action) (*time.Time, error) {
	if m.GetLastSuccessTimeFunc != nil {
		return m.GetLastSuccessTimeFunc(ctx, email, action)
	}
	return nil, nil
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc         func(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHashFunc func(ctx context.Context, id, passwordHash string) error
	MarkEmailVerifiedFunc  func(ctx context.Context, id string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, id)
	}
	return nil
}

// MockRecoveryTokenRepository implements RecoveryTokenRepository for testing
type MockRecoveryTokenRepository struct {
	CreateFunc                 func(ctx context.Context, token *models.RecoveryToken) error
	GetByHashFunc              func(ctx context.Context, purpose models.RecoveryPurpose, tokenHash string) (*models.RecoveryToken, error)
	MarkAsUsedFunc             func(ctx context.Context, id string) error
	DeleteByUserAndPurposeFunc func(ctx context.Context, userID string, purpose models.RecoveryPurpose) error
}

func (m *MockRecoveryTokenRepository) Create(ctx context.Context, token *models.RecoveryToken) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	token.ID = "token_123"
	return nil
}

func (m *MockRecoveryTokenRepository) GetByHash(ctx context.Context, purpose models.RecoveryPurpose, tokenHash string) (*models.RecoveryToken, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, purpose, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockRecoveryTokenRepository) MarkAsUsed(ctx context.Context, id string) error {
	if m.MarkAsUsedFunc != nil {
		return m.MarkAsUsedFunc(ctx, id)
	}
	return nil
}

func (m *MockRecoveryTokenRepository) DeleteByUserAndPurpose(ctx context.Context, userID string, purpose models.RecoveryPurpose) error {
	if m.DeleteByUserAndPurposeFunc != nil {
		return m.DeleteByUserAndPurposeFunc(ctx, userID, purpose)
	}
	return nil
}

// MockIdentityProvider implements IdentityProvider for testing
type MockIdentityProvider struct {
	AuthenticateFunc         func(ctx context.Context, email, password string) (*models.User, error)
	FindUserByEmailFunc      func(ctx context.Context, email string) (*models.User, error)
	VerifyPasswordFunc       func(ctx context.Context, userID, password string) error
	SetPasswordFunc          func(ctx context.Context, userID, newPassword string) error
	SetPasswordHashFunc      func(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerifiedFunc    func(ctx context.Context, userID string) error
	IssueRecoveryTokenFunc   func(ctx context.Context, user *models.User, purpose models.RecoveryPurpose) (string, time.Time, error)
	PeekRecoveryTokenFunc    func(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error)
	ConsumeRecoveryTokenFunc func(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error)
}

func (m *MockIdentityProvider) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, email, password)
	}
	return nil, models.ErrAuthentication
}

func (m *MockIdentityProvider) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.FindUserByEmailFunc != nil {
		return m.FindUserByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockIdentityProvider) VerifyPassword(ctx context.Context, userID, password string) error {
	if m.VerifyPasswordFunc != nil {
		return m.VerifyPasswordFunc(ctx, userID, password)
	}
	return nil
}

func (m *MockIdentityProvider) SetPassword(ctx context.Context, userID, newPassword string) error {
	if m.SetPasswordFunc != nil {
		return m.SetPasswordFunc(ctx, userID, newPassword)
	}
	return nil
}

func (m *MockIdentityProvider) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	if m.SetPasswordHashFunc != nil {
		return m.SetPasswordHashFunc(ctx, userID, passwordHash)
	}
	return nil
}

func (m *MockIdentityProvider) MarkEmailVerified(ctx context.Context, userID string) error {
	if m.MarkEmailVerifiedFunc != nil {
		return m.MarkEmailVerifiedFunc(ctx, userID)
	}
	return nil
}

func (m *MockIdentityProvider) IssueRecoveryToken(ctx context.Context, user *models.User, purpose models.RecoveryPurpose) (string, time.Time, error) {
	if m.IssueRecoveryTokenFunc != nil {
		return m.IssueRecoveryTokenFunc(ctx, user, purpose)
	}
	return "plain-token", time.Now().Add(time.Hour), nil
}

func (m *MockIdentityProvider) PeekRecoveryToken(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error) {
	if m.PeekRecoveryTokenFunc != nil {
		return m.PeekRecoveryTokenFunc(ctx, purpose, token)
	}
	return nil, models.ErrInvalidRecoveryToken
}

func (m *MockIdentityProvider) ConsumeRecoveryToken(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error) {
	if m.ConsumeRecoveryTokenFunc != nil {
		return m.ConsumeRecoveryTokenFunc(ctx, purpose, token)
	}
	return nil, models.ErrInvalidRecoveryToken
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendVerificationEmailFunc  func(ctx context.Context, email, token string, expiresAt time.Time) error
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error

	Sent []string
}

func (m *MockEmailService) SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.Sent = append(m.Sent, email)
	if m.SendVerificationEmailFunc != nil {
		return m.SendVerificationEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.Sent = append(m.Sent, email)
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	return nil
}

// MockSESClient implements SESClient for testing
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{}, nil
}
