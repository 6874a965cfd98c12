package handlers

import (
	"context"

	"github.com/BradenHooton/portalguard/internal/models"
)

// MockTwoFactorManager implements TwoFactorManager for testing
type MockTwoFactorManager struct {
	SetupFunc                 func(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	EnableFunc                func(ctx context.Context, userID, code string) ([]string, error)
	VerifyAnyFunc             func(ctx context.Context, userID, code string) (string, error)
	VerifyBackupCodeFunc      func(ctx context.Context, userID, code string) error
	DisableFunc               func(ctx context.Context, userID, code string) error
	RegenerateBackupCodesFunc func(ctx context.Context, userID, code string) ([]string, error)
	StatusFunc                func(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
	IsEnabledFunc             func(ctx context.Context, userID string) (bool, error)
}

func (m *MockTwoFactorManager) Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	if m.SetupFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.SetupFunc(ctx, userID, email)
}

func (m *MockTwoFactorManager) Enable(ctx context.Context, userID, code string) ([]string, error) {
	if m.EnableFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.EnableFunc(ctx, userID, code)
}

func (m *MockTwoFactorManager) VerifyAny(ctx context.Context, userID, code string) (string, error) {
	if m.VerifyAnyFunc == nil {
		return "", models.ErrInvalidCode
	}
	return m.VerifyAnyFunc(ctx, userID, code)
}

func (m *MockTwoFactorManager) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if m.VerifyBackupCodeFunc == nil {
		return models.ErrInvalidCode
	}
	return m.VerifyBackupCodeFunc(ctx, userID, code)
}

func (m *MockTwoFactorManager) Disable(ctx context.Context, userID, code string) error {
	if m.DisableFunc == nil {
		return models.ErrInvalidCode
	}
	return m.DisableFunc(ctx, userID, code)
}

func (m *MockTwoFactorManager) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if m.RegenerateBackupCodesFunc == nil {
		return nil, models.ErrInvalidCode
	}
	return m.RegenerateBackupCodesFunc(ctx, userID, code)
}

func (m *MockTwoFactorManager) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	if m.StatusFunc == nil {
		return &models.TwoFactorStatus{State: models.TwoFactorNotConfigured}, nil
	}
	return m.StatusFunc(ctx, userID)
}

func (m *MockTwoFactorManager) IsEnabled(ctx context.Context, userID string) (bool, error) {
	if m.IsEnabledFunc == nil {
		return false, nil
	}
	return m.IsEnabledFunc(ctx, userID)
}

// MockSessionManager implements SessionManager and SessionRegistrar for testing
type MockSessionManager struct {
	RegisterFunc        func(ctx context.Context, userID, deviceInfo, ipAddress string) (*models.Session, error)
	ListSessionsFunc    func(ctx context.Context, userID string) ([]*models.Session, error)
	RevokeSessionFunc   func(ctx context.Context, userID, sessionID string) error
	RevokeAllOthersFunc func(ctx context.Context, userID, currentSessionID string) (int64, error)
}

func (m *MockSessionManager) Register(ctx context.Context, userID, deviceInfo, ipAddress string) (*models.Session, error) {
	if m.RegisterFunc == nil {
		return &models.Session{ID: "session-1", UserID: userID, DeviceInfo: deviceInfo, IPAddress: ipAddress}, nil
	}
	return m.RegisterFunc(ctx, userID, deviceInfo, ipAddress)
}

func (m *MockSessionManager) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListSessionsFunc == nil {
		return nil, nil
	}
	return m.ListSessionsFunc(ctx, userID)
}

func (m *MockSessionManager) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if m.RevokeSessionFunc == nil {
		return nil
	}
	return m.RevokeSessionFunc(ctx, userID, sessionID)
}

func (m *MockSessionManager) RevokeAllOthers(ctx context.Context, userID, currentSessionID string) (int64, error) {
	if m.RevokeAllOthersFunc == nil {
		return 0, nil
	}
	return m.RevokeAllOthersFunc(ctx, userID, currentSessionID)
}

// MockPasswordResetFlows implements PasswordResetFlows for testing
type MockPasswordResetFlows struct {
	RequestResetFunc   func(ctx context.Context, email, ipAddress string) *models.ActionResult
	ValidateTokenFunc  func(ctx context.Context, token string) bool
	UpdatePasswordFunc func(ctx context.Context, token, newPassword, ipAddress string) *models.ActionResult
	ChangePasswordFunc func(ctx context.Context, principal *models.Principal, currentPassword, newPassword, ipAddress string) *models.ActionResult
}

func (m *MockPasswordResetFlows) RequestReset(ctx context.Context, email, ipAddress string) *models.ActionResult {
	if m.RequestResetFunc == nil {
		return &models.ActionResult{Success: true, Message: "sent"}
	}
	return m.RequestResetFunc(ctx, email, ipAddress)
}

func (m *MockPasswordResetFlows) ValidateToken(ctx context.Context, token string) bool {
	if m.ValidateTokenFunc == nil {
		return false
	}
	return m.ValidateTokenFunc(ctx, token)
}

func (m *MockPasswordResetFlows) UpdatePassword(ctx context.Context, token, newPassword, ipAddress string) *models.ActionResult {
	if m.UpdatePasswordFunc == nil {
		return &models.ActionResult{Success: true, Message: "updated"}
	}
	return m.UpdatePasswordFunc(ctx, token, newPassword, ipAddress)
}

func (m *MockPasswordResetFlows) ChangePassword(ctx context.Context, principal *models.Principal, currentPassword, newPassword, ipAddress string) *models.ActionResult {
	if m.ChangePasswordFunc == nil {
		return &models.ActionResult{Success: true, Message: "changed"}
	}
	return m.ChangePasswordFunc(ctx, principal, currentPassword, newPassword, ipAddress)
}

// MockEmailVerificationFlows implements EmailVerificationFlows for testing
type MockEmailVerificationFlows struct {
	ResendVerificationFunc func(ctx context.Context, email, ipAddress string) *models.ActionResult
	VerifyEmailFunc        func(ctx context.Context, token string) *models.ActionResult
}

func (m *MockEmailVerificationFlows) ResendVerification(ctx context.Context, email, ipAddress string) *models.ActionResult {
	if m.ResendVerificationFunc == nil {
		return &models.ActionResult{Success: true, Message: "sent"}
	}
	return m.ResendVerificationFunc(ctx, email, ipAddress)
}

func (m *MockEmailVerificationFlows) VerifyEmail(ctx context.Context, token string) *models.ActionResult {
	if m.VerifyEmailFunc == nil {
		return &models.ActionResult{Success: false, Message: "invalid"}
	}
	return m.VerifyEmailFunc(ctx, token)
}

// MockAuthenticator implements Authenticator for testing
type MockAuthenticator struct {
	AuthenticateFunc func(ctx context.Context, email, password string) (*models.User, error)
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	if m.AuthenticateFunc == nil {
		return nil, models.ErrAuthentication
	}
	return m.AuthenticateFunc(ctx, email, password)
}
