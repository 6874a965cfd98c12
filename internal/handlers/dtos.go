package handlers

import "time"

// Two-factor DTOs

// TwoFactorSetupResponse is shown once; the backup codes cannot be
// retrieved again
type TwoFactorSetupResponse struct {
	Secret      string   `json:"secret"`      // Base32 secret for manual entry
	QRCodeURL   string   `json:"qrCodeUrl"`   // otpauth:// provisioning URI
	QRCodeImage string   `json:"qrCodeImage"` // PNG data URL
	BackupCodes []string `json:"backupCodes"`
}

// TwoFactorCodeRequest carries a TOTP code
type TwoFactorCodeRequest struct {
	Token string `json:"token" validate:"required,max=32"`
}

// BackupCodeRequest carries a backup code
type BackupCodeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type TwoFactorEnableResponse struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	BackupCodes []string `json:"backupCodes"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

type TwoFactorStatusResponse struct {
	State                string     `json:"state"`
	Enabled              bool       `json:"enabled"`
	RemainingBackupCodes int        `json:"remainingBackupCodes"`
	EnabledAt            *time.Time `json:"enabledAt,omitempty"`
}

// MessageResponse is a generic success envelope
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Session DTOs

type SessionResponse struct {
	ID           string    `json:"id"`
	DeviceInfo   string    `json:"deviceInfo"`
	IPAddress    string    `json:"ipAddress"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Current      bool      `json:"current"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type RevokeOthersResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Revoked int64  `json:"revoked"`
}

// Recovery DTOs

type EmailRequest struct {
	Email string `json:"email" validate:"required,email,max=254"`
}

type ResetTokenRequest struct {
	Token string `json:"token" validate:"required,max=128"`
}

type ResetTokenResponse struct {
	Valid bool `json:"valid"`
}

// UpdatePasswordRequest leaves password strength to the service, which
// reports every failing rule
type UpdatePasswordRequest struct {
	Token    string `json:"token" validate:"required,max=128"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

// CSRF DTOs

type CSRFTokenResponse struct {
	Token string `json:"token"`
}

// Login DTOs

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResponse struct {
	AccessToken       string    `json:"accessToken"`
	ExpiresAt         time.Time `json:"expiresAt"`
	SessionID         string    `json:"sessionId"`
	TwoFactorRequired bool      `json:"twoFactorRequired"`
	VerifyURL         string    `json:"verifyUrl,omitempty"`
}
