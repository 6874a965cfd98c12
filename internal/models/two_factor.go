package models

import (
	"time"
)

// TwoFactorState is the lifecycle state of a user's second factor
type TwoFactorState string

const (
	TwoFactorNotConfigured TwoFactorState = "not_configured"
	TwoFactorPendingSetup  TwoFactorState = "pending_setup"
	TwoFactorEnabled       TwoFactorState = "enabled"
)

// TwoFactorSecret is the single TOTP secret record of a user
type TwoFactorSecret struct {
	UserID          string
	EncryptedSecret []byte // AES-256-GCM encrypted TOTP secret
	Nonce           []byte // GCM nonce (12 bytes)

	// Backup codes generated at setup, encrypted until the secret is enabled
	PendingBackupCodes      []byte
	PendingBackupCodesNonce []byte

	Enabled      bool
	LastUsedStep int64 // last accepted TOTP time step, for replay prevention
	CreatedAt    time.Time
	EnabledAt    *time.Time
}

// State derives the lifecycle state from the record. A nil record is NotConfigured.
func (s *TwoFactorSecret) State() TwoFactorState {
	switch {
	case s == nil:
		return TwoFactorNotConfigured
	case s.Enabled:
		return TwoFactorEnabled
	default:
		return TwoFactorPendingSetup
	}
}

// BackupCode is one single-use recovery credential
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	UsedAt    *time.Time // nil = unused
	CreatedAt time.Time
}

// TwoFactorSetup is returned once by setup; the plaintext backup codes are
// never observable again.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	QRCodeImage     string // PNG data URL
	BackupCodes     []string
}

// TwoFactorStatus summarizes a user's second factor
type TwoFactorStatus struct {
	State                TwoFactorState
	RemainingBackupCodes int
	EnabledAt            *time.Time
}

// TwoFactorVerificationClaim proves a session passed second-factor
// verification. It lives in a signed cookie, never in the store.
type TwoFactorVerificationClaim struct {
	UserID     string
	SessionID  string
	VerifiedAt time.Time
	ExpiresAt  time.Time
}

// Satisfies reports whether the claim covers the given principal at time now
func (c *TwoFactorVerificationClaim) Satisfies(userID, sessionID string, now time.Time) bool {
	if c == nil {
		return false
	}
	return c.UserID == userID && c.SessionID == sessionID && now.Before(c.ExpiresAt)
}
