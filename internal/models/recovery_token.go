package models

import (
	"time"
)

// RecoveryPurpose scopes a recovery token to one flow
type RecoveryPurpose string

const (
	PurposePasswordReset     RecoveryPurpose = "password_reset"
	PurposeEmailVerification RecoveryPurpose = "email_verification"
)

// Recovery token lifetimes
const (
	PasswordResetTokenTTL     = time.Hour
	EmailVerificationTokenTTL = 24 * time.Hour
)

// RecoveryToken is a single-use emailed token. Only its SHA-256 hash is stored.
type RecoveryToken struct {
	ID        string
	UserID    string
	Purpose   RecoveryPurpose
	TokenHash string
	Email     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// IsExpired checks if the token has expired
func (t *RecoveryToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsed checks if the token has already been used
func (t *RecoveryToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsValid checks if the token is still valid (not expired and not used)
func (t *RecoveryToken) IsValid() bool {
	return !t.IsExpired() && !t.IsUsed()
}
