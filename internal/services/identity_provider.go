package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/auth"
)

// IdentityProvider owns accounts, password storage and the single-use
// tokens mailed by the recovery flows
type IdentityProvider interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	VerifyPassword(ctx context.Context, userID, password string) error
	SetPassword(ctx context.Context, userID, newPassword string) error
	SetPasswordHash(ctx context.Context, userID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	IssueRecoveryToken(ctx context.Context, user *models.User, purpose models.RecoveryPurpose) (string, time.Time, error)
	PeekRecoveryToken(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error)
	ConsumeRecoveryToken(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error)
}

// UserRepository defines the account operations of the local provider
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

// RecoveryTokenRepository defines the token operations of the local provider
type RecoveryTokenRepository interface {
	Create(ctx context.Context, token *models.RecoveryToken) error
	GetByHash(ctx context.Context, purpose models.RecoveryPurpose, tokenHash string) (*models.RecoveryToken, error)
	MarkAsUsed(ctx context.Context, id string) error
	DeleteByUserAndPurpose(ctx context.Context, userID string, purpose models.RecoveryPurpose) error
}

// dummyPasswordHash is compared against when no account matches, so a
// failed login takes as long as a wrong password
var dummyPasswordHash, _ = auth.HashPassword("portalguard-timing-equalizer")

// LocalIdentityProvider is an IdentityProvider backed by the users and
// recovery_tokens tables
type LocalIdentityProvider struct {
	users  UserRepository
	tokens RecoveryTokenRepository
	logger *slog.Logger
}

func NewLocalIdentityProvider(users UserRepository, tokens RecoveryTokenRepository, logger *slog.Logger) *LocalIdentityProvider {
	return &LocalIdentityProvider{users: users, tokens: tokens, logger: logger}
}

func (p *LocalIdentityProvider) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = auth.ComparePassword(dummyPasswordHash, password)
			return nil, models.ErrAuthentication
		}
		return nil, storeFailure(p.logger, "failed to load user", err)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, models.ErrAuthentication
	}
	return user, nil
}

// FindUserByEmail returns models.ErrNotFound when no account matches
func (p *LocalIdentityProvider) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := p.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, storeFailure(p.logger, "failed to load user", err)
	}
	return user, nil
}

func (p *LocalIdentityProvider) VerifyPassword(ctx context.Context, userID, password string) error {
	user, err := p.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidCurrentPassword
		}
		return storeFailure(p.logger, "failed to load user", err)
	}

	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return models.ErrInvalidCurrentPassword
	}
	return nil
}

func (p *LocalIdentityProvider) SetPassword(ctx context.Context, userID, newPassword string) error {
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		p.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}
	return p.SetPasswordHash(ctx, userID, hash)
}

// SetPasswordHash stores a hash produced by auth.HashPassword
func (p *LocalIdentityProvider) SetPasswordHash(ctx context.Context, userID, passwordHash string) error {
	if err := p.users.UpdatePasswordHash(ctx, userID, passwordHash); err != nil {
		return storeFailure(p.logger, "failed to update password", err)
	}
	return nil
}

func (p *LocalIdentityProvider) MarkEmailVerified(ctx context.Context, userID string) error {
	if err := p.users.MarkEmailVerified(ctx, userID); err != nil {
		return storeFailure(p.logger, "failed to mark email verified", err)
	}
	return nil
}

// IssueRecoveryToken replaces any outstanding token of the same purpose and
// returns the plaintext token, which is never stored
func (p *LocalIdentityProvider) IssueRecoveryToken(ctx context.Context, user *models.User, purpose models.RecoveryPurpose) (string, time.Time, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token: %w", err)
	}
	plainToken := base64.RawURLEncoding.EncodeToString(tokenBytes)

	ttl := models.PasswordResetTokenTTL
	if purpose == models.PurposeEmailVerification {
		ttl = models.EmailVerificationTokenTTL
	}

	if err := p.tokens.DeleteByUserAndPurpose(ctx, user.ID, purpose); err != nil {
		return "", time.Time{}, storeFailure(p.logger, "failed to delete old recovery tokens", err)
	}

	token := &models.RecoveryToken{
		UserID:    user.ID,
		Purpose:   purpose,
		TokenHash: hashRecoveryToken(plainToken),
		Email:     user.Email,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := p.tokens.Create(ctx, token); err != nil {
		return "", time.Time{}, storeFailure(p.logger, "failed to create recovery token", err)
	}

	return plainToken, token.ExpiresAt, nil
}

// PeekRecoveryToken checks a token without consuming it
func (p *LocalIdentityProvider) PeekRecoveryToken(ctx context.Context, purpose models.RecoveryPurpose, plainToken string) (*models.RecoveryToken, error) {
	if plainToken == "" {
		return nil, models.ErrInvalidRecoveryToken
	}

	token, err := p.tokens.GetByHash(ctx, purpose, hashRecoveryToken(plainToken))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidRecoveryToken
		}
		return nil, storeFailure(p.logger, "failed to load recovery token", err)
	}

	if !token.IsValid() {
		return nil, models.ErrInvalidRecoveryToken
	}
	return token, nil
}

// ConsumeRecoveryToken validates and marks a token used. Concurrent
// consumers of one token see exactly one success.
func (p *LocalIdentityProvider) ConsumeRecoveryToken(ctx context.Context, purpose models.RecoveryPurpose, plainToken string) (*models.RecoveryToken, error) {
	token, err := p.PeekRecoveryToken(ctx, purpose, plainToken)
	if err != nil {
		return nil, err
	}

	if err := p.tokens.MarkAsUsed(ctx, token.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidRecoveryToken
		}
		return nil, storeFailure(p.logger, "failed to consume recovery token", err)
	}
	return token, nil
}

func hashRecoveryToken(plainToken string) string {
	hash := sha256.Sum256([]byte(plainToken))
	return hex.EncodeToString(hash[:])
}
