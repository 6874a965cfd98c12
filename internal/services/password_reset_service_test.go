package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/auth"
	"github.com/BradenHooton/portalguard/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resetFixture struct {
	svc      *PasswordResetService
	gate     *ActionGate
	idp      *MockIdentityProvider
	email    *MockEmailService
	sessions *MockSessionRepository
	logs     *MockActionLogRepository
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()
	counter, _ := newTestCounter(t)
	logs := &MockActionLogRepository{}
	gate := NewActionGate(counter, logs, nil, testLogger())

	f := &resetFixture{
		gate: gate,
		idp: &MockIdentityProvider{
			FindUserByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
				return &models.User{ID: "user-1", Email: email}, nil
			},
		},
		email:    &MockEmailService{},
		sessions: &MockSessionRepository{},
		logs:     logs,
	}
	sessionSvc := NewSessionService(f.sessions, nil, testLogger(), time.Hour)
	f.svc = NewPasswordResetService(gate, f.idp, f.email, sessionSvc,
		logger.NewAuditLogger(testLogger()), logger.NewErrorSink(testLogger()), 15*time.Minute)
	return f
}

func TestPasswordReset_RequestSendsEmail(t *testing.T) {
	f := newResetFixture(t)

	result := f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.1")

	assert.True(t, result.Success)
	assert.False(t, result.RateLimited)
	assert.Equal(t, msgResetRequested, result.Message)
	assert.Equal(t, []string{"user@example.com"}, f.email.Sent)

	require.Len(t, f.logs.Entries, 1)
	assert.True(t, f.logs.Entries[0].Success)
	assert.Equal(t, models.ActionPasswordReset, f.logs.Entries[0].Action)
}

func TestPasswordReset_SecondRequestOneMinuteLaterIsRateLimited(t *testing.T) {
	f := newResetFixture(t)
	counter, mr := newTestCounter(t)
	f.gate.counter = counter

	first := time.Unix(1_700_000_000, 0)
	now := first
	f.gate.now = func() time.Time { return now }
	ctx := context.Background()

	result := f.svc.RequestReset(ctx, "user@example.com", "203.0.113.1")
	require.True(t, result.Success)

	mr.FastForward(time.Minute)
	now = first.Add(time.Minute)

	result = f.svc.RequestReset(ctx, "user@example.com", "203.0.113.1")
	assert.False(t, result.Success)
	assert.True(t, result.RateLimited)
	require.NotNil(t, result.NextAllowedTime)
	assert.WithinDuration(t, first.Add(15*time.Minute), *result.NextAllowedTime, time.Second)

	assert.Len(t, f.email.Sent, 1, "rate limited request must not send")
	require.Len(t, f.logs.Entries, 2)
	assert.False(t, f.logs.Entries[1].Success)
	assert.Equal(t, "rate_limited", *f.logs.Entries[1].FailureReason)
}

func TestPasswordReset_UnknownEmailLooksIdentical(t *testing.T) {
	f := newResetFixture(t)
	f.idp.FindUserByEmailFunc = func(ctx context.Context, email string) (*models.User, error) {
		return nil, models.ErrNotFound
	}

	result := f.svc.RequestReset(context.Background(), "ghost@example.com", "203.0.113.1")

	assert.True(t, result.Success)
	assert.Equal(t, msgResetRequested, result.Message)
	assert.Empty(t, f.email.Sent)

	// unknown emails are gated too, otherwise the limit would leak existence
	result = f.svc.RequestReset(context.Background(), "ghost@example.com", "203.0.113.1")
	assert.True(t, result.RateLimited)
}

func TestPasswordReset_SendFailureReleasesWindow(t *testing.T) {
	f := newResetFixture(t)
	fail := true
	f.email.SendPasswordResetEmailFunc = func(ctx context.Context, email, token string, expiresAt time.Time) error {
		if fail {
			return errors.New("ses throttled")
		}
		return nil
	}

	result := f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.1")
	assert.False(t, result.Success)
	assert.False(t, result.RateLimited)
	assert.Equal(t, msgTryLater, result.Message)

	fail = false
	result = f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.1")
	assert.True(t, result.Success, "a failed attempt must not gate the next one")
}

func TestPasswordReset_GateUnavailable(t *testing.T) {
	f := newResetFixture(t)
	f.gate.counter = nil
	f.logs.GetLastSuccessTimeFunc = func(ctx context.Context, email string, action models.Action) (*time.Time, error) {
		return nil, models.ErrTransient
	}

	result := f.svc.RequestReset(context.Background(), "user@example.com", "203.0.113.1")
	assert.False(t, result.Success)
	assert.Equal(t, msgTryLater, result.Message)
	assert.Empty(t, f.email.Sent)
}

func TestPasswordReset_UpdatePasswordReportsAllFailingRules(t *testing.T) {
	f := newResetFixture(t)
	f.idp.ConsumeRecoveryTokenFunc = func(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error) {
		t.Fatal("weak password must not consume the token")
		return nil, nil
	}

	result := f.svc.UpdatePassword(context.Background(), "token", "abc", "203.0.113.1")

	assert.False(t, result.Success)
	assert.ElementsMatch(t, []string{auth.RuleTooShort, auth.RuleNoUpper, auth.RuleNoDigit, auth.RuleNoSymbol}, result.Errors)
}

func TestPasswordReset_UpdatePassword(t *testing.T) {
	f := newResetFixture(t)
	var consumed string
	f.idp.ConsumeRecoveryTokenFunc = func(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error) {
		assert.Equal(t, models.PurposePasswordReset, purpose)
		consumed = token
		return &models.RecoveryToken{ID: "t1", UserID: "user-1", Email: "user@example.com"}, nil
	}
	var setFor, storedHash string
	f.idp.SetPasswordHashFunc = func(ctx context.Context, userID, passwordHash string) error {
		setFor = userID
		storedHash = passwordHash
		return nil
	}
	var revokedAll string
	f.sessions.DeleteAllByUserFunc = func(ctx context.Context, userID string) (int64, error) {
		revokedAll = userID
		return 2, nil
	}

	result := f.svc.UpdatePassword(context.Background(), "reset-token", "N3w-Secure!pass", "203.0.113.1")

	assert.True(t, result.Success)
	assert.Equal(t, "reset-token", consumed)
	assert.Equal(t, "user-1", setFor)
	assert.NoError(t, auth.ComparePassword(storedHash, "N3w-Secure!pass"))
	assert.Equal(t, "user-1", revokedAll)
}

func TestPasswordReset_UpdatePasswordHashFailureKeepsToken(t *testing.T) {
	f := newResetFixture(t)
	f.svc.hash = func(password string) (string, error) {
		return "", errors.New("entropy exhausted")
	}
	f.idp.ConsumeRecoveryTokenFunc = func(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error) {
		t.Fatal("a hashing failure must not consume the token")
		return nil, nil
	}

	result := f.svc.UpdatePassword(context.Background(), "reset-token", "N3w-Secure!pass", "203.0.113.1")

	assert.False(t, result.Success)
	assert.Equal(t, msgTryLater, result.Message)
}

func TestPasswordReset_UpdatePasswordLongPasswordWithLocalProvider(t *testing.T) {
	var storedHash string
	users := &MockUserRepository{
		UpdatePasswordHashFunc: func(ctx context.Context, id, passwordHash string) error {
			storedHash = passwordHash
			return nil
		},
	}
	tokens := &MockRecoveryTokenRepository{
		GetByHashFunc: func(ctx context.Context, purpose models.RecoveryPurpose, tokenHash string) (*models.RecoveryToken, error) {
			return &models.RecoveryToken{
				ID:        "t1",
				UserID:    "user-1",
				Email:     "user@example.com",
				Purpose:   purpose,
				ExpiresAt: time.Now().Add(time.Hour),
			}, nil
		},
	}
	f := newResetFixture(t)
	f.svc.idp = NewLocalIdentityProvider(users, tokens, testLogger())

	password := "Aa1!" + strings.Repeat("x", 96)
	result := f.svc.UpdatePassword(context.Background(), "reset-token", password, "203.0.113.1")

	require.True(t, result.Success, result.Message)
	assert.NoError(t, auth.ComparePassword(storedHash, password))
}

func TestPasswordReset_UpdatePasswordInvalidToken(t *testing.T) {
	f := newResetFixture(t)

	result := f.svc.UpdatePassword(context.Background(), "bad", "N3w-Secure!pass", "203.0.113.1")

	assert.False(t, result.Success)
	assert.Equal(t, msgInvalidResetLink, result.Message)
}

func TestPasswordReset_ValidateToken(t *testing.T) {
	f := newResetFixture(t)
	f.idp.PeekRecoveryTokenFunc = func(ctx context.Context, purpose models.RecoveryPurpose, token string) (*models.RecoveryToken, error) {
		if token == "good" {
			return &models.RecoveryToken{ID: "t1"}, nil
		}
		return nil, models.ErrInvalidRecoveryToken
	}

	assert.True(t, f.svc.ValidateToken(context.Background(), "good"))
	assert.False(t, f.svc.ValidateToken(context.Background(), "bad"))
}

func TestPasswordReset_ChangePasswordRevokesOtherSessions(t *testing.T) {
	f := newResetFixture(t)
	principal := &models.Principal{UserID: "user-1", Email: "user@example.com", SessionID: "2f1b8c2e-7a7e-4c55-9a1d-1e2b3c4d5e6f"}

	var kept string
	f.sessions.DeleteAllExceptFunc = func(ctx context.Context, userID, keepID string) (int64, error) {
		kept = keepID
		return 1, nil
	}

	result := f.svc.ChangePassword(context.Background(), principal, "Old-Secure!pass1", "N3w-Secure!pass", "203.0.113.1")

	assert.True(t, result.Success)
	assert.Equal(t, principal.SessionID, kept)
}

func TestPasswordReset_ChangePasswordWrongCurrent(t *testing.T) {
	f := newResetFixture(t)
	f.idp.VerifyPasswordFunc = func(ctx context.Context, userID, password string) error {
		return models.ErrInvalidCurrentPassword
	}
	f.idp.SetPasswordFunc = func(ctx context.Context, userID, newPassword string) error {
		t.Fatal("password must not change")
		return nil
	}
	principal := &models.Principal{UserID: "user-1", SessionID: "s"}

	result := f.svc.ChangePassword(context.Background(), principal, "wrong", "N3w-Secure!pass", "203.0.113.1")

	assert.False(t, result.Success)
	assert.Equal(t, msgWrongPassword, result.Message)
}

func TestPasswordReset_ChangePasswordMustDiffer(t *testing.T) {
	f := newResetFixture(t)
	principal := &models.Principal{UserID: "user-1", SessionID: "s"}

	result := f.svc.ChangePassword(context.Background(), principal, "N3w-Secure!pass", "N3w-Secure!pass", "203.0.113.1")

	assert.False(t, result.Success)
	assert.Equal(t, []string{ruleSamePassword}, result.Errors)
}
