package services

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/metrics"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryTwoFactorStore backs a MockTwoFactorRepository with maps, honoring
// the same conditional-update rules as the SQL repository
type memoryTwoFactorStore struct {
	mu      sync.Mutex
	secrets map[string]*models.TwoFactorSecret
	codes   map[string]map[string]bool // user -> hash -> used
}

func newMemoryTwoFactorRepo() (*MockTwoFactorRepository, *memoryTwoFactorStore) {
	st := &memoryTwoFactorStore{
		secrets: map[string]*models.TwoFactorSecret{},
		codes:   map[string]map[string]bool{},
	}

	repo := &MockTwoFactorRepository{
		GetSecretFunc: func(ctx context.Context, userID string) (*models.TwoFactorSecret, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			s, ok := st.secrets[userID]
			if !ok {
				return nil, models.ErrNotFound
			}
			cp := *s
			return &cp, nil
		},
		UpsertPendingSecretFunc: func(ctx context.Context, secret *models.TwoFactorSecret) error {
			st.mu.Lock()
			defer st.mu.Unlock()
			if s, ok := st.secrets[secret.UserID]; ok && s.Enabled {
				return models.ErrTwoFactorAlreadyEnabled
			}
			cp := *secret
			cp.CreatedAt = time.Now()
			st.secrets[secret.UserID] = &cp
			return nil
		},
		EnableSecretFunc: func(ctx context.Context, userID string, step int64, hashes []string) error {
			st.mu.Lock()
			defer st.mu.Unlock()
			s, ok := st.secrets[userID]
			if !ok || s.Enabled || s.LastUsedStep >= step {
				return models.ErrNoPendingSetup
			}
			now := time.Now()
			s.Enabled = true
			s.EnabledAt = &now
			s.LastUsedStep = step
			s.PendingBackupCodes, s.PendingBackupCodesNonce = nil, nil
			st.codes[userID] = map[string]bool{}
			for _, h := range hashes {
				st.codes[userID][h] = false
			}
			return nil
		},
		AdvanceLastUsedStepFunc: func(ctx context.Context, userID string, step int64) (bool, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			s, ok := st.secrets[userID]
			if !ok || !s.Enabled || s.LastUsedStep >= step {
				return false, nil
			}
			s.LastUsedStep = step
			return true, nil
		},
		ConsumeBackupCodeFunc: func(ctx context.Context, userID, hash string) (bool, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			used, ok := st.codes[userID][hash]
			if !ok || used {
				return false, nil
			}
			st.codes[userID][hash] = true
			return true, nil
		},
		ReplaceBackupCodesFunc: func(ctx context.Context, userID string, hashes []string) error {
			st.mu.Lock()
			defer st.mu.Unlock()
			if s, ok := st.secrets[userID]; !ok || !s.Enabled {
				return models.ErrTwoFactorNotEnabled
			}
			st.codes[userID] = map[string]bool{}
			for _, h := range hashes {
				st.codes[userID][h] = false
			}
			return nil
		},
		CountUnusedBackupCodesFunc: func(ctx context.Context, userID string) (int, error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			n := 0
			for _, used := range st.codes[userID] {
				if !used {
					n++
				}
			}
			return n, nil
		},
		DeleteFunc: func(ctx context.Context, userID string) error {
			st.mu.Lock()
			defer st.mu.Unlock()
			delete(st.secrets, userID)
			delete(st.codes, userID)
			return nil
		},
	}
	return repo, st
}

func newTestTOTPManager(t *testing.T) *auth.TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := auth.NewTOTPManager(key, []byte("backup-code-hash-key"), "Community Portal")
	require.NoError(t, err)
	return tm
}

type twoFactorFixture struct {
	svc  *TwoFactorService
	repo *MockTwoFactorRepository
	totp *auth.TOTPManager
	now  time.Time
}

func newTwoFactorFixture(t *testing.T) *twoFactorFixture {
	t.Helper()
	repo, _ := newMemoryTwoFactorRepo()
	tm := newTestTOTPManager(t)
	svc := NewTwoFactorService(repo, tm, logger.NewAuditLogger(testLogger()), metrics.New(), testLogger(),
		TwoFactorConfig{BackupCodeCount: 10})

	f := &twoFactorFixture{svc: svc, repo: repo, totp: tm, now: time.Unix(1_700_000_000, 0)}
	svc.now = func() time.Time { return f.now }
	return f
}

func (f *twoFactorFixture) code(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := f.totp.GenerateCode(secret, at)
	require.NoError(t, err)
	return code
}

// enable runs setup and enable for userID and returns the secret and codes
func (f *twoFactorFixture) enable(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := f.svc.Setup(ctx, userID, userID+"@example.com")
	require.NoError(t, err)

	codes, err := f.svc.Enable(ctx, userID, f.code(t, setup.Secret, f.now))
	require.NoError(t, err)

	// move well past the step consumed by enable
	f.now = f.now.Add(3 * auth.TOTPPeriod * time.Second)
	return setup.Secret, codes
}

func TestTwoFactorService_SetupAndEnable(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	status, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorNotConfigured, status.State)

	setup, err := f.svc.Setup(ctx, "user-1", "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	assert.Contains(t, setup.QRCodeImage, "data:image/png;base64,")
	assert.Len(t, setup.BackupCodes, 10)

	status, err = f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPendingSetup, status.State)

	codes, err := f.svc.Enable(ctx, "user-1", f.code(t, setup.Secret, f.now))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(codes), 8)
	assert.LessOrEqual(t, len(codes), 10)
	assert.Equal(t, setup.BackupCodes, codes, "enable activates the batch shown at setup")

	enabled, err := f.svc.IsEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, enabled)

	status, err = f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorEnabled, status.State)
	assert.Equal(t, 10, status.RemainingBackupCodes)
}

func TestTwoFactorService_EnableWrongCodeStaysPending(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	setup, err := f.svc.Setup(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	wrong := f.code(t, setup.Secret, f.now.Add(-5*time.Minute))
	_, err = f.svc.Enable(ctx, "user-1", wrong)
	assert.ErrorIs(t, err, models.ErrInvalidCode)
	assert.ErrorIs(t, err, models.ErrAuthentication)

	status, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorPendingSetup, status.State)
}

func TestTwoFactorService_EnableWithoutSetup(t *testing.T) {
	f := newTwoFactorFixture(t)

	_, err := f.svc.Enable(context.Background(), "user-1", "123456")
	assert.ErrorIs(t, err, models.ErrNoPendingSetup)
}

func TestTwoFactorService_SetupWhenEnabledConflicts(t *testing.T) {
	f := newTwoFactorFixture(t)
	f.enable(t, "user-1")

	_, err := f.svc.Setup(context.Background(), "user-1", "user@example.com")
	assert.ErrorIs(t, err, models.ErrTwoFactorAlreadyEnabled)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestTwoFactorService_ResetupSupersedesPending(t *testing.T) {
	f := newTwoFactorFixture(t)
	ctx := context.Background()

	first, err := f.svc.Setup(ctx, "user-1", "user@example.com")
	require.NoError(t, err)
	second, err := f.svc.Setup(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	_, err = f.svc.Enable(ctx, "user-1", f.code(t, first.Secret, f.now))
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	_, err = f.svc.Enable(ctx, "user-1", f.code(t, second.Secret, f.now))
	assert.NoError(t, err)
}

func TestTwoFactorService_VerifyWindow(t *testing.T) {
	step := auth.TOTPPeriod * time.Second

	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"current step", 0, true},
		{"one step behind", -step, true},
		{"one step ahead", step, true},
		{"two steps behind", -2 * step, false},
		{"two steps ahead", 2 * step, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTwoFactorFixture(t)
			secret, _ := f.enable(t, "user-1")

			err := f.svc.Verify(context.Background(), "user-1", f.code(t, secret, f.now.Add(tt.offset)))
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidCode)
			}
		})
	}
}

func TestTwoFactorService_VerifyRejectsReplay(t *testing.T) {
	f := newTwoFactorFixture(t)
	secret, _ := f.enable(t, "user-1")
	ctx := context.Background()

	code := f.code(t, secret, f.now)
	require.NoError(t, f.svc.Verify(ctx, "user-1", code))
	assert.ErrorIs(t, f.svc.Verify(ctx, "user-1", code), models.ErrInvalidCode)
}

func TestTwoFactorService_VerifyNotEnabled(t *testing.T) {
	f := newTwoFactorFixture(t)

	err := f.svc.Verify(context.Background(), "user-1", "123456")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_FormatRejectedWithoutStoreAccess(t *testing.T) {
	repo := &MockTwoFactorRepository{
		GetSecretFunc: func(ctx context.Context, userID string) (*models.TwoFactorSecret, error) {
			t.Fatal("store must not be consulted for malformed codes")
			return nil, nil
		},
		ConsumeBackupCodeFunc: func(ctx context.Context, userID, codeHash string) (bool, error) {
			t.Fatal("store must not be consulted for malformed codes")
			return false, nil
		},
	}
	svc := NewTwoFactorService(repo, newTestTOTPManager(t), nil, nil, testLogger(), TwoFactorConfig{BackupCodeCount: 10})
	ctx := context.Background()

	for _, code := range []string{"", "12345", "1234567", "12a456", "١٢٣٤٥٦"} {
		assert.ErrorIs(t, svc.Verify(ctx, "user-1", code), models.ErrInvalidCodeFormat, code)
		_, err := svc.Enable(ctx, "user-1", code)
		assert.ErrorIs(t, err, models.ErrValidation, code)
	}
	for _, code := range []string{"", "ABC", "ABCDEFGHI", "ABCD!FGH"} {
		assert.ErrorIs(t, svc.VerifyBackupCode(ctx, "user-1", code), models.ErrInvalidCodeFormat, code)
	}
	assert.ErrorIs(t, svc.Disable(ctx, "user-1", "nope"), models.ErrInvalidCodeFormat)
}

func TestTwoFactorService_BackupCodeSingleUse(t *testing.T) {
	f := newTwoFactorFixture(t)
	_, codes := f.enable(t, "user-1")
	ctx := context.Background()

	require.NoError(t, f.svc.VerifyBackupCode(ctx, "user-1", codes[0]))

	err := f.svc.VerifyBackupCode(ctx, "user-1", codes[0])
	assert.ErrorIs(t, err, models.ErrInvalidCode)
	assert.ErrorIs(t, err, models.ErrAuthentication)

	// unknown codes fail the same way
	assert.ErrorIs(t, f.svc.VerifyBackupCode(ctx, "user-1", "ZZZZZZZZ"), models.ErrInvalidCode)

	// lowercase and dashed input is normalized
	require.NoError(t, f.svc.VerifyBackupCode(ctx, "user-1", strings.ToLower(codes[1][:4]+"-"+codes[1][4:])))

	status, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 8, status.RemainingBackupCodes)
}

func TestTwoFactorService_BackupCodeConcurrentRedemption(t *testing.T) {
	f := newTwoFactorFixture(t)
	_, codes := f.enable(t, "user-1")

	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- f.svc.VerifyBackupCode(context.Background(), "user-1", codes[0])
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, models.ErrInvalidCode)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestTwoFactorService_RegenerateInvalidatesOldBatch(t *testing.T) {
	f := newTwoFactorFixture(t)
	secret, old := f.enable(t, "user-1")
	ctx := context.Background()

	fresh, err := f.svc.RegenerateBackupCodes(ctx, "user-1", f.code(t, secret, f.now))
	require.NoError(t, err)
	assert.Len(t, fresh, 10)

	for _, code := range old {
		assert.ErrorIs(t, f.svc.VerifyBackupCode(ctx, "user-1", code), models.ErrInvalidCode)
	}
	assert.NoError(t, f.svc.VerifyBackupCode(ctx, "user-1", fresh[0]))
}

func TestTwoFactorService_RegenerateRequiresVerification(t *testing.T) {
	f := newTwoFactorFixture(t)
	_, old := f.enable(t, "user-1")
	ctx := context.Background()

	_, err := f.svc.RegenerateBackupCodes(ctx, "user-1", "000000")
	assert.Error(t, err)

	// old batch still valid
	assert.NoError(t, f.svc.VerifyBackupCode(ctx, "user-1", old[0]))
}

func TestTwoFactorService_Disable(t *testing.T) {
	f := newTwoFactorFixture(t)
	secret, _ := f.enable(t, "user-1")
	ctx := context.Background()

	require.NoError(t, f.svc.Disable(ctx, "user-1", f.code(t, secret, f.now)))

	status, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.TwoFactorNotConfigured, status.State)

	// setup works again once disabled
	_, err = f.svc.Setup(ctx, "user-1", "user@example.com")
	assert.NoError(t, err)
}

func TestTwoFactorService_DisableWithUsedBackupCodeRejected(t *testing.T) {
	f := newTwoFactorFixture(t)
	_, codes := f.enable(t, "user-1")
	ctx := context.Background()

	require.NoError(t, f.svc.VerifyBackupCode(ctx, "user-1", codes[0]))

	err := f.svc.Disable(ctx, "user-1", codes[0])
	assert.ErrorIs(t, err, models.ErrInvalidCode)

	enabled, err := f.svc.IsEnabled(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, enabled, "state must be unchanged")

	status, err := f.svc.Status(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 9, status.RemainingBackupCodes)
}

func TestTwoFactorService_DisableWhenNotEnabled(t *testing.T) {
	f := newTwoFactorFixture(t)

	err := f.svc.Disable(context.Background(), "user-1", "123456")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_StoreUnavailable(t *testing.T) {
	repo := &MockTwoFactorRepository{
		GetSecretFunc: func(ctx context.Context, userID string) (*models.TwoFactorSecret, error) {
			return nil, models.ErrTransient
		},
	}
	svc := NewTwoFactorService(repo, newTestTOTPManager(t), nil, nil, testLogger(), TwoFactorConfig{BackupCodeCount: 10})

	_, err := svc.IsEnabled(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrTransient)

	_, err = svc.Status(context.Background(), "user-1")
	assert.ErrorIs(t, err, models.ErrTransient)
}
