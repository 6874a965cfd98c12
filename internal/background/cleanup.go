package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
)

// Retention windows for the hygiene sweep
const (
	ActionLogRetention   = 30 * 24 * time.Hour
	PendingSetupLifetime = 24 * time.Hour
)

type ExpiredSessionCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

type ActionLogCleaner interface {
	DeleteOlderThan(ctx context.Context, action models.Action, age time.Duration) (int64, error)
}

type RecoveryTokenCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type PendingSetupCleaner interface {
	DeleteAbandonedPending(ctx context.Context, age time.Duration) (int64, error)
}

// cleanupTask is one named sweep step
type cleanupTask struct {
	name string
	run  func(ctx context.Context) (int64, error)
}

// CleanupManager periodically removes rows nothing reads any more: expired
// sessions, old action logs, dead recovery tokens and abandoned two-factor
// setups. Correctness never depends on it; expiry is enforced on read.
type CleanupManager struct {
	tasks    []cleanupTask
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions ExpiredSessionCleaner,
	actionLogs ActionLogCleaner,
	tokens RecoveryTokenCleaner,
	twoFactor PendingSetupCleaner,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	tasks := []cleanupTask{
		{name: "expired_sessions", run: sessions.DeleteExpired},
		{name: "recovery_tokens", run: tokens.CleanupExpired},
		{name: "pending_two_factor", run: func(ctx context.Context) (int64, error) {
			return twoFactor.DeleteAbandonedPending(ctx, PendingSetupLifetime)
		}},
	}
	for _, action := range []models.Action{models.ActionPasswordReset, models.ActionEmailVerification} {
		tasks = append(tasks, cleanupTask{
			name: string(action) + "_log",
			run: func(ctx context.Context) (int64, error) {
				return actionLogs.DeleteOlderThan(ctx, action, ActionLogRetention)
			},
		})
	}

	return &CleanupManager{
		tasks:    tasks,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup runs every task; one failing task does not stop the others
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, task := range cm.tasks {
		rowsDeleted, err := task.run(cleanupCtx)
		if err != nil {
			cm.logger.Error("cleanup task failed",
				slog.String("task", task.name),
				slog.Any("error", err))
			continue
		}
		if rowsDeleted > 0 {
			cm.logger.Info("cleanup task completed",
				slog.String("task", task.name),
				slog.Int64("rows_deleted", rowsDeleted))
		}
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
