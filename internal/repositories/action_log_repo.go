package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/portalguard/internal/database"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ActionLogRepository appends to and queries the per-action audit logs
type ActionLogRepository struct {
	pool *pgxpool.Pool
}

func NewActionLogRepository(db *database.DB) *ActionLogRepository {
	return &ActionLogRepository{pool: db.Pool}
}

// logTable maps an action to its log table. Table names never come from input.
func logTable(action models.Action) (string, error) {
	switch action {
	case models.ActionPasswordReset:
		return "password_reset_log", nil
	case models.ActionEmailVerification:
		return "email_verification_log", nil
	default:
		return "", fmt.Errorf("%w: unknown action %q", models.ErrValidation, action)
	}
}

// Record appends one attempt, successful or not
func (r *ActionLogRepository) Record(ctx context.Context, entry *models.ActionLogEntry) error {
	table, err := logTable(entry.Action)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ` + table + ` (email, success, failure_reason, ip_address)
		VALUES (LOWER($1), $2, $3, $4)
		RETURNING id, created_at
	`

	err = r.pool.QueryRow(ctx, query, entry.Email, entry.Success, entry.FailureReason, entry.IPAddress).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record %s attempt: %w", entry.Action, database.MapPostgresError(err))
	}
	return nil
}

// GetLastSuccessTime returns the time of the most recent successful attempt,
// or nil when there has been none
func (r *ActionLogRepository) GetLastSuccessTime(ctx context.Context, email string, action models.Action) (*time.Time, error) {
	table, err := logTable(action)
	if err != nil {
		return nil, err
	}

	var last *time.Time
	err = r.pool.QueryRow(ctx, `
		SELECT MAX(created_at) FROM `+table+`
		WHERE email = LOWER($1) AND success = TRUE
	`, email).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to get last %s success: %w", action, database.MapPostgresError(err))
	}
	return last, nil
}

// DeleteOlderThan prunes log rows older than age
func (r *ActionLogRepository) DeleteOlderThan(ctx context.Context, action models.Action, age time.Duration) (int64, error) {
	table, err := logTable(action)
	if err != nil {
		return 0, err
	}

	tag, err := r.pool.Exec(ctx, `DELETE FROM `+table+` WHERE created_at < $1`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s log: %w", action, database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
