package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/portalguard/internal/database"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TwoFactorRepository persists TOTP secrets and backup codes
type TwoFactorRepository struct {
	pool *pgxpool.Pool
}

func NewTwoFactorRepository(db *database.DB) *TwoFactorRepository {
	return &TwoFactorRepository{pool: db.Pool}
}

const selectSecretColumns = `
	SELECT user_id, encrypted_secret, nonce, pending_backup_codes, pending_backup_codes_nonce,
	       enabled, last_used_step, created_at, enabled_at
	FROM two_factor_secrets
`

func scanSecretRow(row rowScanner) (*models.TwoFactorSecret, error) {
	var s models.TwoFactorSecret
	err := row.Scan(
		&s.UserID, &s.EncryptedSecret, &s.Nonce, &s.PendingBackupCodes, &s.PendingBackupCodesNonce,
		&s.Enabled, &s.LastUsedStep, &s.CreatedAt, &s.EnabledAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// GetSecret returns the user's secret or models.ErrNotFound
func (r *TwoFactorRepository) GetSecret(ctx context.Context, userID string) (*models.TwoFactorSecret, error) {
	secret, err := scanSecretRow(r.pool.QueryRow(ctx, selectSecretColumns+` WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get two-factor secret: %w", err)
	}
	return secret, nil
}

// UpsertPendingSecret stores a new pending secret, superseding any earlier
// pending one. An enabled secret is never overwritten.
func (r *TwoFactorRepository) UpsertPendingSecret(ctx context.Context, s *models.TwoFactorSecret) error {
	query := `
		INSERT INTO two_factor_secrets
			(user_id, encrypted_secret, nonce, pending_backup_codes, pending_backup_codes_nonce, enabled, last_used_step)
		VALUES ($1, $2, $3, $4, $5, FALSE, 0)
		ON CONFLICT (user_id) DO UPDATE SET
			encrypted_secret           = EXCLUDED.encrypted_secret,
			nonce                      = EXCLUDED.nonce,
			pending_backup_codes       = EXCLUDED.pending_backup_codes,
			pending_backup_codes_nonce = EXCLUDED.pending_backup_codes_nonce,
			last_used_step             = 0,
			created_at                 = NOW(),
			enabled_at                 = NULL
		WHERE two_factor_secrets.enabled = FALSE
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query,
		s.UserID, s.EncryptedSecret, s.Nonce, s.PendingBackupCodes, s.PendingBackupCodesNonce,
	).Scan(&s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ErrTwoFactorAlreadyEnabled
		}
		return fmt.Errorf("failed to store pending secret: %w", database.MapPostgresError(err))
	}

	s.Enabled = false
	s.LastUsedStep = 0
	return nil
}

// EnableSecret flips a pending secret to enabled, records the accepted time
// step and installs the backup code batch, all in one transaction
func (r *TwoFactorRepository) EnableSecret(ctx context.Context, userID string, step int64, codeHashes []string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE two_factor_secrets
			SET enabled = TRUE,
			    enabled_at = NOW(),
			    pending_backup_codes = NULL,
			    pending_backup_codes_nonce = NULL,
			    last_used_step = $2
			WHERE user_id = $1 AND enabled = FALSE AND last_used_step < $2
		`, userID, step)
		if err != nil {
			return fmt.Errorf("failed to enable secret: %w", database.MapPostgresError(err))
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNoPendingSetup
		}

		return replaceCodes(ctx, tx, userID, codeHashes)
	})
}

// AdvanceLastUsedStep records step as used. Returns false when step is not
// newer than the last accepted one, which rejects replayed codes.
func (r *TwoFactorRepository) AdvanceLastUsedStep(ctx context.Context, userID string, step int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE two_factor_secrets
		SET last_used_step = $2
		WHERE user_id = $1 AND enabled = TRUE AND last_used_step < $2
	`, userID, step)
	if err != nil {
		return false, fmt.Errorf("failed to advance time step: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// ConsumeBackupCode marks a matching unused code as used. Exactly one of any
// number of concurrent callers gets true for the same code.
func (r *TwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE backup_codes
		SET used_at = NOW()
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
	`, userID, codeHash)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() == 1, nil
}

// ReplaceBackupCodes invalidates every existing code and installs a new batch.
// The secret must be enabled.
func (r *TwoFactorRepository) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var enabled bool
		err := tx.QueryRow(ctx,
			`SELECT enabled FROM two_factor_secrets WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&enabled)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrTwoFactorNotEnabled
			}
			return fmt.Errorf("failed to lock secret: %w", database.MapPostgresError(err))
		}
		if !enabled {
			return models.ErrTwoFactorNotEnabled
		}

		return replaceCodes(ctx, tx, userID, codeHashes)
	})
}

func replaceCodes(ctx context.Context, tx pgx.Tx, userID string, codeHashes []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", database.MapPostgresError(err))
	}

	rows := make([][]any, 0, len(codeHashes))
	for _, h := range codeHashes {
		rows = append(rows, []any{userID, h})
	}

	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"backup_codes"},
		[]string{"user_id", "code_hash"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert backup codes: %w", database.MapPostgresError(err))
	}
	return nil
}

// CountUnusedBackupCodes returns how many codes remain redeemable
func (r *TwoFactorRepository) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = $1 AND used_at IS NULL`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// Delete removes the secret and every backup code. Deleting nothing is not an error.
func (r *TwoFactorRepository) Delete(ctx context.Context, userID string) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", database.MapPostgresError(err))
		}
		if _, err := tx.Exec(ctx, `DELETE FROM two_factor_secrets WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete secret: %w", database.MapPostgresError(err))
		}
		return nil
	})
}

// DeleteAbandonedPending removes pending setups older than age
func (r *TwoFactorRepository) DeleteAbandonedPending(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM two_factor_secrets
		WHERE enabled = FALSE AND created_at < $1
	`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to delete abandoned setups: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
