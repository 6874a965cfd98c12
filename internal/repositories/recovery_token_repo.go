package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/portalguard/internal/database"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecoveryTokenRepository handles password reset and email verification tokens
type RecoveryTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRecoveryTokenRepository(db *database.DB) *RecoveryTokenRepository {
	return &RecoveryTokenRepository{pool: db.Pool}
}

const recoveryTokenColumns = `id, user_id, purpose, token_hash, email, expires_at, used_at, created_at`

func scanRecoveryTokenRow(row rowScanner) (*models.RecoveryToken, error) {
	var t models.RecoveryToken
	err := row.Scan(&t.ID, &t.UserID, &t.Purpose, &t.TokenHash, &t.Email, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

func (r *RecoveryTokenRepository) Create(ctx context.Context, token *models.RecoveryToken) error {
	query := `
		INSERT INTO recovery_tokens (user_id, purpose, token_hash, email, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + recoveryTokenColumns

	created, err := scanRecoveryTokenRow(r.pool.QueryRow(ctx, query,
		token.UserID, token.Purpose, token.TokenHash, token.Email, token.ExpiresAt,
	))
	if err != nil {
		return fmt.Errorf("failed to create recovery token: %w", err)
	}
	*token = *created
	return nil
}

// GetByHash looks a token up by its hash within one purpose
func (r *RecoveryTokenRepository) GetByHash(ctx context.Context, purpose models.RecoveryPurpose, tokenHash string) (*models.RecoveryToken, error) {
	token, err := scanRecoveryTokenRow(r.pool.QueryRow(ctx,
		`SELECT `+recoveryTokenColumns+` FROM recovery_tokens WHERE token_hash = $1 AND purpose = $2`,
		tokenHash, purpose,
	))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recovery token: %w", err)
	}
	return token, nil
}

// MarkAsUsed consumes a live token. Only one caller can consume a token;
// the rest get models.ErrNotFound.
func (r *RecoveryTokenRepository) MarkAsUsed(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE recovery_tokens
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL AND expires_at > NOW()
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark token as used: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteByUserAndPurpose drops outstanding tokens so only the newest stays valid
func (r *RecoveryTokenRepository) DeleteByUserAndPurpose(ctx context.Context, userID string, purpose models.RecoveryPurpose) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM recovery_tokens WHERE user_id = $1 AND purpose = $2`, userID, purpose)
	if err != nil {
		return fmt.Errorf("failed to delete recovery tokens: %w", database.MapPostgresError(err))
	}
	return nil
}

// CleanupExpired removes expired and used tokens
func (r *RecoveryTokenRepository) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM recovery_tokens WHERE expires_at < NOW() OR used_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup recovery tokens: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
