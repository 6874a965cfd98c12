package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/portalguard/internal/database"
	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository handles the session registry table
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `id, user_id, device_info, ip_address, last_activity, expires_at, created_at`

func scanSessionRow(row rowScanner) (*models.Session, error) {
	var s models.Session
	err := row.Scan(&s.ID, &s.UserID, &s.DeviceInfo, &s.IPAddress, &s.LastActivity, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", database.MapPostgresError(err))
	}
	return sessions, nil
}

// Create registers a session. ID is generated when empty.
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, device_info, ip_address, expires_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5)
		RETURNING ` + sessionColumns

	created, err := scanSessionRow(r.pool.QueryRow(ctx, query, s.ID, s.UserID, s.DeviceInfo, s.IPAddress, s.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	*s = *created
	return nil
}

// GetByID returns a session regardless of expiry
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	s, err := scanSessionRow(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

// ListActiveByUser returns non-expired sessions, most recently active first
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND expires_at > NOW()
		ORDER BY last_activity DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", database.MapPostgresError(err))
	}
	return scanSessionRows(rows)
}

// Touch records activity on a live session owned by userID.
// Returns models.ErrSessionNotFound when the session is gone, expired or foreign.
func (r *SessionRepository) Touch(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET last_activity = NOW()
		WHERE id = $1 AND user_id = $2 AND expires_at > NOW()
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// Delete removes one of the user's sessions. Returns whether a row was removed.
func (r *SessionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAllExcept removes every session of the user except keepID
func (r *SessionRepository) DeleteAllExcept(ctx context.Context, userID, keepID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1 AND id <> $2`, userID, keepID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete other sessions: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes sessions past their expiry
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}

// DeleteAllByUser removes every session of the user
func (r *SessionRepository) DeleteAllByUser(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected(), nil
}
