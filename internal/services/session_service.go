package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/BradenHooton/portalguard/pkg/logger"
	"github.com/google/uuid"
)

// SessionRepository defines the session registry persistence operations
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error)
	Touch(ctx context.Context, userID, id string) error
	Delete(ctx context.Context, userID, id string) (bool, error)
	DeleteAllExcept(ctx context.Context, userID, keepID string) (int64, error)
	DeleteAllByUser(ctx context.Context, userID string) (int64, error)
}

// SessionService is the session registry. The current session is always
// named explicitly by the caller, never inferred from activity.
type SessionService struct {
	repo   SessionRepository
	audit  *logger.AuditLogger
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(repo SessionRepository, audit *logger.AuditLogger, logger *slog.Logger, ttl time.Duration) *SessionService {
	return &SessionService{
		repo:   repo,
		audit:  audit,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Register records a new login session
func (s *SessionService) Register(ctx context.Context, userID, deviceInfo, ipAddress string) (*models.Session, error) {
	session := &models.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		DeviceInfo: deviceInfo,
		IPAddress:  ipAddress,
		ExpiresAt:  s.now().Add(s.ttl),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, storeFailure(s.logger, "failed to create session", err)
	}
	return session, nil
}

// ListSessions returns the user's non-expired sessions, most recently
// active first
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := s.repo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, storeFailure(s.logger, "failed to list sessions", err)
	}

	now := s.now()
	active := sessions[:0]
	for _, session := range sessions {
		if !session.IsExpired(now) {
			active = append(active, session)
		}
	}
	return active, nil
}

// RevokeSession deletes one of the user's sessions. Revoking a session that
// does not exist succeeds.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil
	}

	deleted, err := s.repo.Delete(ctx, userID, sessionID)
	if err != nil {
		return storeFailure(s.logger, "failed to revoke session", err)
	}

	if deleted {
		s.audit.LogSession(ctx, logger.AuditEvent{
			EventType: logger.EventSessionRevoked,
			UserID:    userID,
			Success:   true,
			Metadata:  map[string]string{"session_id": sessionID},
		})
	}
	return nil
}

// RevokeAllOthers deletes every session of the user except currentSessionID
func (s *SessionService) RevokeAllOthers(ctx context.Context, userID, currentSessionID string) (int64, error) {
	if _, err := uuid.Parse(currentSessionID); err != nil {
		return 0, &models.ValidationError{
			Message: "current session is required",
			Reasons: []string{"session id is missing or malformed"},
		}
	}

	revoked, err := s.repo.DeleteAllExcept(ctx, userID, currentSessionID)
	if err != nil {
		return 0, storeFailure(s.logger, "failed to revoke other sessions", err)
	}

	s.audit.LogSession(ctx, logger.AuditEvent{
		EventType: logger.EventSessionsRevokedOthers,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"kept_session_id": currentSessionID},
	})
	return revoked, nil
}

// RevokeAll deletes every session of the user
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	revoked, err := s.repo.DeleteAllByUser(ctx, userID)
	if err != nil {
		return 0, storeFailure(s.logger, "failed to revoke sessions", err)
	}
	return revoked, nil
}

// ValidateSession confirms the session is live and owned by userID and
// records activity on it
func (s *SessionService) ValidateSession(ctx context.Context, userID, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return models.ErrSessionNotFound
	}

	if err := s.repo.Touch(ctx, userID, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrSessionNotFound
		}
		return storeFailure(s.logger, "failed to validate session", err)
	}
	return nil
}
