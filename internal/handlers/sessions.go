package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/models"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// SessionManager is the session registry
type SessionManager interface {
	ListSessions(ctx context.Context, userID string) ([]*models.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
	RevokeAllOthers(ctx context.Context, userID, currentSessionID string) (int64, error)
}

// SessionHandler lists and revokes the caller's sessions
type SessionHandler struct {
	sessions SessionManager
	logger   *slog.Logger
}

func NewSessionHandler(sessions SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logger}
}

// List handles GET /api/auth/sessions. The current session is the one
// named by the access token.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessions, err := h.sessions.ListSessions(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list sessions")
		return
	}

	resp := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, SessionResponse{
			ID:           s.ID,
			DeviceInfo:   s.DeviceInfo,
			IPAddress:    s.IPAddress,
			LastActivity: s.LastActivity,
			CreatedAt:    s.CreatedAt,
			ExpiresAt:    s.ExpiresAt,
			Current:      s.ID == principal.SessionID,
		})
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Revoke handles DELETE /api/auth/sessions/{id}
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "session id is required")
		return
	}

	if err := h.sessions.RevokeSession(r.Context(), principal.UserID, sessionID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to revoke session")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Session revoked"})
}

// RevokeOthers handles POST /api/auth/sessions/revoke-others
func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	revoked, err := h.sessions.RevokeAllOthers(r.Context(), principal.UserID, principal.SessionID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to revoke sessions")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, RevokeOthersResponse{
		Success: true,
		Message: "All other sessions have been signed out",
		Revoked: revoked,
	})
}
