package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionHandler_ListMarksCurrentByID(t *testing.T) {
	now := time.Now()
	svc := &MockSessionManager{
		ListSessionsFunc: func(ctx context.Context, userID string) ([]*models.Session, error) {
			// The most recently active session is not the caller's
			return []*models.Session{
				{ID: "other-session", UserID: userID, LastActivity: now, ExpiresAt: now.Add(time.Hour)},
				{ID: testSessionID, UserID: userID, LastActivity: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
			}, nil
		},
	}
	h := NewSessionHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.List(w, WithPrincipal(NewTestRequest(t, http.MethodGet, "/api/auth/sessions", nil)))

	var resp SessionListResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp.Sessions, 2)
	assert.False(t, resp.Sessions[0].Current)
	assert.True(t, resp.Sessions[1].Current)
}

func TestSessionHandler_RevokeUsesURLParam(t *testing.T) {
	var revoked string
	svc := &MockSessionManager{
		RevokeSessionFunc: func(ctx context.Context, userID, sessionID string) error {
			revoked = sessionID
			return nil
		},
	}
	h := NewSessionHandler(svc, testLogger())

	r := chi.NewRouter()
	r.Delete("/api/auth/sessions/{id}", func(w http.ResponseWriter, req *http.Request) {
		h.Revoke(w, WithPrincipal(req))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/auth/sessions/abc-123", nil))

	AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, "abc-123", revoked)
}

func TestSessionHandler_RevokeOthersKeepsCurrent(t *testing.T) {
	svc := &MockSessionManager{
		RevokeAllOthersFunc: func(ctx context.Context, userID, currentSessionID string) (int64, error) {
			assert.Equal(t, testSessionID, currentSessionID)
			return 3, nil
		},
	}
	h := NewSessionHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.RevokeOthers(w, WithPrincipal(NewTestRequest(t, http.MethodPost, "/api/auth/sessions/revoke-others", nil)))

	var resp RevokeOthersResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, int64(3), resp.Revoked)
}

func TestSessionHandler_StoreUnavailable(t *testing.T) {
	svc := &MockSessionManager{
		ListSessionsFunc: func(ctx context.Context, userID string) ([]*models.Session, error) {
			return nil, models.ErrTransient
		},
	}
	h := NewSessionHandler(svc, testLogger())

	w := httptest.NewRecorder()
	h.List(w, WithPrincipal(NewTestRequest(t, http.MethodGet, "/api/auth/sessions", nil)))

	AssertErrorResponse(t, w, http.StatusServiceUnavailable, pkghttp.CodeTransient)
}
