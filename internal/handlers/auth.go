package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/models"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// Authenticator checks a password login against the identity provider
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
}

// SessionRegistrar opens and closes registry sessions
type SessionRegistrar interface {
	Register(ctx context.Context, userID, deviceInfo, ipAddress string) (*models.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
}

// AuthConfig holds the login handler settings
type AuthConfig struct {
	AccessTokenTTL time.Duration
	Cookies        auth.CookieConfig
	VerifyPath     string
}

// AuthHandler handles password login and logout. Each login opens a
// registry session whose id is bound into the access token.
type AuthHandler struct {
	idp       Authenticator
	sessions  SessionRegistrar
	twoFactor auth.TwoFactorStatusChecker
	tm        *auth.TokenManager
	claims    *auth.ClaimManager
	timing    *auth.TimingDelay
	ipConfig  *pkghttp.IPConfig
	config    AuthConfig
	logger    *slog.Logger
}

func NewAuthHandler(
	idp Authenticator,
	sessions SessionRegistrar,
	twoFactor auth.TwoFactorStatusChecker,
	tm *auth.TokenManager,
	claims *auth.ClaimManager,
	timing *auth.TimingDelay,
	ipConfig *pkghttp.IPConfig,
	config AuthConfig,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		idp:       idp,
		sessions:  sessions,
		twoFactor: twoFactor,
		tm:        tm,
		claims:    claims,
		timing:    timing,
		ipConfig:  ipConfig,
		config:    config,
		logger:    logger,
	}
}

// Login handles POST /api/auth/login. Every exit is padded by the timing
// delay so failures cannot be told apart by latency.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req LoginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		h.timing.WaitFrom(r.Context(), start, false)
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.idp.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.timing.WaitFrom(r.Context(), start, false)
		if errors.Is(err, models.ErrAuthentication) {
			pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeAuthentication, "Invalid email or password")
			return
		}
		writeServiceError(w, h.logger, err, "Login failed")
		return
	}

	client := pkghttp.ExtractClientInfo(r, h.ipConfig)
	session, err := h.sessions.Register(r.Context(), user.ID, client.DeviceInfo, client.IPAddress)
	if err != nil {
		h.timing.WaitFrom(r.Context(), start, false)
		writeServiceError(w, h.logger, err, "Failed to open session")
		return
	}

	token, err := h.tm.GenerateAccessToken(user.ID, user.Email, session.ID)
	if err != nil {
		h.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		h.timing.WaitFrom(r.Context(), start, false)
		pkghttp.WriteInternalError(w, "Login failed")
		return
	}

	twoFactorRequired, err := h.twoFactor.IsEnabled(r.Context(), user.ID)
	if err != nil {
		// The gate re-checks on every protected request
		h.logger.Warn("two-factor status lookup failed at login", slog.String("user_id", user.ID), slog.Any("error", err))
		twoFactorRequired = true
	}

	auth.SetAccessTokenCookie(w, token, h.config.AccessTokenTTL, h.config.Cookies)
	resp := LoginResponse{
		AccessToken:       token,
		ExpiresAt:         time.Now().Add(h.config.AccessTokenTTL),
		SessionID:         session.ID,
		TwoFactorRequired: twoFactorRequired,
	}
	if twoFactorRequired {
		resp.VerifyURL = h.config.VerifyPath
	}

	h.timing.WaitFrom(r.Context(), start, true)
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/auth/logout. It ends the current session only.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	if err := h.sessions.RevokeSession(r.Context(), principal.UserID, principal.SessionID); err != nil {
		writeServiceError(w, h.logger, err, "Logout failed")
		return
	}

	auth.ClearAccessTokenCookie(w, h.config.Cookies)
	h.claims.Clear(w)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Logged out"})
}
