package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/portalguard/internal/models"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const principalContextKey contextKey = "principal"

// SessionValidator confirms a session is live in the session registry
type SessionValidator interface {
	ValidateSession(ctx context.Context, userID, sessionID string) error
}

// AuthMiddleware authenticates the request from a bearer token or the
// access_token cookie, checks the token's session against the registry and
// stores the Principal in the request context. A registry failure denies
// access.
func AuthMiddleware(tm *TokenManager, sessions SessionValidator, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractAccessToken(r)
			if !ok {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				pkghttp.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			if err := sessions.ValidateSession(r.Context(), claims.UserID, claims.SessionID); err != nil {
				if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrUnauthorized) {
					pkghttp.WriteUnauthorized(w, "session expired or revoked")
					return
				}
				logger.Error("session validation failed",
					slog.String("user_id", claims.UserID),
					slog.Any("error", err))
				pkghttp.WriteServiceUnavailable(w, "unable to verify session")
				return
			}

			principal := &models.Principal{
				UserID:    claims.UserID,
				Email:     claims.Email,
				SessionID: claims.SessionID,
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

func extractAccessToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}

	if value := cookieValue(r, AccessTokenCookie); value != "" {
		return value, true
	}
	return "", false
}

// WithPrincipal returns a context carrying p
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the authenticated principal, if any
func PrincipalFromContext(ctx context.Context) (*models.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*models.Principal)
	return p, ok && p != nil
}

// GetPrincipal extracts the principal from the request context
func GetPrincipal(r *http.Request) *models.Principal {
	p, _ := PrincipalFromContext(r.Context())
	return p
}
