package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BradenHooton/portalguard/internal/metrics"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// TwoFactorStatusChecker reports whether a user has an enabled second factor
type TwoFactorStatusChecker interface {
	IsEnabled(ctx context.Context, userID string) (bool, error)
}

// TwoFactorGateConfig lists the protected route prefixes and the page that
// collects the second factor
type TwoFactorGateConfig struct {
	ProtectedPrefixes []string
	VerifyPath        string
}

// TwoFactorGate blocks protected routes for users with two-factor enabled
// until the session holds a valid 2fa_verified claim. Page requests are
// redirected to the verify page; API requests get 403 TWO_FACTOR_REQUIRED.
// Must run after AuthMiddleware.
func TwoFactorGate(checker TwoFactorStatusChecker, claims *ClaimManager, cfg TwoFactorGateConfig, logger *slog.Logger, recorder *metrics.Recorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !PathMatchesAny(r.URL.Path, cfg.ProtectedPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			principal := GetPrincipal(r)
			if principal == nil {
				pkghttp.WriteUnauthorized(w, "authentication required")
				return
			}

			enabled, err := checker.IsEnabled(r.Context(), principal.UserID)
			if err != nil {
				logger.Error("two-factor status lookup failed",
					slog.String("user_id", principal.UserID),
					slog.Any("error", err))
				recorder.TwoFactorGateDecision("error")
				pkghttp.WriteServiceUnavailable(w, "unable to verify two-factor status")
				return
			}
			if !enabled {
				recorder.TwoFactorGateDecision("pass")
				next.ServeHTTP(w, r)
				return
			}

			claim, err := claims.FromRequest(r)
			if err == nil && claim.Satisfies(principal.UserID, principal.SessionID, time.Now()) {
				recorder.TwoFactorGateDecision("pass")
				next.ServeHTTP(w, r)
				return
			}

			recorder.TwoFactorGateDecision("blocked")
			logger.Info("two-factor verification required",
				slog.String("user_id", principal.UserID),
				slog.String("path", r.URL.Path))

			redirectURL := VerifyRedirectURL(cfg.VerifyPath, r.URL.RequestURI())
			if PathHasPrefix(r.URL.Path, "/api") {
				pkghttp.WriteErrorWithDetails(w, http.StatusForbidden, pkghttp.CodeTwoFactorRequired,
					"two-factor verification required", redirectURL)
				return
			}
			http.Redirect(w, r, redirectURL, http.StatusFound)
		})
	}
}

// VerifyRedirectURL builds the verify page URL preserving original as the
// redirect parameter. Slashes stay readable; everything else is escaped.
func VerifyRedirectURL(verifyPath, original string) string {
	if !strings.HasPrefix(original, "/") || strings.HasPrefix(original, "//") {
		original = "/"
	}
	escaped := strings.ReplaceAll(url.QueryEscape(original), "%2F", "/")
	return verifyPath + "?redirect=" + escaped
}
