package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/handlers"
	"github.com/BradenHooton/portalguard/internal/metrics"
	"github.com/BradenHooton/portalguard/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers served by the router
type Handlers struct {
	Auth      *handlers.AuthHandler
	TwoFactor *handlers.TwoFactorHandler
	Sessions  *handlers.SessionHandler
	Recovery  *handlers.RecoveryHandler
	CSRF      *handlers.CSRFHandler
	Health    *handlers.HealthHandler
}

// Security holds the middleware dependencies of the route chains
type Security struct {
	Tokens            *auth.TokenManager
	Sessions          auth.SessionValidator
	TwoFactor         auth.TwoFactorStatusChecker
	Claims            *auth.ClaimManager
	CSRF              *auth.CSRFService
	CSRFExempt        []string
	Gate              auth.TwoFactorGateConfig
	RecoveryRateLimit middleware.RateLimitConfig
	Metrics           *metrics.Recorder
	Logger            *slog.Logger
}

// RegisterRoutes registers all application routes.
//
// Public recovery endpoints run IP throttle, then CSRF, then the handler.
// Authenticated endpoints run authentication, then the two-factor gate,
// then CSRF. The gate only blocks its protected prefixes, so the verify
// endpoints stay reachable for a session that still owes a second factor.
func RegisterRoutes(router chi.Router, h Handlers, sec Security) {
	csrf := middleware.CSRFProtection(sec.CSRF, sec.CSRFExempt, sec.Logger, sec.Metrics)
	throttle := middleware.RateLimitByIP(sec.RecoveryRateLimit)

	router.Get("/health", h.Health.Health)
	router.Method(http.MethodGet, "/metrics", sec.Metrics.Handler())

	router.Get("/api/csrf-token", h.CSRF.Token)
	router.Post("/api/csrf-token", h.CSRF.Token)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(throttle)
		r.Use(csrf)

		r.Post("/api/auth/login", h.Auth.Login)
		r.Post("/api/auth/password-reset/request", h.Recovery.RequestPasswordReset)
		r.Post("/api/auth/password-reset/validate", h.Recovery.ValidateResetToken)
		r.Post("/api/auth/password-reset/update", h.Recovery.UpdatePassword)
		r.Post("/api/auth/resend-verification", h.Recovery.ResendVerification)
		r.Get("/api/auth/verify-email", h.Recovery.VerifyEmail)
	})

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(sec.Tokens, sec.Sessions, sec.Logger))
		r.Use(auth.TwoFactorGate(sec.TwoFactor, sec.Claims, sec.Gate, sec.Logger, sec.Metrics))
		r.Use(csrf)

		r.Post("/api/auth/logout", h.Auth.Logout)

		r.Route("/api/auth/2fa", func(r chi.Router) {
			r.Get("/status", h.TwoFactor.Status)
			r.Post("/setup", h.TwoFactor.Setup)
			r.Post("/enable", h.TwoFactor.Enable)
			r.Post("/disable", h.TwoFactor.Disable)
			r.Post("/backup-codes", h.TwoFactor.RegenerateBackupCodes)

			// Guessing codes is throttled per client as well as per step
			r.With(throttle).Post("/verify", h.TwoFactor.Verify)
			r.With(throttle).Post("/verify-backup", h.TwoFactor.VerifyBackup)
		})

		r.Route("/api/auth/sessions", func(r chi.Router) {
			r.Get("/", h.Sessions.List)
			r.Post("/revoke-others", h.Sessions.RevokeOthers)
			r.Delete("/{id}", h.Sessions.Revoke)
		})

		r.Post("/api/auth/password-reset/change", h.Recovery.ChangePassword)
	})
}
