package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/models"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// PasswordResetFlows are the password reset and change operations
type PasswordResetFlows interface {
	RequestReset(ctx context.Context, email, ipAddress string) *models.ActionResult
	ValidateToken(ctx context.Context, token string) bool
	UpdatePassword(ctx context.Context, token, newPassword, ipAddress string) *models.ActionResult
	ChangePassword(ctx context.Context, principal *models.Principal, currentPassword, newPassword, ipAddress string) *models.ActionResult
}

// EmailVerificationFlows are the email verification operations
type EmailVerificationFlows interface {
	ResendVerification(ctx context.Context, email, ipAddress string) *models.ActionResult
	VerifyEmail(ctx context.Context, token string) *models.ActionResult
}

// RecoveryHandler serves the credential recovery endpoints
type RecoveryHandler struct {
	resets       PasswordResetFlows
	verification EmailVerificationFlows
	timing       *auth.TimingDelay
	ipConfig     *pkghttp.IPConfig
	logger       *slog.Logger
}

func NewRecoveryHandler(
	resets PasswordResetFlows,
	verification EmailVerificationFlows,
	timing *auth.TimingDelay,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) *RecoveryHandler {
	return &RecoveryHandler{
		resets:       resets,
		verification: verification,
		timing:       timing,
		ipConfig:     ipConfig,
		logger:       logger,
	}
}

// RequestPasswordReset handles POST /api/auth/password-reset/request.
// The response is padded so known and unknown emails take as long.
func (h *RecoveryHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EmailRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	result := h.resets.RequestReset(r.Context(), req.Email, ip)

	h.timing.WaitFrom(r.Context(), start, result.Success)
	writeActionResult(w, result)
}

// ValidateResetToken handles POST /api/auth/password-reset/validate
func (h *RecoveryHandler) ValidateResetToken(w http.ResponseWriter, r *http.Request) {
	var req ResetTokenRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ResetTokenResponse{
		Valid: h.resets.ValidateToken(r.Context(), req.Token),
	})
}

// UpdatePassword handles POST /api/auth/password-reset/update
func (h *RecoveryHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req UpdatePasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	writeActionResult(w, h.resets.UpdatePassword(r.Context(), req.Token, req.Password, ip))
}

// ChangePassword handles POST /api/auth/password-reset/change
func (h *RecoveryHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req ChangePasswordRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	writeActionResult(w, h.resets.ChangePassword(r.Context(), principal, req.CurrentPassword, req.NewPassword, ip))
}

// ResendVerification handles POST /api/auth/resend-verification
func (h *RecoveryHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EmailRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	result := h.verification.ResendVerification(r.Context(), req.Email, ip)

	h.timing.WaitFrom(r.Context(), start, result.Success)
	writeActionResult(w, result)
}

// VerifyEmail handles GET /api/auth/verify-email?token=
func (h *RecoveryHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		pkghttp.WriteBadRequest(w, "token is required")
		return
	}

	result := h.verification.VerifyEmail(r.Context(), token)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: result.Success, Message: result.Message})
}
