package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/models"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// TwoFactorManager is the TOTP and backup code service
type TwoFactorManager interface {
	Setup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error)
	Enable(ctx context.Context, userID, code string) ([]string, error)
	VerifyAny(ctx context.Context, userID, code string) (string, error)
	VerifyBackupCode(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID, code string) error
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error)
	Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error)
}

// TwoFactorHandler handles second-factor HTTP requests
type TwoFactorHandler struct {
	service TwoFactorManager
	claims  *auth.ClaimManager
	logger  *slog.Logger
}

func NewTwoFactorHandler(service TwoFactorManager, claims *auth.ClaimManager, logger *slog.Logger) *TwoFactorHandler {
	return &TwoFactorHandler{
		service: service,
		claims:  claims,
		logger:  logger,
	}
}

// Setup handles POST /api/auth/2fa/setup
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	setup, err := h.service.Setup(r.Context(), principal.UserID, principal.Email)
	if err != nil {
		writeServiceError(w, h.logger, err, "Two-factor setup failed")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorSetupResponse{
		Secret:      setup.Secret,
		QRCodeURL:   setup.ProvisioningURI,
		QRCodeImage: setup.QRCodeImage,
		BackupCodes: setup.BackupCodes,
	})
}

// Enable handles POST /api/auth/2fa/enable. The session that enables the
// second factor counts as verified.
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	codes, err := h.service.Enable(r.Context(), principal.UserID, req.Token)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid verification code")
		return
	}

	h.issueClaim(w, principal)
	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorEnableResponse{
		Success:     true,
		Message:     "Two-factor authentication enabled. Store your backup codes somewhere safe.",
		BackupCodes: codes,
	})
}

// Verify handles POST /api/auth/2fa/verify. The token may be a TOTP code
// or a backup code.
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	if _, err := h.service.VerifyAny(r.Context(), principal.UserID, req.Token); err != nil {
		writeServiceError(w, h.logger, err, "Invalid verification code")
		return
	}

	h.issueClaim(w, principal)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Verification successful"})
}

// VerifyBackup handles POST /api/auth/2fa/verify-backup
func (h *TwoFactorHandler) VerifyBackup(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req BackupCodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	if err := h.service.VerifyBackupCode(r.Context(), principal.UserID, req.Code); err != nil {
		writeServiceError(w, h.logger, err, "Invalid backup code")
		return
	}

	h.issueClaim(w, principal)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Verification successful"})
}

// Disable handles POST /api/auth/2fa/disable
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	if err := h.service.Disable(r.Context(), principal.UserID, req.Token); err != nil {
		writeServiceError(w, h.logger, err, "Invalid verification code")
		return
	}

	h.claims.Clear(w)
	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Two-factor authentication disabled"})
}

// RegenerateBackupCodes handles POST /api/auth/2fa/backup-codes
func (h *TwoFactorHandler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	var req TwoFactorCodeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeServiceError(w, h.logger, err, "Invalid request")
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), principal.UserID, req.Token)
	if err != nil {
		writeServiceError(w, h.logger, err, "Invalid verification code")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, BackupCodesResponse{BackupCodes: codes})
}

// Status handles GET /api/auth/2fa/status
func (h *TwoFactorHandler) Status(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r)
	if principal == nil {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return
	}

	status, err := h.service.Status(r.Context(), principal.UserID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to load two-factor status")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorStatusResponse{
		State:                string(status.State),
		Enabled:              status.State == models.TwoFactorEnabled,
		RemainingBackupCodes: status.RemainingBackupCodes,
		EnabledAt:            status.EnabledAt,
	})
}

// issueClaim marks the session as two-factor verified. The verification
// already succeeded, so a signing failure only costs the user a re-prompt.
func (h *TwoFactorHandler) issueClaim(w http.ResponseWriter, principal *models.Principal) {
	if err := h.claims.Issue(w, principal.UserID, principal.SessionID); err != nil {
		h.logger.Error("failed to issue two-factor claim",
			slog.String("user_id", principal.UserID),
			slog.Any("error", err))
	}
}
