package handlers

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/portalguard/internal/auth"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// CSRFHandler hands out double-submit token pairs
type CSRFHandler struct {
	csrf   *auth.CSRFService
	logger *slog.Logger
}

func NewCSRFHandler(csrf *auth.CSRFService, logger *slog.Logger) *CSRFHandler {
	return &CSRFHandler{csrf: csrf, logger: logger}
}

// Token handles GET|POST /api/csrf-token
func (h *CSRFHandler) Token(w http.ResponseWriter, r *http.Request) {
	pair, err := h.csrf.Issue(w)
	if err != nil {
		h.logger.Error("failed to issue CSRF token", slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Failed to issue CSRF token")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, CSRFTokenResponse{Token: pair.Token})
}
