package handlers

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// writeServiceError maps the error taxonomy to an HTTP response.
// Unexpected errors are logged and answered with a generic 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error, message string) {
	var ve *models.ValidationError
	var rl *models.RateLimitedError

	switch {
	case errors.As(err, &ve):
		pkghttp.WriteValidationErrors(w, ve.Message, ve.Reasons)
	case errors.As(err, &rl):
		writeRetryAfter(w, rl.NextAllowedTime)
		pkghttp.WriteErrorWithDetails(w, http.StatusTooManyRequests, pkghttp.CodeRateLimited,
			"Too many requests. Please try again later.", rl.NextAllowedTime.UTC().Format(time.RFC3339))
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteError(w, http.StatusBadRequest, pkghttp.CodeValidation, publicMessage(err, message))
	case errors.Is(err, models.ErrAuthentication):
		pkghttp.WriteError(w, http.StatusUnauthorized, pkghttp.CodeAuthentication, publicMessage(err, message))
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, publicMessage(err, message))
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, publicMessage(err, message))
	case errors.Is(err, models.ErrIntegrity):
		pkghttp.WriteError(w, http.StatusForbidden, pkghttp.CodeCSRFInvalid, "CSRF token missing or invalid")
	case errors.Is(err, models.ErrTransient):
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable. Please try again.")
	default:
		logger.Error(message, slog.Any("error", err))
		pkghttp.WriteInternalError(w, "An unexpected error occurred")
	}
}

// publicMessage prefers the domain error's own text over the fallback.
// Only domain errors wrapping a taxonomy sentinel reach this point.
func publicMessage(err error, fallback string) string {
	for _, known := range []error{
		models.ErrInvalidCodeFormat,
		models.ErrInvalidCode,
		models.ErrInvalidRecoveryToken,
		models.ErrInvalidCurrentPassword,
		models.ErrTwoFactorAlreadyEnabled,
		models.ErrTwoFactorNotEnabled,
		models.ErrNoPendingSetup,
		models.ErrSessionNotFound,
	} {
		if errors.Is(err, known) {
			_, msg, _ := strings.Cut(known.Error(), ": ")
			return msg
		}
	}
	return fallback
}

// writeRetryAfter sets Retry-After in whole seconds, rounded up
func writeRetryAfter(w http.ResponseWriter, next time.Time) {
	seconds := int(math.Ceil(time.Until(next).Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}

// writeActionResult writes a recovery outcome. Rate limited results answer
// 429 and rejected passwords 400; every other outcome answers 200 and
// carries its success flag, so responses do not reveal account existence.
func writeActionResult(w http.ResponseWriter, result *models.ActionResult) {
	status := http.StatusOK
	switch {
	case result.RateLimited:
		status = http.StatusTooManyRequests
		if result.NextAllowedTime != nil {
			writeRetryAfter(w, *result.NextAllowedTime)
		}
	case len(result.Errors) > 0:
		status = http.StatusBadRequest
	}
	pkghttp.WriteJSON(w, status, result)
}
