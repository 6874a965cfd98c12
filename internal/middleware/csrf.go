package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/portalguard/internal/auth"
	"github.com/BradenHooton/portalguard/internal/metrics"
	pkghttp "github.com/BradenHooton/portalguard/pkg/http"
)

// CSRFProtection validates the double-submit token on state-changing
// requests (POST, PUT, PATCH, DELETE) outside the exempt prefixes.
// A failure answers 403 CSRF_INVALID. A successful response gets a fresh
// token pair, so every token is good for one state change.
func CSRFProtection(csrf *auth.CSRFService, exempt []string, logger *slog.Logger, recorder *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStateChangingMethod(r.Method) || auth.PathMatchesAny(r.URL.Path, exempt) {
				next.ServeHTTP(w, r)
				return
			}

			if err := csrf.Validate(r); err != nil {
				reason := "invalid"
				var csrfErr *auth.CSRFError
				if errors.As(err, &csrfErr) {
					reason = csrfErr.Reason
				}
				recorder.CSRFRejection(reason)

				attrs := []any{
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("reason", reason),
				}
				if principal := auth.GetPrincipal(r); principal != nil {
					attrs = append(attrs, slog.String("user_id", principal.UserID))
				}
				logger.Warn("CSRF token validation failed", attrs...)

				pkghttp.WriteError(w, http.StatusForbidden, pkghttp.CodeCSRFInvalid, "CSRF token missing or invalid")
				return
			}

			rw := &rotatingWriter{ResponseWriter: w, csrf: csrf, logger: logger}
			next.ServeHTTP(rw, r)

			// a handler that writes nothing still answers 200
			if !rw.wroteHeader {
				rw.WriteHeader(http.StatusOK)
			}
		})
	}
}

// rotatingWriter issues a new token pair just before a successful status
// line is written
type rotatingWriter struct {
	http.ResponseWriter
	csrf        *auth.CSRFService
	logger      *slog.Logger
	wroteHeader bool
}

func (rw *rotatingWriter) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true

	if status < http.StatusBadRequest {
		if _, err := rw.csrf.Issue(rw.ResponseWriter); err != nil {
			rw.logger.Error("failed to rotate CSRF token", slog.Any("error", err))
		}
	}
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *rotatingWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *rotatingWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// isStateChangingMethod checks if the HTTP method modifies state
func isStateChangingMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
		return true
	default:
		return false
	}
}
