package logger

import (
	"log/slog"
	"strings"
)

// MaskEmail masks an email address for logs and error reports.
// The first two characters of the local part are kept: "alice@example.com"
// becomes "al***@example.com".
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}

	local := []rune(email[:at])
	domain := email[at+1:]

	keep := 2
	if len(local) < keep {
		keep = len(local)
	}

	return string(local[:keep]) + "***@" + domain
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"email",
	"auth",
	"csrf",
	"redirect",
}

// SanitizeQueryString reports whether a raw query carries a sensitive
// parameter and should be redacted as a whole
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
