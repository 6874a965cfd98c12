package auth

import (
	"net/http"
	"strings"
	"time"
)

// Cookie names
const (
	AccessTokenCookie    = "access_token"
	CSRFTokenCookie      = "csrf-token"
	CSRFSecretCookie     = "csrf-secret"
	TwoFactorClaimCookie = "2fa_verified"

	CSRFHeader = "X-CSRF-Token"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain string // Empty string = current host only
	Secure bool   // HTTPS only
}

// setHTTPOnlyCookie sets an httpOnly cookie that expires after ttl
func setHTTPOnlyCookie(w http.ResponseWriter, name, value string, ttl time.Duration, sameSite http.SameSite, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: sameSite,
	})
}

// clearCookie expires a cookie immediately
func clearCookie(w http.ResponseWriter, name string, sameSite http.SameSite, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: sameSite,
	})
}

// cookieValue returns a non-empty cookie value or ""
func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// PathHasPrefix reports whether path equals prefix or lies beneath it
// ("/settings" matches "/settings" and "/settings/profile", not "/settingsx")
func PathHasPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// PathMatchesAny reports whether path lies beneath any of prefixes
func PathMatchesAny(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if PathHasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// SetAccessTokenCookie stores the access token for browser clients
func SetAccessTokenCookie(w http.ResponseWriter, token string, ttl time.Duration, config CookieConfig) {
	setHTTPOnlyCookie(w, AccessTokenCookie, token, ttl, http.SameSiteLaxMode, config)
}

// ClearAccessTokenCookie removes the access token cookie
func ClearAccessTokenCookie(w http.ResponseWriter, config CookieConfig) {
	clearCookie(w, AccessTokenCookie, http.SameSiteLaxMode, config)
}
