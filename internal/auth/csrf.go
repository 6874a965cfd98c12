package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
)

// CSRF rejection reasons
const (
	CSRFReasonMissingHeader = "missing_header"
	CSRFReasonMissingCookie = "missing_cookie"
	CSRFReasonMalformed     = "malformed_cookie"
	CSRFReasonExpired       = "expired"
	CSRFReasonMismatch      = "mismatch"
)

// CSRFError is a CSRF validation failure. It matches models.ErrCSRFInvalid.
type CSRFError struct {
	Reason string
}

func (e *CSRFError) Error() string {
	return "csrf token invalid: " + e.Reason
}

func (e *CSRFError) Unwrap() error {
	return models.ErrCSRFInvalid
}

// CSRFService issues and validates double-submit CSRF token pairs.
// The client receives the token; the hash and secret stay in httpOnly cookies.
type CSRFService struct {
	ttl     time.Duration
	cookies CookieConfig
	now     func() time.Time
}

func NewCSRFService(ttl time.Duration, cookies CookieConfig) *CSRFService {
	return &CSRFService{
		ttl:     ttl,
		cookies: cookies,
		now:     time.Now,
	}
}

// NewPair mints a fresh token pair
func (s *CSRFService) NewPair() (*models.CSRFTokenPair, error) {
	token, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate csrf token: %w", err)
	}
	secret, err := randomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate csrf secret: %w", err)
	}

	return &models.CSRFTokenPair{
		Token:    token,
		Secret:   secret,
		Hash:     csrfHash(token, secret),
		IssuedAt: s.now(),
	}, nil
}

// Issue mints a pair, stores hash and secret in cookies and exposes the
// token in the X-CSRF-Token response header
func (s *CSRFService) Issue(w http.ResponseWriter) (*models.CSRFTokenPair, error) {
	pair, err := s.NewPair()
	if err != nil {
		return nil, err
	}

	hashValue := pair.Hash + "." + strconv.FormatInt(pair.IssuedAt.Unix(), 10)
	setHTTPOnlyCookie(w, CSRFTokenCookie, hashValue, s.ttl, http.SameSiteStrictMode, s.cookies)
	setHTTPOnlyCookie(w, CSRFSecretCookie, pair.Secret, s.ttl, http.SameSiteStrictMode, s.cookies)
	w.Header().Set(CSRFHeader, pair.Token)

	return pair, nil
}

// Validate checks the X-CSRF-Token header against the cookie pair
func (s *CSRFService) Validate(r *http.Request) error {
	token := strings.TrimSpace(r.Header.Get(CSRFHeader))
	if token == "" {
		return &CSRFError{Reason: CSRFReasonMissingHeader}
	}

	hashCookie := cookieValue(r, CSRFTokenCookie)
	secret := cookieValue(r, CSRFSecretCookie)
	if hashCookie == "" || secret == "" {
		return &CSRFError{Reason: CSRFReasonMissingCookie}
	}

	storedHash, issuedRaw, ok := strings.Cut(hashCookie, ".")
	if !ok {
		return &CSRFError{Reason: CSRFReasonMalformed}
	}
	issuedUnix, err := strconv.ParseInt(issuedRaw, 10, 64)
	if err != nil {
		return &CSRFError{Reason: CSRFReasonMalformed}
	}
	if s.now().After(time.Unix(issuedUnix, 0).Add(s.ttl)) {
		return &CSRFError{Reason: CSRFReasonExpired}
	}

	expected := csrfHash(token, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(storedHash)) != 1 {
		return &CSRFError{Reason: CSRFReasonMismatch}
	}

	return nil
}

// csrfHash returns hex(SHA256(token || secret))
func csrfHash(token, secret string) string {
	sum := sha256.Sum256([]byte(token + secret))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
