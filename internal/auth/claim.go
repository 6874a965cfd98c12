package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BradenHooton/portalguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const claimIssuer = "portalguard-2fa"

type twoFactorClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// ClaimManager signs and reads the 2fa_verified cookie. The claim is an
// HS256 JWT bound to one user and one session.
type ClaimManager struct {
	key     []byte
	ttl     time.Duration
	cookies CookieConfig
	now     func() time.Time
}

func NewClaimManager(signingKey string, ttl time.Duration, cookies CookieConfig) *ClaimManager {
	return &ClaimManager{
		key:     []byte(signingKey),
		ttl:     ttl,
		cookies: cookies,
		now:     time.Now,
	}
}

// Sign returns a signed claim for the user's session
func (m *ClaimManager) Sign(userID, sessionID string) (string, *models.TwoFactorVerificationClaim, error) {
	if userID == "" || sessionID == "" {
		return "", nil, errors.New("claim requires user and session")
	}

	now := m.now()
	claim := &models.TwoFactorVerificationClaim{
		UserID:     userID,
		SessionID:  sessionID,
		VerifiedAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &twoFactorClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    claimIssuer,
			IssuedAt:  jwt.NewNumericDate(claim.VerifiedAt),
			ExpiresAt: jwt.NewNumericDate(claim.ExpiresAt),
		},
	})

	signed, err := token.SignedString(m.key)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign 2fa claim: %w", err)
	}
	return signed, claim, nil
}

// Parse verifies the signature and expiry of a signed claim
func (m *ClaimManager) Parse(value string) (*models.TwoFactorVerificationClaim, error) {
	claims := &twoFactorClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(claimIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid 2fa claim: %w", err)
	}

	claim := &models.TwoFactorVerificationClaim{
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		claim.VerifiedAt = claims.IssuedAt.Time
	}
	return claim, nil
}

// Issue sets the claim cookie for the user's session
func (m *ClaimManager) Issue(w http.ResponseWriter, userID, sessionID string) error {
	signed, _, err := m.Sign(userID, sessionID)
	if err != nil {
		return err
	}
	setHTTPOnlyCookie(w, TwoFactorClaimCookie, signed, m.ttl, http.SameSiteLaxMode, m.cookies)
	return nil
}

// FromRequest reads and verifies the claim cookie. A missing cookie returns (nil, nil).
func (m *ClaimManager) FromRequest(r *http.Request) (*models.TwoFactorVerificationClaim, error) {
	value := cookieValue(r, TwoFactorClaimCookie)
	if value == "" {
		return nil, nil
	}
	return m.Parse(value)
}

// Clear removes the claim cookie
func (m *ClaimManager) Clear(w http.ResponseWriter) {
	clearCookie(w, TwoFactorClaimCookie, http.SameSiteLaxMode, m.cookies)
}
