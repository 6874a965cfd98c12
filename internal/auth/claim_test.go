package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClaimKey = "claim-signing-key-for-tests-0123456789"

func TestClaimManager_SignAndParse(t *testing.T) {
	m := NewClaimManager(testClaimKey, 24*time.Hour, CookieConfig{})

	signed, claim, err := m.Sign("user-1", "session-1")
	require.NoError(t, err)

	parsed, err := m.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", parsed.UserID)
	assert.Equal(t, "session-1", parsed.SessionID)
	assert.WithinDuration(t, claim.ExpiresAt, parsed.ExpiresAt, time.Second)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), parsed.ExpiresAt, 5*time.Second)
}

func TestClaimManager_RejectsForgedClaims(t *testing.T) {
	m := NewClaimManager(testClaimKey, time.Hour, CookieConfig{})

	forger := NewClaimManager("a-different-key-entirely-0123456789", time.Hour, CookieConfig{})
	forged, _, err := forger.Sign("user-1", "session-1")
	require.NoError(t, err)

	_, err = m.Parse(forged)
	assert.Error(t, err)

	// an unsigned token with the same payload
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &twoFactorClaims{
		UserID:    "user-1",
		SessionID: "session-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    claimIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	value, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Parse(value)
	assert.Error(t, err)

	_, err = m.Parse("not-a-token")
	assert.Error(t, err)
}

func TestClaimManager_RejectsExpired(t *testing.T) {
	m := NewClaimManager(testClaimKey, time.Hour, CookieConfig{})
	signed, _, err := m.Sign("user-1", "session-1")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = m.Parse(signed)
	assert.Error(t, err)
}

func TestClaimManager_SignRequiresBinding(t *testing.T) {
	m := NewClaimManager(testClaimKey, time.Hour, CookieConfig{})
	_, _, err := m.Sign("", "session-1")
	assert.Error(t, err)
	_, _, err = m.Sign("user-1", "")
	assert.Error(t, err)
}

func TestClaimManager_CookieRoundTrip(t *testing.T) {
	m := NewClaimManager(testClaimKey, 24*time.Hour, CookieConfig{Secure: true})

	rec := httptest.NewRecorder()
	require.NoError(t, m.Issue(rec, "user-1", "session-1"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, TwoFactorClaimCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 86400, cookies[0].MaxAge)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	req.AddCookie(cookies[0])

	claim, err := m.FromRequest(req)
	require.NoError(t, err)
	assert.True(t, claim.Satisfies("user-1", "session-1", time.Now()))
	assert.False(t, claim.Satisfies("user-1", "session-2", time.Now()))
}

func TestClaimManager_FromRequestMissingCookie(t *testing.T) {
	m := NewClaimManager(testClaimKey, time.Hour, CookieConfig{})
	claim, err := m.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NoError(t, err)
	assert.Nil(t, claim)
}

func TestClaimManager_Clear(t *testing.T) {
	m := NewClaimManager(testClaimKey, time.Hour, CookieConfig{})
	rec := httptest.NewRecorder()

	m.Clear(rec)

	header := rec.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(header, TwoFactorClaimCookie+"="))
	assert.Contains(t, header, "Max-Age=0")
}
