package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.TwoFactorVerification("totp", true)
	r.TwoFactorVerification("backup_code", false)
	r.TwoFactorVerification("backup_code", false)
	r.CSRFRejection("missing_header")
	r.RateGateDecision("password_reset", false)
	r.TwoFactorGateDecision("blocked")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.twoFactorVerifications.WithLabelValues("totp", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.twoFactorVerifications.WithLabelValues("backup_code", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.csrfRejections.WithLabelValues("missing_header")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rateGateDecisions.WithLabelValues("password_reset", "limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.twoFactorGateDecisions.WithLabelValues("blocked")))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.TwoFactorVerification("totp", true)
		r.CSRFRejection("x")
		r.RateGateDecision("a", true)
		r.TwoFactorGateDecision("pass")
		r.ObserveRequest("GET", "/", 200, time.Millisecond)
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveRequest(http.MethodPost, "/api/auth/2fa/verify", http.StatusOK, 10*time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "portalguard_http_requests_total")
	assert.Contains(t, string(body), `route="/api/auth/2fa/verify"`)
}
