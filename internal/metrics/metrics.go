package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portalguard"

// Recorder holds the security layer's collectors. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	twoFactorVerifications *prometheus.CounterVec
	csrfRejections         *prometheus.CounterVec
	rateGateDecisions      *prometheus.CounterVec
	twoFactorGateDecisions *prometheus.CounterVec
	requestCount           *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
}

// New creates a Recorder with its own registry
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		twoFactorVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "two_factor_verifications_total",
			Help:      "Second-factor verification attempts by method and result.",
		}, []string{"method", "result"}),
		csrfRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "csrf_rejections_total",
			Help:      "State-changing requests rejected by CSRF validation.",
		}, []string{"reason"}),
		rateGateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_gate_decisions_total",
			Help:      "Rate-limited action gate decisions.",
		}, []string{"action", "result"}),
		twoFactorGateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "two_factor_gate_decisions_total",
			Help:      "Two-factor gate decisions on protected routes.",
		}, []string{"result"}),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.twoFactorVerifications,
		r.csrfRejections,
		r.rateGateDecisions,
		r.twoFactorGateDecisions,
		r.requestCount,
		r.requestDuration,
	)

	return r
}

// Handler exposes the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) TwoFactorVerification(method string, success bool) {
	if r == nil {
		return
	}
	r.twoFactorVerifications.WithLabelValues(method, result(success)).Inc()
}

func (r *Recorder) CSRFRejection(reason string) {
	if r == nil {
		return
	}
	r.csrfRejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) RateGateDecision(action string, allowed bool) {
	if r == nil {
		return
	}
	label := "allowed"
	if !allowed {
		label = "limited"
	}
	r.rateGateDecisions.WithLabelValues(action, label).Inc()
}

// TwoFactorGateDecision records pass, blocked or error
func (r *Recorder) TwoFactorGateDecision(decision string) {
	if r == nil {
		return
	}
	r.twoFactorGateDecisions.WithLabelValues(decision).Inc()
}

func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	code := strconv.Itoa(status)
	r.requestCount.WithLabelValues(method, route, code).Inc()
	r.requestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
