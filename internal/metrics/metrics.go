// Package metrics defines the Prometheus collectors exported by the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stellar-payment-gateway/internal/ledger"
)

const namespace = "payment_gateway"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
	GatewayRequests     *prometheus.CounterVec
	GatewayDuration     *prometheus.HistogramVec
	SubmissionsAccepted *prometheus.CounterVec
	SubmissionsFinal    *prometheus.CounterVec
	Resubmissions       *prometheus.CounterVec
	SubmissionsInFlight prometheus.Gauge
	NotificationLookups *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Ledger gateway calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		GatewayDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Ledger gateway call latency, including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		SubmissionsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Submission requests by transaction type and admission result.",
		}, []string{"type", "result"}),
		SubmissionsFinal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_finalized_total",
			Help:      "Submissions reaching a final state, by state and result code.",
		}, []string{"state", "code"}),
		Resubmissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resubmissions_total",
			Help:      "Envelope resubmissions by reason.",
		}, []string{"reason"}),
		SubmissionsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "submissions_in_flight",
			Help:      "Submissions currently driven or monitored by this process.",
		}),
		NotificationLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_lookups_total",
			Help:      "Notification lookups by outcome.",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// ObserveGatewayCall implements ledger.Observer.
func (m *Metrics) ObserveGatewayCall(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(op, gatewayOutcome(err)).Inc()
	m.GatewayDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func gatewayOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ledger.IsNotFound(err):
		return "not_found"
	case ledger.IsTransient(err):
		return "transient"
	case ledger.IsRejected(err):
		return "rejected"
	default:
		return "error"
	}
}

func (m *Metrics) SubmissionAdmitted(txType, result string) {
	if m == nil {
		return
	}
	m.SubmissionsAccepted.WithLabelValues(txType, result).Inc()
}

func (m *Metrics) SubmissionFinalized(state, code string) {
	if m == nil {
		return
	}
	m.SubmissionsFinal.WithLabelValues(state, code).Inc()
}

func (m *Metrics) Resubmitted(reason string) {
	if m == nil {
		return
	}
	m.Resubmissions.WithLabelValues(reason).Inc()
}

func (m *Metrics) DriverStarted() {
	if m == nil {
		return
	}
	m.SubmissionsInFlight.Inc()
}

func (m *Metrics) DriverStopped() {
	if m == nil {
		return
	}
	m.SubmissionsInFlight.Dec()
}

func (m *Metrics) NotificationLookup(outcome string) {
	if m == nil {
		return
	}
	m.NotificationLookups.WithLabelValues(outcome).Inc()
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
