package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeReused  = "reused"
)

// Metrics holds the Prometheus collectors for the session client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RefreshTotal         *prometheus.CounterVec
	RefreshWaiters       prometheus.Gauge
	RetriedRequests      prometheus.Counter
	SessionInvalidations *prometheus.CounterVec
	MockRequests         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RefreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coworking_token_refresh_total",
			Help: "Refresh token exchanges by outcome",
		}, []string{"outcome"}),
		RefreshWaiters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "coworking_token_refresh_waiters",
			Help: "Requests currently waiting on an in-flight refresh",
		}),
		RetriedRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "coworking_requests_retried_total",
			Help: "Requests re-issued after a token refresh",
		}),
		SessionInvalidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coworking_session_invalidations_total",
			Help: "Session clears by cause",
		}, []string{"cause"}),
		MockRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coworking_mock_requests_total",
			Help: "Requests served by the mock coworking API by route and status",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) IncRefresh(outcome string) {
	if m == nil {
		return
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddRefreshWaiters(delta float64) {
	if m == nil {
		return
	}
	m.RefreshWaiters.Add(delta)
}

func (m *Metrics) IncRetried() {
	if m == nil {
		return
	}
	m.RetriedRequests.Inc()
}

func (m *Metrics) IncInvalidation(cause string) {
	if m == nil {
		return
	}
	m.SessionInvalidations.WithLabelValues(cause).Inc()
}

func (m *Metrics) IncMockRequest(route, status string) {
	if m == nil {
		return
	}
	m.MockRequests.WithLabelValues(route, status).Inc()
}
