package metrics_test

import (
	"testing"

	"github.com/jrsteele09/go-coworking-session/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.IncRefresh(metrics.OutcomeSuccess)
		m.AddRefreshWaiters(1)
		m.IncRetried()
		m.IncInvalidation("logout")
		m.IncMockRequest("/x", "200")
	})
}

func TestCounters(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.IncRefresh(metrics.OutcomeSuccess)
	m.IncRefresh(metrics.OutcomeSuccess)
	m.IncRefresh(metrics.OutcomeFailure)
	m.AddRefreshWaiters(3)
	m.AddRefreshWaiters(-1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues(metrics.OutcomeSuccess)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.RefreshTotal.WithLabelValues(metrics.OutcomeFailure)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.RefreshWaiters))
}
