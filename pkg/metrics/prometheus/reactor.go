package prometheus

import (
	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// reactorMetrics is the Prometheus implementation of metrics.ReactorMetrics.
type reactorMetrics struct {
	accepted        prometheus.Counter
	throttled       prometheus.Counter
	closed          *prometheus.CounterVec
	openConnections prometheus.Gauge
	bytes           *prometheus.CounterVec
}

// NewReactorMetrics creates a new Prometheus-backed ReactorMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewReactorMetrics() metrics.ReactorMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopReactorMetrics()
	}

	reg := metrics.GetRegistry()

	return &reactorMetrics{
		accepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "evnet_connections_accepted_total",
				Help: "Total number of accepted connections",
			},
		),
		throttled: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "evnet_connections_throttled_total",
				Help: "Total number of connections closed by accept throttling",
			},
		),
		closed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evnet_connections_closed_total",
				Help: "Total number of closed connections by reason",
			},
			[]string{"reason"},
		),
		openConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "evnet_connections_open",
				Help: "Current number of open connections",
			},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evnet_bytes_transferred_total",
				Help: "Total bytes transferred over client sockets",
			},
			[]string{"direction"}, // read or write
		),
	}
}

func (m *reactorMetrics) RecordConnectionAccepted() {
	m.accepted.Inc()
}

func (m *reactorMetrics) RecordConnectionThrottled() {
	m.throttled.Inc()
}

func (m *reactorMetrics) RecordConnectionClosed(reason string) {
	m.closed.WithLabelValues(reason).Inc()
}

func (m *reactorMetrics) SetOpenConnections(count int) {
	m.openConnections.Set(float64(count))
}

func (m *reactorMetrics) RecordBytes(direction string, n int) {
	m.bytes.WithLabelValues(direction).Add(float64(n))
}
