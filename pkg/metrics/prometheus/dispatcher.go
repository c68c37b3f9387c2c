// Package prometheus provides Prometheus-backed implementations of the
// interfaces in package metrics.
package prometheus

import (
	"time"

	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// dispatcherMetrics is the Prometheus implementation of metrics.DispatcherMetrics.
type dispatcherMetrics struct {
	enqueued          prometheus.Counter
	refused           prometheus.Counter
	queueDepth        prometheus.Gauge
	workers           prometheus.Gauge
	activeConnections prometheus.Gauge
	steps             *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
}

// NewDispatcherMetrics creates a new Prometheus-backed DispatcherMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewDispatcherMetrics() metrics.DispatcherMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopDispatcherMetrics()
	}

	reg := metrics.GetRegistry()

	return &dispatcherMetrics{
		enqueued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "evnet_dispatcher_enqueued_total",
				Help: "Total number of work items accepted into the dispatch queue",
			},
		),
		refused: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "evnet_dispatcher_refused_total",
				Help: "Total number of work items refused because the queue was full",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "evnet_dispatcher_queue_depth",
				Help: "Current number of queued work items",
			},
		),
		workers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "evnet_dispatcher_workers",
				Help: "Current number of live worker goroutines",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "evnet_dispatcher_active_connections",
				Help: "Current number of handler steps in flight",
			},
		),
		steps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evnet_dispatcher_steps_total",
				Help: "Total number of handler steps by outcome",
			},
			[]string{"outcome"},
		),
		stepDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "evnet_dispatcher_step_duration_seconds",
				Help: "Duration of a single handler step in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.0005, // 500us
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
				},
			},
			[]string{"outcome"},
		),
	}
}

func (m *dispatcherMetrics) RecordEnqueued() {
	m.enqueued.Inc()
}

func (m *dispatcherMetrics) RecordRefused() {
	m.refused.Inc()
}

func (m *dispatcherMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *dispatcherMetrics) SetWorkers(count int) {
	m.workers.Set(float64(count))
}

func (m *dispatcherMetrics) SetActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

func (m *dispatcherMetrics) RecordStep(outcome string, duration time.Duration) {
	m.steps.WithLabelValues(outcome).Inc()
	m.stepDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}
