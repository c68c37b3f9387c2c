package prometheus

import (
	"time"

	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics is the Prometheus implementation of metrics.StoreMetrics.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewStoreMetrics creates a new Prometheus-backed StoreMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewStoreMetrics() metrics.StoreMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopStoreMetrics()
	}

	reg := metrics.GetRegistry()

	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evnet_store_operations_total",
				Help: "Total number of blob store operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "evnet_store_operation_duration_seconds",
				Help: "Duration of blob store operations in seconds",
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.5,    // 500ms
					1.0,    // 1s
					5.0,    // 5s
				},
			},
			[]string{"backend", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "evnet_store_bytes_transferred_total",
				Help: "Total bytes transferred by blob store operations",
			},
			[]string{"backend", "operation"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(backend, operation string, duration time.Duration, bytes int64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(backend, operation, status).Inc()
	m.operationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if bytes > 0 {
		m.bytesTransferred.WithLabelValues(backend, operation).Add(float64(bytes))
	}
}
