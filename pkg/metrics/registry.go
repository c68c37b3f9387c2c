// Package metrics provides Prometheus metrics collection for evnet components.
//
// All metrics are optional - if not initialized, components use no-op
// implementations that have zero overhead. This allows evnet to run with or
// without metrics collection enabled.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	dm := prometheus.NewDispatcherMetrics()
//	rm := prometheus.NewReactorMetrics()
//
//	// Or use nil for no-op behavior
//	d := dispatcher.New(factory, pool, srv, cfg, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry for all evnet metrics.
	// Protected by registryOnce for write-once, read-many pattern.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// It's safe to call multiple times - subsequent calls are ignored. If not
// called, GetRegistry() returns nil and all metrics constructors return
// no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry() has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
