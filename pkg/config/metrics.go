package config

import (
	"github.com/marmos91/evnet/pkg/metrics"
	promMetrics "github.com/marmos91/evnet/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Dispatcher is the metrics collector for the dispatch engine (never nil)
	Dispatcher metrics.DispatcherMetrics

	// Reactor is the metrics collector for the readiness source (never nil)
	Reactor metrics.ReactorMetrics

	// Store is the metrics collector for the blob store (never nil)
	Store metrics.StoreMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			Dispatcher: metrics.NewNoopDispatcherMetrics(),
			Reactor:    metrics.NewNoopReactorMetrics(),
			Store:      metrics.NewNoopStoreMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Address: cfg.Server.Metrics.Address,
		Port:    cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:     server,
		Dispatcher: promMetrics.NewDispatcherMetrics(),
		Reactor:    promMetrics.NewReactorMetrics(),
		Store:      promMetrics.NewStoreMetrics(),
	}
}
