package config

import (
	"strings"
	"time"

	"github.com/marmos91/evnet/pkg/dispatcher"
	"github.com/marmos91/evnet/pkg/protocol/http1"
	"github.com/marmos91/evnet/pkg/reactor"
)

const (
	defaultShutdownTimeout  = 30 * time.Second
	defaultStatsLogInterval = 5 * time.Minute
	defaultMetricsPort      = 9090
	defaultBadgerPath       = "/tmp/evnet-blobs"
	defaultS3Region         = "us-east-1"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Component constructors apply the same defaults again, so a partially
//     filled Config is always usable
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyReactorDefaults(&cfg.Reactor)
	applyDispatcherDefaults(&cfg.Dispatcher)
	applyHTTPDefaults(&cfg.HTTP)
	applyStoreDefaults(&cfg.Store)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.StatsLogInterval == 0 {
		cfg.StatsLogInterval = defaultStatsLogInterval
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = defaultMetricsPort
	}
}

// applyReactorDefaults sets listener and event loop defaults.
func applyReactorDefaults(cfg *reactor.Config) {
	if cfg.Address == "" {
		cfg.Address = reactor.DefaultAddress
	}
	if cfg.Port == 0 {
		cfg.Port = reactor.DefaultPort
	}
	if cfg.Backlog == 0 {
		cfg.Backlog = reactor.DefaultBacklog
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = reactor.DefaultChunkSize
	}
	if cfg.ReadBufferSize == 0 {
		cfg.ReadBufferSize = reactor.DefaultReadBufferSize
	}
	if cfg.MaxEvents == 0 {
		cfg.MaxEvents = reactor.DefaultMaxEvents
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = reactor.DefaultIdleTimeout
	}
}

// applyDispatcherDefaults sets dispatch engine defaults.
//
// MaxThreads is left at 0, which selects the thread pool capacity.
func applyDispatcherDefaults(cfg *dispatcher.Config) {
	if cfg.MaxQueued == 0 {
		cfg.MaxQueued = dispatcher.DefaultMaxQueued
	}
	if cfg.ThreadIdleTime == 0 {
		cfg.ThreadIdleTime = dispatcher.DefaultThreadIdleTime
	}
}

// applyHTTPDefaults sets request size limits.
func applyHTTPDefaults(cfg *http1.Config) {
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = http1.DefaultMaxHeaderBytes
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = http1.DefaultMaxBodyBytes
	}
}

// applyStoreDefaults sets blob store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Defaults for every store type, so a generated file documents them all
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = defaultBadgerPath
	}
	if _, ok := cfg.Badger["gc_interval"]; !ok {
		cfg.Badger["gc_interval"] = "10m"
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = defaultS3Region
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
