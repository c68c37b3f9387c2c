package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/evnet/pkg/dispatcher"
	"github.com/marmos91/evnet/pkg/protocol/http1"
	"github.com/marmos91/evnet/pkg/reactor"
	"github.com/spf13/viper"
)

// Config represents the complete evnet configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics exposition)
//   - Readiness source (listener, epoll loop, idle eviction)
//   - Dispatch engine (workers, queue bound)
//   - HTTP/1.1 request limits
//   - Blob store selection and configuration (store-specific)
//
// Configuration sources (in order of precedence):
//  1. Environment variables (EVNET_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Store
// section contains type-specific maps (e.g. store.badger, store.s3) and only
// the map matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Reactor configures the listener and the event loop
	Reactor reactor.Config `mapstructure:"reactor" yaml:"reactor"`

	// Dispatcher configures the worker pool and the work queue
	Dispatcher dispatcher.Config `mapstructure:"dispatcher" yaml:"dispatcher"`

	// HTTP bounds accepted requests
	HTTP http1.Config `mapstructure:"http" yaml:"http"`

	// Store specifies the blob store type and type-specific configuration
	Store StoreConfig `mapstructure:"store" yaml:"store"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// StatsLogInterval is how often engine statistics are logged.
	// 0 disables periodic logging.
	StatsLogInterval time.Duration `mapstructure:"stats_log_interval" validate:"min=0" yaml:"stats_log_interval"`

	// Metrics controls the Prometheus exposition endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig controls the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Address to bind the metrics server to. Empty binds all interfaces.
	Address string `mapstructure:"address" yaml:"address"`

	// Port for the metrics HTTP server
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// StoreConfig specifies blob store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type StoreConfig struct {
	// Type specifies which blob store implementation to use
	// Valid values: memory, badger, s3
	Type string `mapstructure:"type" validate:"required,oneof=memory badger s3" yaml:"type"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (EVNET_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: EVNET_LOGGING_LEVEL=DEBUG, EVNET_REACTOR_PORT=9000
	v.SetEnvPrefix("EVNET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper already knows about.
	bindEnvKeys(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/evnet/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys lists the scalar keys that can be set from the environment.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.stats_log_interval",
	"server.metrics.enabled",
	"server.metrics.address",
	"server.metrics.port",
	"reactor.address",
	"reactor.port",
	"reactor.backlog",
	"reactor.idle_timeout",
	"reactor.accept_rate",
	"reactor.accept_burst",
	"dispatcher.max_threads",
	"dispatcher.max_queued",
	"dispatcher.thread_idle_time",
	"http.max_header_bytes",
	"http.max_body_bytes",
	"store.type",
}

func bindEnvKeys(v *viper.Viper) {
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "evnet")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "evnet")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
