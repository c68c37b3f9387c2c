package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "INVALID" },
			wantErr: "oneof",
		},
		{
			name:    "log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "oneof",
		},
		{
			name:    "store type",
			mutate:  func(cfg *Config) { cfg.Store.Type = "postgres" },
			wantErr: "oneof",
		},
		{
			name:    "shutdown timeout",
			mutate:  func(cfg *Config) { cfg.Server.ShutdownTimeout = 0 },
			wantErr: "ShutdownTimeout",
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *Config) { cfg.Reactor.Port = 70000 },
			wantErr: "max",
		},
		{
			name:    "port zero",
			mutate:  func(cfg *Config) { cfg.Reactor.Port = 0 },
			wantErr: "reactor.port",
		},
		{
			name:    "negative queue",
			mutate:  func(cfg *Config) { cfg.Dispatcher.MaxQueued = -1 },
			wantErr: "MaxQueued",
		},
		{
			name: "burst without rate",
			mutate: func(cfg *Config) {
				cfg.Reactor.AcceptBurst = 10
				cfg.Reactor.AcceptRate = 0
			},
			wantErr: "accept_burst",
		},
		{
			name: "metrics port conflict",
			mutate: func(cfg *Config) {
				cfg.Server.Metrics.Enabled = true
				cfg.Server.Metrics.Port = cfg.Reactor.Port
			},
			wantErr: "conflicts",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(cfg *Config) { cfg.Store.Type = "s3" },
			wantErr: "bucket",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_MetricsOnDistinctAddress(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Reactor.Address = "127.0.0.1"
	cfg.Server.Metrics.Enabled = true
	cfg.Server.Metrics.Address = "127.0.0.2"
	cfg.Server.Metrics.Port = cfg.Reactor.Port

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected distinct addresses to allow the same port, got: %v", err)
	}
}

func TestValidate_LowercaseLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase level to be accepted, got: %v", err)
	}
}
