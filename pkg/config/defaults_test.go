package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "debug"
	cfg.Server.ShutdownTimeout = 3 * time.Second
	cfg.Reactor.Port = -1
	cfg.Reactor.IdleTimeout = -1
	cfg.Dispatcher.MaxThreads = 8
	cfg.HTTP.MaxBodyBytes = 1024
	cfg.Store.Type = "badger"
	cfg.Store.Badger = map[string]any{"db_path": "/data"}

	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Expected shutdown timeout preserved, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Reactor.Port != -1 {
		t.Errorf("Expected ephemeral port preserved, got %d", cfg.Reactor.Port)
	}
	if cfg.Reactor.IdleTimeout != -1 {
		t.Errorf("Expected disabled idle timeout preserved, got %v", cfg.Reactor.IdleTimeout)
	}
	if cfg.Dispatcher.MaxThreads != 8 {
		t.Errorf("Expected max_threads preserved, got %d", cfg.Dispatcher.MaxThreads)
	}
	if cfg.HTTP.MaxBodyBytes != 1024 {
		t.Errorf("Expected max_body_bytes preserved, got %d", cfg.HTTP.MaxBodyBytes)
	}
	if cfg.Store.Badger["db_path"] != "/data" {
		t.Errorf("Expected badger db_path preserved, got %v", cfg.Store.Badger["db_path"])
	}
}

func TestApplyDefaults_StoreMaps(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Store.Memory == nil || cfg.Store.Badger == nil || cfg.Store.S3 == nil {
		t.Fatal("Expected all store option maps to be initialized")
	}
	if cfg.Store.Badger["db_path"] != defaultBadgerPath {
		t.Errorf("Expected default badger path, got %v", cfg.Store.Badger["db_path"])
	}
	if cfg.Store.S3["region"] != defaultS3Region {
		t.Errorf("Expected default S3 region, got %v", cfg.Store.S3["region"])
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := GetDefaultConfig()
	before := *cfg

	ApplyDefaults(cfg)

	if cfg.Reactor != before.Reactor {
		t.Errorf("Expected reactor config unchanged, got %+v", cfg.Reactor)
	}
	if cfg.Dispatcher != before.Dispatcher {
		t.Errorf("Expected dispatcher config unchanged, got %+v", cfg.Dispatcher)
	}
	if cfg.Server != before.Server {
		t.Errorf("Expected server config unchanged, got %+v", cfg.Server)
	}
}
