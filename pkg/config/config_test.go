package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

reactor:
  port: 8081

store:
  type: "memory"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Reactor.Port != 8081 {
		t.Errorf("Expected reactor port 8081, got %d", cfg.Reactor.Port)
	}
	if cfg.Reactor.IdleTimeout != 60*time.Second {
		t.Errorf("Expected default idle_timeout 60s, got %v", cfg.Reactor.IdleTimeout)
	}
	if cfg.Dispatcher.MaxQueued != 64 {
		t.Errorf("Expected default max_queued 64, got %d", cfg.Dispatcher.MaxQueued)
	}
}

func TestLoad_Durations(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  shutdown_timeout: 5s
reactor:
  idle_timeout: -1s
dispatcher:
  thread_idle_time: 250ms
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Expected shutdown_timeout 5s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Reactor.IdleTimeout != -time.Second {
		t.Errorf("Expected negative idle_timeout to be preserved, got %v", cfg.Reactor.IdleTimeout)
	}
	if cfg.Dispatcher.ThreadIdleTime != 250*time.Millisecond {
		t.Errorf("Expected thread_idle_time 250ms, got %v", cfg.Dispatcher.ThreadIdleTime)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// An explicit missing path keeps the user's ~/.config/evnet out of the test
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Expected default store type 'memory', got %q", cfg.Store.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidValue(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
store:
  type: "postgres"
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown store type")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "WARN"
format = "json"

[store]
type = "badger"

[store.badger]
db_path = "/var/lib/evnet"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Store.Badger["db_path"] != "/var/lib/evnet" {
		t.Errorf("Expected badger db_path from file, got %v", cfg.Store.Badger["db_path"])
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Reactor.Address != "0.0.0.0" {
		t.Errorf("Expected default address '0.0.0.0', got %q", cfg.Reactor.Address)
	}
	if cfg.Reactor.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Reactor.Port)
	}
	if cfg.Dispatcher.MaxThreads != 0 {
		t.Errorf("Expected max_threads to default to pool capacity (0), got %d", cfg.Dispatcher.MaxThreads)
	}
	if cfg.HTTP.MaxHeaderBytes != 64*1024 {
		t.Errorf("Expected default max_header_bytes 64KiB, got %d", cfg.HTTP.MaxHeaderBytes)
	}
	if cfg.Server.Metrics.Enabled {
		t.Error("Expected metrics disabled by default")
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestGetConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	if dir := GetConfigDir(); dir != filepath.Join(xdg, "evnet") {
		t.Errorf("Expected %q, got %q", filepath.Join(xdg, "evnet"), dir)
	}
}

func TestConfigExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Expected no config in an empty config dir")
	}
	if _, err := InitConfig(false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if !ConfigExists() {
		t.Error("Expected config to exist after InitConfig")
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("EVNET_LOGGING_LEVEL", "ERROR")
	t.Setenv("EVNET_REACTOR_PORT", "9001")
	t.Setenv("EVNET_DISPATCHER_MAX_QUEUED", "7")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"

reactor:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Reactor.Port != 9001 {
		t.Errorf("Expected port 9001 from env var, got %d", cfg.Reactor.Port)
	}
	if cfg.Dispatcher.MaxQueued != 7 {
		t.Errorf("Expected max_queued 7 from env var, got %d", cfg.Dispatcher.MaxQueued)
	}
}
