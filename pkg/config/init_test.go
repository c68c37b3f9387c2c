package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// isolateConfigDir points the default config location at a temp dir.
func isolateConfigDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return tmpDir
}

func TestInitConfig_Success(t *testing.T) {
	home := isolateConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if want := filepath.Join(home, ".config", "evnet", "config.yaml"); configPath != want {
		t.Errorf("Expected config at %s, got %s", want, configPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# evnet Configuration File",
		"logging:",
		"server:",
		"reactor:",
		"dispatcher:",
		"http:",
		"store:",
	}
	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	isolateConfigDir(t)

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfig_ForceOverwrite(t *testing.T) {
	isolateConfigDir(t)

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("# Modified"), 0644); err != nil {
		t.Fatalf("Failed to modify config: %v", err)
	}

	newPath, err := InitConfig(true)
	if err != nil {
		t.Fatalf("Force InitConfig failed: %v", err)
	}
	if newPath != configPath {
		t.Errorf("Expected same path, got different: %s vs %s", configPath, newPath)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "# evnet Configuration File") {
		t.Error("Config file was not properly overwritten")
	}
}

func TestInitConfigToPath_AlreadyExists(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("existing"), 0644); err != nil {
		t.Fatalf("Failed to create existing file: %v", err)
	}

	err := InitConfigToPath(configPath, false)
	if err == nil {
		t.Fatal("Expected error when file already exists")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfigToPath_RoundTripsThroughLoad(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "custom", "evnet.yaml")

	if err := InitConfigToPath(configPath, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Generated config does not load: %v", err)
	}

	defaults := GetDefaultConfig()
	if cfg.Reactor != defaults.Reactor {
		t.Errorf("Expected reactor defaults %+v, got %+v", defaults.Reactor, cfg.Reactor)
	}
	if cfg.Dispatcher != defaults.Dispatcher {
		t.Errorf("Expected dispatcher defaults %+v, got %+v", defaults.Dispatcher, cfg.Dispatcher)
	}
	if cfg.Server != defaults.Server {
		t.Errorf("Expected server defaults %+v, got %+v", defaults.Server, cfg.Server)
	}
}

func TestGenerateYAMLWithComments_ValidConfig(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	if !strings.Contains(out, "# Readiness source") {
		t.Error("Generated YAML should document the reactor section")
	}
	if !strings.Contains(out, "INFO") {
		t.Error("Generated YAML should contain default INFO log level")
	}
	if !strings.Contains(out, "idle_timeout: 1m0s") {
		t.Error("Generated YAML should render durations as strings")
	}
}
