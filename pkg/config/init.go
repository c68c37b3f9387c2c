package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const configHeader = `# evnet Configuration File
#
# Values left out of this file fall back to built-in defaults. Every scalar
# key can also be set from the environment with the EVNET_ prefix, using
# underscores for nesting (e.g. EVNET_REACTOR_PORT=9000).
`

// sectionComments documents each top-level section of the generated file.
var sectionComments = map[string]string{
	"logging":    "Logging: level is DEBUG, INFO, WARN or ERROR; format is text or json;\noutput is stdout, stderr or a file path.",
	"server":     "Server-wide settings: graceful shutdown, periodic statistics logging and\nthe Prometheus metrics endpoint.",
	"reactor":    "Readiness source: listener address, epoll loop sizing and idle eviction.\nport: -1 picks an ephemeral port. idle_timeout: a negative value disables eviction.\naccept_rate/accept_burst: 0 means unlimited.",
	"dispatcher": "Dispatch engine: max_threads 0 uses the thread pool capacity; requests\nbeyond max_queued are refused.",
	"http":       "HTTP/1.1 request limits.",
	"store":      "Blob store backing the /blobs API. type is memory, badger or s3; only the\nsection matching type is used.",
}

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if the file already exists
// unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a file header and a
// comment above every top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// Mapping nodes hold alternating key and value nodes.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if comment, ok := sectionComments[key.Value]; ok {
			key.HeadComment = comment
		}
	}

	var sb strings.Builder
	sb.WriteString(configHeader)
	sb.WriteString("\n")

	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return sb.String(), nil
}
