package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# assetfiles Configuration File
#
# Every value below is the built-in default. Any key can be overridden with
# an environment variable: ASSETFILES_<SECTION>_<KEY>, for example
# ASSETFILES_STORAGE_ROOT=/srv/assets or ASSETFILES_LOGGING_LEVEL=DEBUG.
`

// sectionComments are written above the matching top-level key.
var sectionComments = map[string]string{
	"logging": "Log output. level: DEBUG, INFO, WARN, ERROR. format: text, json.\n" +
		"output: stdout, stderr or a file path.",
	"server": "Graceful shutdown timeout and the optional Prometheus endpoint.",
	"storage": "The managed root directory.\n" +
		"path_mode: confined keeps every name inside root, verbatim joins names as-is.\n" +
		"collision: overwrite, reject or suffix (\"name (1).ext\") when a target exists.\n" +
		"static: serve files of the root on unmatched GET paths.",
	"auth": "Identity document (JSON or YAML list of {name, token}).\n" +
		"A missing or malformed document disables authentication unless strict is true.\n" +
		"read_bypass lets GET and HEAD requests through without a token.",
	"audit": "Audit trail of mutating requests. type: memory or badger.\n" +
		"Entries older than retention are pruned on prune_schedule (0 keeps everything).",
	"events": "Websocket change stream served at /api/events.",
	"adapters": "Network front ends. rate_limit.requests_per_second 0 disables limiting.\n" +
		"Clients are told apart by peer address unless the peer is in trusted_proxies.",
}

// InitConfig writes a sample configuration file with default values to the
// default location and returns its path.
//
// Returns an error if the file already exists and force is false.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration file with default values
// to path, creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above each section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	if doc.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key := doc.Content[i]
			if comment, ok := sectionComments[key.Value]; ok {
				key.HeadComment = comment
			}
		}
	}

	var buf bytes.Buffer
	buf.WriteString(configHeader)
	buf.WriteString("\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	return buf.String(), nil
}
