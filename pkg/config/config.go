package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/assetfiles/pkg/adapter/rest"
	"github.com/spf13/viper"
)

// Config represents the complete assetfiles configuration.
//
// This structure captures all configurable aspects of the server including:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics)
//   - The managed root directory and its path/collision policies
//   - The identity table used by the auth gate
//   - The audit trail store (store-specific options) and its retention
//   - The change event stream
//   - Protocol adapter configurations
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (ASSETFILES_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage describes the managed root directory
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Auth configures the bearer-token gate
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Audit specifies the audit store type and type-specific configuration
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Events configures the websocket change stream
	Events EventsConfig `mapstructure:"events" yaml:"events"`

	// Adapters contains protocol adapter configurations
	Adapters AdaptersConfig `mapstructure:"adapters" yaml:"adapters"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled starts the metrics server
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host to bind. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port of the metrics server
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`
}

// StorageConfig describes the managed root directory.
type StorageConfig struct {
	// Root is the directory whose direct children are managed
	Root string `mapstructure:"root" yaml:"root" validate:"required"`

	// CreateRoot creates Root at startup when missing
	CreateRoot bool `mapstructure:"create_root" yaml:"create_root"`

	// PathMode controls how request names are resolved
	// Valid values: confined (names must stay inside root), verbatim (names are joined as-is)
	PathMode string `mapstructure:"path_mode" yaml:"path_mode" validate:"required,oneof=confined verbatim"`

	// Collision controls what an upload or rename does when the target exists
	// Valid values: overwrite, reject, suffix
	Collision string `mapstructure:"collision" yaml:"collision" validate:"required,oneof=overwrite reject suffix"`

	// Static serves files of the root on unmatched GET paths
	Static bool `mapstructure:"static" yaml:"static"`

	// MaxUploadMemory is how many multipart bytes are buffered in memory
	// before spooling to temporary files
	MaxUploadMemory int64 `mapstructure:"max_upload_memory" yaml:"max_upload_memory" validate:"min=0"`
}

// AuthConfig configures the auth gate.
type AuthConfig struct {
	// TokensFile is the JSON or YAML identity document. A missing or
	// malformed document disables authentication unless Strict is set.
	TokensFile string `mapstructure:"tokens_file" yaml:"tokens_file"`

	// Strict refuses to start when TokensFile cannot be loaded
	Strict bool `mapstructure:"strict" yaml:"strict"`

	// ReadBypass lets GET and HEAD requests through without a credential
	ReadBypass bool `mapstructure:"read_bypass" yaml:"read_bypass"`
}

// AuditConfig specifies the audit store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type AuditConfig struct {
	// Enabled records mutating requests
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Type specifies which audit store implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Retention is how long entries are kept. Zero keeps them forever.
	Retention time.Duration `mapstructure:"retention" yaml:"retention" validate:"min=0"`

	// PruneSchedule is the cron expression driving retention
	PruneSchedule string `mapstructure:"prune_schedule" yaml:"prune_schedule"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// EventsConfig configures the change stream.
type EventsConfig struct {
	// Enabled registers the /api/events websocket route
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Buffer is the per-subscriber queue length
	Buffer int `mapstructure:"buffer" yaml:"buffer" validate:"min=0"`
}

// AdaptersConfig contains all protocol adapter configurations.
type AdaptersConfig struct {
	// REST contains the HTTP API configuration.
	// Uses the rest.RESTConfig type directly to avoid duplication.
	REST rest.RESTConfig `mapstructure:"rest" yaml:"rest"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (ASSETFILES_*)
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

	if err := readConfigFile(v, configPath); err != nil {
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
	// Environment variables use the ASSETFILES_ prefix and underscores
	// Example: ASSETFILES_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("ASSETFILES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/assetfiles/config.{yaml,toml}
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// setViperDefaults registers the defaults that cannot be told apart from
// an explicit zero value after unmarshalling, mostly booleans defaulting to
// true. Registering a key also lets AutomaticEnv override it.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("storage.root", DefaultRoot)
	v.SetDefault("storage.create_root", true)
	v.SetDefault("storage.static", true)
	v.SetDefault("auth.tokens_file", DefaultTokensFile)
	v.SetDefault("auth.strict", false)
	v.SetDefault("auth.read_bypass", false)
	v.SetDefault("audit.enabled", true)
	v.SetDefault("events.enabled", true)
	v.SetDefault("server.metrics.enabled", false)
	v.SetDefault("adapters.rest.enabled", true)
	v.SetDefault("adapters.rest.compression", true)
	v.SetDefault("adapters.rest.port", DefaultRESTPort)
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			// An explicit path that does not exist behaves the same way
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
		return filepath.Join(xdgConfig, "assetfiles")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "assetfiles")
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
