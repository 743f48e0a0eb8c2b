package config

import (
	"strings"
	"time"

	"github.com/marmos91/assetfiles/pkg/adapter/rest"
	"github.com/marmos91/assetfiles/pkg/audit/memory"
	"github.com/marmos91/assetfiles/pkg/gc"
)

// Defaults shared by ApplyDefaults, the viper defaults and the sample config.
const (
	DefaultRoot        = "/app/data"
	DefaultTokensFile  = "/etc/asset-files/auth.json"
	DefaultRESTPort    = 8080
	DefaultMetricsPort = 9090
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans defaulting to true are registered with viper in Load, since
//     an explicit false cannot be told apart from a missing key here
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyAuditDefaults(&cfg.Audit)
	applyEventsDefaults(&cfg.Events)
	applyAdaptersDefaults(&cfg.Adapters)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
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
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}

// applyStorageDefaults sets managed root defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.PathMode == "" {
		cfg.PathMode = "confined"
	}
	if cfg.Collision == "" {
		cfg.Collision = "overwrite"
	}
	if cfg.MaxUploadMemory == 0 {
		cfg.MaxUploadMemory = 32 << 20 // 32MB
	}
}

// applyAuditDefaults sets audit store defaults.
func applyAuditDefaults(cfg *AuditConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.PruneSchedule == "" {
		cfg.PruneSchedule = gc.DefaultSchedule
	}

	// Initialize maps if nil
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Memory["capacity"]; !ok {
		cfg.Memory["capacity"] = memory.DefaultCapacity
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = "/var/lib/assetfiles/audit"
	}
}

// applyEventsDefaults sets event stream defaults.
func applyEventsDefaults(cfg *EventsConfig) {
	if cfg.Buffer == 0 {
		cfg.Buffer = 32
	}
}

// applyAdaptersDefaults sets adapter defaults.
func applyAdaptersDefaults(cfg *AdaptersConfig) {
	applyRESTDefaults(&cfg.REST)
}

// applyRESTDefaults sets REST adapter defaults.
func applyRESTDefaults(cfg *rest.RESTConfig) {
	// Enabled and Compression are registered with viper, see setViperDefaults.

	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultRESTPort
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = 1 << 20
	}

	// RateLimit.RequestsPerSecond defaults to 0 (unlimited)
	if cfg.RateLimit.IdleTTL == 0 {
		cfg.RateLimit.IdleTTL = 10 * time.Minute
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			CreateRoot: true,
			Static:     true,
		},
		Auth: AuthConfig{
			TokensFile: DefaultTokensFile,
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Events: EventsConfig{
			Enabled: true,
		},
		Adapters: AdaptersConfig{
			REST: rest.RESTConfig{
				Enabled:     true,
				Compression: true,
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
