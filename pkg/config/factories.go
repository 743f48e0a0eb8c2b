package config

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/internal/ratelimiter"
	"github.com/marmos91/assetfiles/pkg/audit"
	auditBadger "github.com/marmos91/assetfiles/pkg/audit/badger"
	auditMemory "github.com/marmos91/assetfiles/pkg/audit/memory"
	"github.com/marmos91/assetfiles/pkg/auth"
	"github.com/marmos91/assetfiles/pkg/events"
	"github.com/marmos91/assetfiles/pkg/fileops"
	"github.com/marmos91/assetfiles/pkg/gc"
	"github.com/marmos91/assetfiles/pkg/tokens"
	"github.com/mitchellh/mapstructure"
)

// CreateAuditStore creates an audit store based on configuration.
//
// This factory function uses the Type field to determine which store
// implementation to create, then decodes the type-specific configuration
// from the corresponding map and passes it to the store's constructor.
//
// Supported types:
//   - "memory": bounded in-memory ring (pkg/audit/memory)
//   - "badger": persistent BadgerDB store (pkg/audit/badger)
//
// Returns a nil store and no error when auditing is disabled.
func CreateAuditStore(ctx context.Context, cfg *AuditConfig) (audit.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Type {
	case "memory":
		return createMemoryAuditStore(cfg.Memory)
	case "badger":
		return createBadgerAuditStore(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown audit store type: %q (supported: memory, badger)", cfg.Type)
	}
}

func createMemoryAuditStore(options map[string]any) (audit.Store, error) {
	var storeCfg auditMemory.Config
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode memory audit store config: %w", err)
	}

	return auditMemory.New(storeCfg), nil
}

func createBadgerAuditStore(ctx context.Context, options map[string]any) (audit.Store, error) {
	var storeCfg auditBadger.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &storeCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger audit store config: %w", err)
	}

	if storeCfg.DBPath == "" && !storeCfg.InMemory {
		return nil, fmt.Errorf("badger audit store: db_path is required")
	}

	store, err := auditBadger.New(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger audit store: %w", err)
	}

	logger.Info("Badger audit store opened: path=%s in_memory=%t", storeCfg.DBPath, storeCfg.InMemory)
	return store, nil
}

// CreateCollector creates the retention collector for store.
//
// Returns nil when the store is nil or no retention is configured.
func CreateCollector(store audit.Store, cfg *AuditConfig) (*gc.Collector, error) {
	if store == nil || cfg.Retention <= 0 {
		return nil, nil
	}

	return gc.NewCollector(store, gc.Config{
		Enabled:   true,
		Retention: cfg.Retention,
		Schedule:  cfg.PruneSchedule,
	})
}

// CreateOperations creates the file operations over the managed root,
// creating the root first when configured to.
func CreateOperations(cfg *StorageConfig) (*fileops.Operations, error) {
	if cfg.CreateRoot {
		if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create managed root %q: %w", cfg.Root, err)
		}
	}

	ops, err := fileops.New(cfg.Root,
		fileops.WithPathMode(fileops.PathMode(cfg.PathMode)),
		fileops.WithCollisionPolicy(fileops.CollisionPolicy(cfg.Collision)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create file operations: %w", err)
	}

	if ops.PathMode() == fileops.PathModeVerbatim {
		logger.Warn("Path mode is verbatim: request names are not confined to %s", ops.Root())
	}

	return ops, nil
}

// CreateGate loads the identity table and builds the auth gate.
//
// Without Strict, an unreadable or malformed identity document yields an
// empty table, which leaves the API open.
func CreateGate(cfg *AuthConfig) (*auth.Gate, error) {
	var table tokens.Table

	switch {
	case cfg.TokensFile == "":
		table = tokens.NewTable(nil)
	case cfg.Strict:
		t, err := tokens.LoadStrict(cfg.TokensFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load identity table: %w", err)
		}
		table = t
	default:
		table = tokens.Load(cfg.TokensFile)
	}

	gate := auth.NewGate(table, auth.Policy{ReadBypass: cfg.ReadBypass})
	if gate.Enabled() {
		logger.Info("Authentication enabled: %d identities, read_bypass=%t", table.Len(), cfg.ReadBypass)
	} else {
		logger.Warn("Authentication disabled: no identities configured")
	}

	return gate, nil
}

// CreateEventHub creates the change event hub, or nil when disabled.
func CreateEventHub(cfg *EventsConfig) *events.Hub {
	if !cfg.Enabled {
		return nil
	}
	return events.NewHub(cfg.Buffer)
}

// CreateRateLimiter creates the per-client limiter of the REST adapter, or
// nil when rate limiting is disabled.
func CreateRateLimiter(cfg *Config) *ratelimiter.PerClient {
	rl := cfg.Adapters.REST.RateLimit
	if rl.RequestsPerSecond == 0 {
		return nil
	}
	return ratelimiter.NewPerClient(rl.LimiterConfig())
}
