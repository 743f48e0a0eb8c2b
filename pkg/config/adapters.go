package config

import (
	"fmt"

	"github.com/marmos91/assetfiles/pkg/adapter"
	"github.com/marmos91/assetfiles/pkg/adapter/rest"
	"github.com/marmos91/assetfiles/pkg/api"
	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/marmos91/assetfiles/pkg/auth"
	"github.com/marmos91/assetfiles/pkg/events"
	"github.com/marmos91/assetfiles/pkg/fileops"
	"github.com/marmos91/assetfiles/pkg/metrics"
)

// Services are the shared collaborators every adapter serves.
type Services struct {
	Gate       *auth.Gate
	Operations *fileops.Operations

	// Optional
	Audit   audit.Store
	Events  *events.Hub
	Metrics metrics.APIMetrics
}

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Parameters:
//   - cfg: The complete assetfiles configuration
//   - svc: The shared services the adapters dispatch to
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, svc Services) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.REST.Enabled {
		limiter := CreateRateLimiter(cfg)

		dispatcher, err := api.New(api.Options{
			Gate:            svc.Gate,
			Operations:      svc.Operations,
			Audit:           svc.Audit,
			Events:          svc.Events,
			Metrics:         svc.Metrics,
			Limiter:         limiter,
			TrustedProxies:  cfg.Adapters.REST.TrustedProxies,
			ServeStatic:     cfg.Storage.Static,
			MaxUploadMemory: cfg.Storage.MaxUploadMemory,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create REST dispatcher: %w", err)
		}

		adapters = append(adapters, rest.New(cfg.Adapters.REST, dispatcher.Handler(), limiter))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
