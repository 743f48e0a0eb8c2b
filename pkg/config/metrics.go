package config

import (
	"net"
	"strconv"

	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/metrics"
	promMetrics "github.com/marmos91/assetfiles/pkg/metrics/prometheus"
)

// MetricsResult bundles what InitializeMetrics produced.
type MetricsResult struct {
	// Server serves /metrics on server.metrics.host:port. Nil when metrics
	// are disabled; the serve command then starts nothing.
	Server *metrics.Server

	// APIMetrics is handed to the dispatcher. Never nil.
	APIMetrics metrics.APIMetrics
}

// Enabled reports whether a metrics server was created.
func (r *MetricsResult) Enabled() bool {
	return r.Server != nil
}

// InitializeMetrics sets up metrics collection for the API.
//
// With server.metrics.enabled the global registry is created, the API
// collectors are registered on it and a scrape server is prepared (not yet
// listening). Otherwise every recording call is a no-op.
func InitializeMetrics(cfg *Config) *MetricsResult {
	mc := cfg.Server.Metrics
	if !mc.Enabled {
		return &MetricsResult{APIMetrics: metrics.NewNoopAPIMetrics()}
	}

	metrics.InitRegistry()

	// An empty host binds every interface, which the address below shows
	// as ":9090".
	server := metrics.NewServer(metrics.ServerConfig{Host: mc.Host, Port: mc.Port})
	logger.Info("Metrics enabled: scrape http://%s/metrics",
		net.JoinHostPort(mc.Host, strconv.Itoa(server.Port())))

	return &MetricsResult{
		Server:     server,
		APIMetrics: promMetrics.NewAPIMetrics(),
	}
}
