package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/internal/ratelimiter"
)

// RESTAdapter implements the adapter.Adapter interface for the HTTP API.
//
// It owns the TCP listener and the http.Server wrapping the API handler.
// Responses are gzip compressed when the client accepts it and compression
// is enabled.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. http.Server.Shutdown stops accepting and waits for in-flight requests
//  3. After ShutdownTimeout remaining connections are closed forcibly
//
// Thread safety:
// All methods are safe for concurrent use. Shutdown runs once even when
// Stop() is called repeatedly.
type RESTAdapter struct {
	config RESTConfig

	server *http.Server

	// limiter is swept periodically while serving. May be nil.
	limiter *ratelimiter.PerClient

	// boundPort is the port actually bound, known once Serve has listened.
	boundPort atomic.Int32

	listening chan struct{}
	listenOne sync.Once

	shutdownOnce sync.Once
	shutdownErr  error
	stopped      chan struct{}
}

// RESTConfig holds configuration parameters for the HTTP API adapter.
//
// Default values (applied by New if zero):
//   - Host: 0.0.0.0
//   - Port: 8080
//   - ReadTimeout: 5m (uploads can be large)
//   - WriteTimeout: 5m
//   - IdleTimeout: 2m
//   - ShutdownTimeout: 30s
//   - MaxHeaderBytes: 1 MiB
type RESTConfig struct {
	// Enabled controls whether the HTTP API is served.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the interface to bind. Empty binds all interfaces.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the TCP port to listen on. 0 picks a free port when the
	// adapter is created programmatically; configuration files get 8080.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// ReadTimeout bounds reading a full request, body included.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing a response. The event stream is hijacked
	// and not subject to it.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// IdleTimeout closes keep-alive connections idle for longer.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"min=0"`

	// ShutdownTimeout is how long in-flight requests may take to finish
	// during graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"min=0"`

	MaxHeaderBytes int `mapstructure:"max_header_bytes" yaml:"max_header_bytes" validate:"min=0"`

	// Compression enables gzip response compression.
	Compression bool `mapstructure:"compression" yaml:"compression"`

	// TrustedProxies lists the proxy addresses or CIDRs whose
	// X-Forwarded-For header is believed. Empty trusts no proxy, so the
	// client address is always the peer address.
	TrustedProxies []string `mapstructure:"trusted_proxies" yaml:"trusted_proxies" validate:"dive,ip|cidr"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig limits requests per client IP.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate. 0 disables limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the bucket size. Defaults to RequestsPerSecond.
	Burst uint `mapstructure:"burst" yaml:"burst"`

	// IdleTTL evicts buckets of clients unseen for this long.
	IdleTTL time.Duration `mapstructure:"idle_ttl" yaml:"idle_ttl" validate:"min=0"`
}

// LimiterConfig converts the configuration for the ratelimiter package.
func (c RateLimitConfig) LimiterConfig() ratelimiter.Config {
	burst := c.Burst
	if burst == 0 {
		burst = c.RequestsPerSecond
	}
	return ratelimiter.Config{
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             burst,
		IdleTTL:           c.IdleTTL,
	}
}

// applyDefaults fills in zero values with sensible defaults.
func (c *RESTConfig) applyDefaults() {
	// Enabled defaults are handled in pkg/config/defaults.go to allow
	// explicit false values from configuration files.

	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 5 * time.Minute
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 5 * time.Minute
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 2 * time.Minute
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 1 << 20
	}
}

func (c *RESTConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("invalid timeouts: must be >= 0")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}

// New creates a RESTAdapter serving handler.
//
// limiter may be nil. When set, idle client buckets are swept while the
// adapter serves.
//
// Panics if config validation fails.
func New(config RESTConfig, handler http.Handler, limiter *ratelimiter.PerClient) *RESTAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid REST config: %v", err))
	}
	if handler == nil {
		panic("REST handler cannot be nil")
	}

	if config.Compression {
		handler = gzhttp.GzipHandler(handler)
	}

	a := &RESTAdapter{
		config:  config,
		limiter: limiter,
		server: &http.Server{
			Handler:           handler,
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: 30 * time.Second,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       config.IdleTimeout,
			MaxHeaderBytes:    config.MaxHeaderBytes,
		},
		listening: make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	a.boundPort.Store(int32(config.Port))
	return a
}

// Serve listens on the configured address and serves until ctx is
// cancelled or Stop is called.
func (a *RESTAdapter) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(a.config.Host, strconv.Itoa(a.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to create REST listener on %s: %w", addr, err)
	}

	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		a.boundPort.Store(int32(tcpAddr.Port))
	}
	a.listenOne.Do(func() { close(a.listening) })

	logger.Info("REST API listening on %s", listener.Addr())
	logger.Debug("REST config: read_timeout=%v write_timeout=%v idle_timeout=%v compression=%t",
		a.config.ReadTimeout, a.config.WriteTimeout, a.config.IdleTimeout, a.config.Compression)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("REST shutdown signal received: %v", ctx.Err())
			stopCtx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
			defer cancel()
			_ = a.Stop(stopCtx)
		case <-a.stopped:
		}
	}()

	if a.limiter != nil && a.limiter.Enabled() {
		sweepCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go a.limiter.Run(sweepCtx, time.Minute)
	}

	err = a.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-a.stopped
		return a.shutdownErr
	}
	return err
}

// Stop gracefully shuts the server down within the context deadline, then
// closes any connection still open.
func (a *RESTAdapter) Stop(ctx context.Context) error {
	a.shutdownOnce.Do(func() {
		logger.Debug("REST shutdown initiated")

		if err := a.server.Shutdown(ctx); err != nil {
			logger.Warn("REST graceful shutdown incomplete: %v", err)
			_ = a.server.Close()
			a.shutdownErr = err
		} else {
			logger.Info("REST graceful shutdown complete")
		}
		close(a.stopped)
	})

	select {
	case <-a.stopped:
		return a.shutdownErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Listening is closed once the listener is bound.
func (a *RESTAdapter) Listening() <-chan struct{} {
	return a.listening
}

// Port returns the bound TCP port, or the configured one before Serve.
func (a *RESTAdapter) Port() int {
	return int(a.boundPort.Load())
}

// Protocol returns "REST".
func (a *RESTAdapter) Protocol() string {
	return "REST"
}
