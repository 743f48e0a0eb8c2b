package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the port of the metrics listener when none is configured.
const DefaultPort = 9090

// Server exposes Prometheus metrics on a listener of its own, so scrapes
// never compete with API clients for the rate limiter or the auth gate.
//
// Endpoints:
//   - GET /metrics: Prometheus metrics in OpenMetrics or text format
//   - GET /: short pointer to /metrics
type Server struct {
	server *http.Server
	port   int

	stopOnce sync.Once
	stopErr  error
}

// ServerConfig configures the metrics listener.
type ServerConfig struct {
	// Host to bind. Empty binds all interfaces.
	Host string

	// Port to listen on. Default: 9090
	Port int
}

// NewServer creates a metrics server. Nothing is bound until Start.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}

	return &Server{
		server: &http.Server{
			Addr:              net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       time.Minute,
		},
		port: config.Port,
	}
}

// Handler returns the router serving the global registry. /metrics answers
// 503 while the registry is not initialized.
func Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	if reg := GetRegistry(); reg != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		})))
	} else {
		router.GET("/metrics", func(c *gin.Context) {
			c.String(http.StatusServiceUnavailable, "metrics collection is disabled\n")
		})
	}

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "assetfiles metrics: scrape /metrics\n")
	})

	return router
}

// Start binds the listener and serves until ctx is cancelled, then shuts
// down with a 5s budget. A bind failure is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener on %s: %w", s.server.Addr, err)
	}
	logger.Info("Metrics available at http://%s/metrics", listener.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(stopCtx)
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Only the first call has an effect; later calls
// return its result.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			s.stopErr = fmt.Errorf("metrics server shutdown: %w", err)
			logger.Warn("Metrics server did not stop cleanly: %v", err)
			return
		}
		logger.Debug("Metrics server stopped")
	})
	return s.stopErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}
