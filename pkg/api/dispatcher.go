// Package api exposes the file operations over HTTP.
//
// Every request passes through the same middleware chain: panic recovery,
// request id assignment, access logging, per-client rate limiting and the
// auth gate. Requests rejected by the gate never touch the filesystem.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/assetfiles/internal/ratelimiter"
	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/marmos91/assetfiles/pkg/auth"
	"github.com/marmos91/assetfiles/pkg/events"
	"github.com/marmos91/assetfiles/pkg/fileops"
	"github.com/marmos91/assetfiles/pkg/metrics"
)

// Options configures a Dispatcher. Gate and Operations are required, every
// other collaborator is optional.
type Options struct {
	Gate       *auth.Gate
	Operations *fileops.Operations

	// Audit receives one entry per mutating request. The /api/audit route
	// is only registered when it is set.
	Audit audit.Store

	// Events receives one event per successful mutation. The /api/events
	// route is only registered when it is set.
	Events *events.Hub

	Metrics metrics.APIMetrics
	Limiter *ratelimiter.PerClient

	// TrustedProxies are the proxies allowed to set the client address
	// through X-Forwarded-For. Nil trusts none.
	TrustedProxies []string

	// ServeStatic serves files of the managed root on unmatched GET paths.
	ServeStatic bool

	// MaxUploadMemory bounds the multipart bytes kept in memory; the rest
	// is spooled to temporary files. Zero keeps gin's default.
	MaxUploadMemory int64
}

// Dispatcher routes HTTP requests to the file operations.
type Dispatcher struct {
	gate    *auth.Gate
	ops     *fileops.Operations
	audit   audit.Store
	events  *events.Hub
	metrics metrics.APIMetrics
	limiter *ratelimiter.PerClient
	static  bool

	engine *gin.Engine
}

// New builds a Dispatcher and its routes.
func New(opts Options) (*Dispatcher, error) {
	if opts.Gate == nil {
		return nil, errors.New("auth gate is required")
	}
	if opts.Operations == nil {
		return nil, errors.New("file operations are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoopAPIMetrics()
	}
	if opts.Limiter != nil && !opts.Limiter.Enabled() {
		opts.Limiter = nil
	}

	d := &Dispatcher{
		gate:    opts.Gate,
		ops:     opts.Operations,
		audit:   opts.Audit,
		events:  opts.Events,
		metrics: opts.Metrics,
		limiter: opts.Limiter,
		static:  opts.ServeStatic,
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	if opts.MaxUploadMemory > 0 {
		engine.MaxMultipartMemory = opts.MaxUploadMemory
	}
	engine.Use(recovery(), requestID(), d.accessLog(), d.rateLimit())

	engine.GET("/healthz", d.health)

	api := engine.Group("/api", d.authenticate())
	{
		api.GET("/ls", d.list)
		api.GET("/ls/:name", d.get)
		api.PUT("/cp", d.create)
		api.POST("/mv", d.renameMany)
		api.PUT("/mv", d.renameOne)
		api.DELETE("/rm", d.deleteMany)
		api.DELETE("/rm/:name", d.deleteOne)

		if d.events != nil {
			api.GET("/events", d.streamEvents)
		}
		if d.audit != nil {
			api.GET("/audit", d.recentAudit)
		}
	}

	engine.NoMethod(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusMethodNotAllowed, ErrorResponse{
			Error: "method not allowed",
			Code:  ErrorCodeInvalidRequest,
		})
	})
	if d.static {
		engine.NoRoute(d.authenticate(), d.serveStatic)
	} else {
		engine.NoRoute(d.notFound)
	}

	d.engine = engine
	return d, nil
}

// Handler returns the http.Handler serving the API.
func (d *Dispatcher) Handler() http.Handler {
	return d.engine
}
