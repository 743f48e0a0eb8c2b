package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/auth"
	"github.com/marmos91/assetfiles/pkg/metrics"
)

// Context keys set by the middleware chain.
const (
	ContextKeyRequestID = "request_id"
	ContextKeyIdentity  = "identity"

	// contextKeyHijacked marks a request whose connection was taken over by
	// a websocket upgrade.
	contextKeyHijacked = "hijacked"
)

// Headers read or written by the dispatcher.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTokenName = "X-Token-Name"
)

// RequestID returns the id assigned to the request.
func RequestID(c *gin.Context) string {
	return c.GetString(ContextKeyRequestID)
}

// Identity returns the identity resolved for the request, or "" when the
// request was let through anonymously.
func Identity(c *gin.Context) string {
	return c.GetString(ContextKeyIdentity)
}

func requestLogger(c *gin.Context) *logger.Entry {
	fields := logger.Fields{"request_id": RequestID(c)}
	if id := Identity(c); id != "" {
		fields["identity"] = id
	}
	return logger.With(fields)
}

// recovery turns a panic into a 500 response.
func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestLogger(c).Error("Panic serving %s %s: %v", c.Request.Method, c.Request.URL.Path, r)
				abortWithCode(c, ErrorCodeInternalError, "internal server error")
			}
		}()
		c.Next()
	}
}

// requestID assigns a request id, reusing a well-formed client supplied one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(ContextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// accessLog logs one line per request and records request metrics.
func (d *Dispatcher) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		op := operationName(c)

		d.metrics.RecordRequestStart(op)
		c.Next()
		d.metrics.RecordRequestEnd(op)

		status := c.Writer.Status()
		if c.GetBool(contextKeyHijacked) {
			status = http.StatusSwitchingProtocols
		}
		d.metrics.RecordRequest(op, status, time.Since(start))

		identity := Identity(c)
		if identity == "" {
			identity = "-"
		}
		requestLogger(c).Info("%s %s \"%s %s\" %d %d %q %q %s",
			identity, c.ClientIP(), c.Request.Method, c.Request.URL.Path, status,
			c.Writer.Size(), c.Request.Referer(), c.Request.UserAgent(), logger.Since(start))
	}
}

// rateLimit rejects clients exceeding their request budget.
func (d *Dispatcher) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.limiter == nil || d.limiter.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		d.metrics.RecordRateLimited()
		c.Header("Retry-After", "1")
		abortWithCode(c, ErrorCodeRateLimit, "rate limit exceeded")
	}
}

// authenticate runs the auth gate. Rejected requests never reach a handler.
func (d *Dispatcher) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := auth.ParseBearer(c.GetHeader("Authorization"))

		decision, err := d.gate.Authorize(c.Request.Method, credential)
		if err != nil {
			if credential == "" {
				d.metrics.RecordAuth(metrics.AuthMissing)
			} else {
				d.metrics.RecordAuth(metrics.AuthInvalid)
			}
			requestLogger(c).Warn("Rejected %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			abortWithError(c, err)
			return
		}

		switch {
		case decision.Authenticated:
			d.metrics.RecordAuth(metrics.AuthAuthenticated)
			c.Set(ContextKeyIdentity, decision.Identity)
			c.Header(HeaderTokenName, decision.Identity)
		case d.gate.Enabled():
			d.metrics.RecordAuth(metrics.AuthBypass)
		default:
			d.metrics.RecordAuth(metrics.AuthOpen)
		}
		c.Next()
	}
}

// operationName maps the matched route onto the operation label used in
// logs and metrics.
func operationName(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		return "static"
	}
	if op, ok := operations[c.Request.Method+" "+route]; ok {
		return op
	}
	return "other"
}

var operations = map[string]string{
	http.MethodGet + " /api/ls":          "list",
	http.MethodGet + " /api/ls/:name":    "get",
	http.MethodPut + " /api/cp":          "create",
	http.MethodPost + " /api/mv":         "rename_batch",
	http.MethodPut + " /api/mv":          "rename",
	http.MethodDelete + " /api/rm":       "delete_batch",
	http.MethodDelete + " /api/rm/:name": "delete",
	http.MethodGet + " /api/events":      "events",
	http.MethodGet + " /api/audit":       "audit",
	http.MethodGet + " /healthz":         "health",
}
