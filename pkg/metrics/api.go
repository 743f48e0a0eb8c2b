package metrics

import "time"

// Authentication outcomes reported by RecordAuth.
const (
	AuthOpen          = "open"          // no identities configured
	AuthBypass        = "bypass"        // read bypass policy applied
	AuthAuthenticated = "authenticated" // credential matched
	AuthMissing       = "missing"       // no credential presented
	AuthInvalid       = "invalid"       // credential unknown
)

// APIMetrics provides observability for the HTTP API.
//
// Implementations collect request counts and latencies per operation, the
// partial-success ratio of batch operations, authentication outcomes and
// upload volume. If no implementation is provided, use NewNoopAPIMetrics.
type APIMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - operation: logical operation name (e.g., "list", "create", "delete")
	//   - status: HTTP status code returned to the caller
	//   - duration: time spent serving the request
	RecordRequest(operation string, status int, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge for operation.
	RecordRequestStart(operation string)

	// RecordRequestEnd decrements the in-flight gauge for operation.
	RecordRequestEnd(operation string)

	// RecordBatch records how many items of a batch were submitted and how
	// many of them succeeded.
	RecordBatch(operation string, requested, succeeded int)

	// RecordAuth records the outcome of an authorization decision.
	RecordAuth(outcome string)

	// RecordBytesUploaded adds to the total of bytes written by uploads.
	RecordBytesUploaded(bytes uint64)

	// RecordRateLimited counts a request rejected by the rate limiter.
	RecordRateLimited()

	// SetEventSubscribers updates the number of connected event subscribers.
	SetEventSubscribers(count int)
}

// noopAPIMetrics discards everything.
type noopAPIMetrics struct{}

// NewNoopAPIMetrics returns an APIMetrics that records nothing.
func NewNoopAPIMetrics() APIMetrics {
	return noopAPIMetrics{}
}

func (noopAPIMetrics) RecordRequest(operation string, status int, duration time.Duration) {}
func (noopAPIMetrics) RecordRequestStart(operation string)                                {}
func (noopAPIMetrics) RecordRequestEnd(operation string)                                  {}
func (noopAPIMetrics) RecordBatch(operation string, requested, succeeded int)             {}
func (noopAPIMetrics) RecordAuth(outcome string)                                          {}
func (noopAPIMetrics) RecordBytesUploaded(bytes uint64)                                   {}
func (noopAPIMetrics) RecordRateLimited()                                                 {}
func (noopAPIMetrics) SetEventSubscribers(count int)                                      {}
