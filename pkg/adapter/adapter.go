package adapter

import (
	"context"
)

// Adapter is a network front end managed by the server.
//
// Each adapter exposes the file operations over one transport and owns its
// listener. The collaborators it needs (dispatcher, handlers) are injected at
// construction time.
//
// Lifecycle:
//  1. Creation: adapter is built with its transport configuration
//  2. Startup: Serve() starts listening and blocks until shutdown
//  3. Shutdown: Stop() initiates graceful shutdown within the context deadline
//
// Thread safety:
// Stop() may be called concurrently with Serve() and more than once.
type Adapter interface {
	// Serve starts the adapter and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must stop accepting new
	// requests, let in-flight requests finish within the shutdown timeout
	// and return nil or context.Canceled.
	//
	// If Serve returns before context cancellation, the server treats it
	// as fatal and stops all other adapters.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It must be idempotent and respect
	// the context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the name used in logs and metrics, e.g. "REST".
	Protocol() string

	// Port returns the port the adapter listens on. When configured with
	// port 0 it returns the port chosen by the system once Serve has
	// bound the listener.
	Port() int
}
