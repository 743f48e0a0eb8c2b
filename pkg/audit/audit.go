// Package audit records which identity asked for which mutating operation and
// how much of it succeeded.
//
// The audit trail is write-mostly and purely informational. It is never
// consulted to decide whether a file exists; the filesystem remains the only
// authority for that.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Operation names recorded in entries.
const (
	OpCreate = "create"
	OpRename = "rename"
	OpDelete = "delete"
)

// DefaultRecentLimit is used when Recent is called with a non-positive limit.
const DefaultRecentLimit = 100

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("audit store closed")

// Entry is one audited request.
type Entry struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Identity  string    `json:"identity,omitempty"`
	Operation string    `json:"operation"`
	RequestID string    `json:"request_id,omitempty"`

	// Requested is the number of items the caller submitted.
	Requested int `json:"requested"`

	// Succeeded is the number of items in the returned result.
	Succeeded int `json:"succeeded"`

	// Targets are the names affected by the successful items.
	Targets []string `json:"targets,omitempty"`
}

// Prepare fills in the ID and Time of e when they are unset.
func Prepare(e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return e
}

// Store persists audit entries.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Append records an entry. Missing ID and Time are filled in.
	Append(ctx context.Context, e Entry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// Prune deletes entries recorded before the given time and returns how
	// many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Close releases the resources held by the store.
	Close() error
}

// Compactor is implemented by stores that can reclaim disk space after
// pruning.
type Compactor interface {
	Compact(ctx context.Context) error
}
