// Package memory provides an in-process audit store holding a bounded
// number of recent entries.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/assetfiles/pkg/audit"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 1000

// Config configures the memory store.
type Config struct {
	// Capacity is the maximum number of entries retained. Older entries are
	// discarded first.
	Capacity int `mapstructure:"capacity"`
}

// Store keeps audit entries in memory.
type Store struct {
	mu       sync.RWMutex
	entries  []audit.Entry
	capacity int
	closed   bool
}

// New creates a memory store.
func New(cfg Config) *Store {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		entries:  make([]audit.Entry, 0, min(capacity, 64)),
		capacity: capacity,
	}
}

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audit.ErrClosed
	}

	s.entries = append(s.entries, audit.Prepare(e))
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append(s.entries[:0], s.entries[over:]...)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = audit.DefaultRecentLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, audit.ErrClosed
	}

	n := min(limit, len(s.entries))
	out := make([]audit.Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, audit.ErrClosed
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.Time.Before(before) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept
	return removed, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
