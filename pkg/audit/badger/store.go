// Package badger provides a persistent audit store backed by BadgerDB.
//
// Entries are stored under keys of the form
//
//	audit/<unix nanoseconds, zero padded to 20 digits>/<entry id>
//
// so that the natural key order is chronological. Values are JSON encoded
// audit.Entry records.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/audit"
)

var keyPrefix = []byte("audit/")

// Config configures the BadgerDB audit store.
type Config struct {
	// DBPath is the directory holding the database. Required unless InMemory.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the database in memory only.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is the LSM block cache size (default: 16)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is the LSM index cache size (default: 8)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`

	// GCDiscardRatio is passed to value log GC by Compact (default: 0.5)
	GCDiscardRatio float64 `mapstructure:"gc_discard_ratio"`
}

// Store is an audit.Store on top of BadgerDB.
type Store struct {
	db           *badger.DB
	discardRatio float64

	closeOnce sync.Once
}

// New opens (or creates) the audit database described by cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.DBPath == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger audit store: db_path is required")
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 16
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 8
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	ratio := cfg.GCDiscardRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	return &Store{db: db, discardRatio: ratio}, nil
}

func entryKey(e audit.Entry) []byte {
	nanos := e.Time.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return fmt.Appendf(nil, "audit/%020d/%s", nanos, e.ID)
}

// timeKey is the smallest key for entries recorded at t.
func timeKey(t time.Time) []byte {
	nanos := t.UnixNano()
	if nanos < 0 {
		nanos = 0
	}
	return fmt.Appendf(nil, "audit/%020d/", nanos)
}

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e = audit.Prepare(e)
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), value)
	})
	return s.mapErr(err)
}

func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = audit.DefaultRecentLimit
	}

	var out []audit.Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts at the largest key not greater than the
		// seek key.
		seek := append(bytes.Clone(keyPrefix), 0xff)
		for it.Seek(seek); it.Valid() && len(out) < limit; it.Next() {
			var e audit.Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				logger.Warn("Skipping unreadable audit entry %s: %v", it.Item().Key(), err)
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	if out == nil {
		out = []audit.Entry{}
	}
	return out, nil
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	limit := timeKey(before)
	var keys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if bytes.Compare(key, limit) >= 0 {
				break
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return 0, s.mapErr(err)
	}

	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, s.mapErr(err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, s.mapErr(err)
	}

	return len(keys), nil
}

// Compact runs value log garbage collection until there is nothing left to
// rewrite or ctx is done.
func (s *Store) Compact(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(s.discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) ||
			errors.Is(err, badger.ErrRejected) ||
			errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return s.mapErr(err)
		}
	}
}

func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}

func (s *Store) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return audit.ErrClosed
	}
	return err
}
