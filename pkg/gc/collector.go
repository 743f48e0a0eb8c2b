// Package gc enforces the retention window of the audit trail.
//
// The collector removes audit entries older than the configured retention on
// a cron schedule. When the backing store can reclaim space (BadgerDB value
// log GC) it is compacted after every run that removed something.
package gc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/assetfiles/internal/logger"
	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule is used when no schedule is configured.
const DefaultSchedule = "@hourly"

// Config contains configuration for the retention collector.
type Config struct {
	// Enabled controls whether the scheduled collection runs (default: true)
	Enabled bool

	// Retention is how long audit entries are kept. Zero keeps them forever.
	Retention time.Duration

	// Schedule is a standard cron expression or descriptor such as "@hourly".
	Schedule string

	// DryRun logs the cutoff without deleting anything.
	DryRun bool

	// Timeout bounds a single scheduled run (default: 5m)
	Timeout time.Duration
}

// Collector prunes an audit.Store periodically.
//
// Thread Safety: Safe for concurrent use.
type Collector struct {
	store  audit.Store
	config Config
	cron   *cron.Cron
	now    func() time.Time

	mu      sync.Mutex
	started bool
	last    *Stats
}

// NewCollector validates the schedule and creates a collector. The collector
// is not started.
func NewCollector(store audit.Store, config Config) (*Collector, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if config.Schedule == "" {
		config.Schedule = DefaultSchedule
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", config.Schedule, err)
	}

	return &Collector{
		store:  store,
		config: config,
		cron:   cron.New(),
		now:    time.Now,
	}, nil
}

// Start schedules the collection. Calling Start more than once is a no-op.
func (c *Collector) Start() error {
	if !c.config.Enabled || c.config.Retention <= 0 {
		logger.Info("Audit retention disabled")
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	_, err := c.cron.AddFunc(c.config.Schedule, c.scheduledRun)
	if err != nil {
		return fmt.Errorf("schedule audit retention: %w", err)
	}

	logger.Info("Starting audit retention: retention=%s schedule=%q dry_run=%v",
		c.config.Retention, c.config.Schedule, c.config.DryRun)

	c.cron.Start()
	c.started = true
	return nil
}

// Stop halts the schedule and waits for a running collection to finish or
// ctx to expire.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	started := c.started
	c.started = false
	c.mu.Unlock()

	if !started {
		return nil
	}

	logger.Info("Stopping audit retention...")

	select {
	case <-c.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		logger.Warn("Audit retention shutdown timeout")
		return ctx.Err()
	}
}

func (c *Collector) scheduledRun() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	stats, err := c.RunOnce(ctx)
	if err != nil {
		logger.Error("Audit retention failed: %v", err)
		return
	}
	logger.Info("Audit retention completed: %s", stats.Summary())
}

// RunOnce prunes entries older than the retention window immediately.
func (c *Collector) RunOnce(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: c.now()}
	stats.Cutoff = stats.StartTime.Add(-c.config.Retention)

	if c.config.Retention <= 0 {
		stats.EndTime = c.now()
		return stats, nil
	}

	if c.config.DryRun {
		logger.Info("Audit retention: DRY RUN - would prune entries before %s",
			stats.Cutoff.Format(time.RFC3339))
		stats.EndTime = c.now()
		c.remember(stats)
		return stats, nil
	}

	removed, err := c.store.Prune(ctx, stats.Cutoff)
	if err != nil {
		stats.EndTime = c.now()
		return stats, fmt.Errorf("prune audit entries: %w", err)
	}
	stats.PrunedCount = uint64(removed)

	if compactor, ok := c.store.(audit.Compactor); ok && removed > 0 {
		if err := compactor.Compact(ctx); err != nil {
			logger.Warn("Audit retention: compaction failed: %v", err)
		} else {
			stats.Compacted = true
		}
	}

	stats.EndTime = c.now()
	c.remember(stats)
	return stats, nil
}

func (c *Collector) remember(stats *Stats) {
	c.mu.Lock()
	c.last = stats
	c.mu.Unlock()
}

// LastRun returns the statistics of the most recent completed run, or nil.
func (c *Collector) LastRun() *Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Stats contains statistics from a retention run.
type Stats struct {
	StartTime   time.Time // When the run started
	EndTime     time.Time // When the run ended
	Cutoff      time.Time // Entries before this instant were eligible
	PrunedCount uint64    // Number of entries removed
	Compacted   bool      // Whether the store reclaimed space afterwards
}

// Duration returns the total run duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a human-readable summary of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf("cutoff=%s pruned=%d compacted=%v duration=%s",
		s.Cutoff.Format(time.RFC3339), s.PrunedCount, s.Compacted, s.Duration())
}
