package gc

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/marmos91/assetfiles/pkg/audit/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type compactingStore struct {
	*memory.Store
	compactions int
}

func (s *compactingStore) Compact(ctx context.Context) error {
	s.compactions++
	return nil
}

func seededStore(t *testing.T, now time.Time) *memory.Store {
	t.Helper()
	store := memory.New(memory.Config{})
	ctx := context.Background()
	for _, age := range []time.Duration{72 * time.Hour, 30 * time.Hour, time.Hour} {
		require.NoError(t, store.Append(ctx, audit.Entry{Time: now.Add(-age), Operation: audit.OpDelete}))
	}
	return store
}

func TestNewCollector_InvalidSchedule(t *testing.T) {
	_, err := NewCollector(memory.New(memory.Config{}), Config{Schedule: "every tuesday"})
	assert.Error(t, err)
}

func TestNewCollector_DefaultSchedule(t *testing.T) {
	c, err := NewCollector(memory.New(memory.Config{}), Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, c.config.Schedule)
}

func TestRunOnce_PrunesOldEntries(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := seededStore(t, now)

	c, err := NewCollector(store, Config{Enabled: true, Retention: 24 * time.Hour})
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	stats, err := c.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(2), stats.PrunedCount)
	assert.Equal(t, 1, store.Len())
	assert.Same(t, stats, c.LastRun())
	assert.Contains(t, stats.Summary(), "pruned=2")
}

func TestRunOnce_DryRun(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := seededStore(t, now)

	c, err := NewCollector(store, Config{Retention: time.Hour / 2, DryRun: true})
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	stats, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stats.PrunedCount)
	assert.Equal(t, 3, store.Len())
}

func TestRunOnce_NoRetentionKeepsEverything(t *testing.T) {
	now := time.Now()
	store := seededStore(t, now)

	c, err := NewCollector(store, Config{})
	require.NoError(t, err)

	_, err = c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestRunOnce_CompactsAfterPrune(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	store := &compactingStore{Store: seededStore(t, now)}

	c, err := NewCollector(store, Config{Retention: 24 * time.Hour})
	require.NoError(t, err)
	c.now = func() time.Time { return now }

	stats, err := c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Compacted)
	assert.Equal(t, 1, store.compactions)

	// Nothing left to prune, nothing to compact.
	stats, err = c.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Compacted)
	assert.Equal(t, 1, store.compactions)
}

func TestStartStop(t *testing.T) {
	c, err := NewCollector(memory.New(memory.Config{}), Config{
		Enabled:   true,
		Retention: time.Hour,
		Schedule:  "@every 1h",
	})
	require.NoError(t, err)

	require.NoError(t, c.Start())
	require.NoError(t, c.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))
}
