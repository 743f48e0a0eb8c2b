// Package testing provides a conformance suite for audit.Store
// implementations.
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/assetfiles/pkg/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite runs the audit.Store contract against an implementation.
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) audit.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("AppendAndRecent", suite.TestAppendAndRecent)
	t.Run("RecentLimit", suite.TestRecentLimit)
	t.Run("RecentEmpty", suite.TestRecentEmpty)
	t.Run("PrepareFillsIdentity", suite.TestPrepareFillsIdentity)
	t.Run("Prune", suite.TestPrune)
	t.Run("ConcurrentAppend", suite.TestConcurrentAppend)
	t.Run("CancelledContext", suite.TestCancelledContext)
}

func entryAt(t time.Time, op string, targets ...string) audit.Entry {
	return audit.Entry{
		Time:      t,
		Identity:  "alice",
		Operation: op,
		Requested: len(targets),
		Succeeded: len(targets),
		Targets:   targets,
	}
}

func (suite *StoreTestSuite) TestAppendAndRecent(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, entryAt(base, audit.OpCreate, "a.txt")))
	require.NoError(t, store.Append(ctx, entryAt(base.Add(time.Second), audit.OpRename, "b.txt")))
	require.NoError(t, store.Append(ctx, entryAt(base.Add(2*time.Second), audit.OpDelete, "c.txt")))

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, audit.OpDelete, entries[0].Operation)
	assert.Equal(t, audit.OpRename, entries[1].Operation)
	assert.Equal(t, audit.OpCreate, entries[2].Operation)
	assert.Equal(t, []string{"c.txt"}, entries[0].Targets)
	assert.Equal(t, "alice", entries[0].Identity)
	assert.True(t, entries[0].Time.Equal(base.Add(2*time.Second)))
}

func (suite *StoreTestSuite) TestRecentLimit(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("f%d", i)
		require.NoError(t, store.Append(ctx, entryAt(base.Add(time.Duration(i)*time.Minute), audit.OpCreate, name)))
	}

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"f4"}, entries[0].Targets)
	assert.Equal(t, []string{"f3"}, entries[1].Targets)
}

func (suite *StoreTestSuite) TestRecentEmpty(t *testing.T) {
	store := suite.NewStore(t)

	entries, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func (suite *StoreTestSuite) TestPrepareFillsIdentity(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, audit.Entry{Operation: audit.OpDelete}))

	entries, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Time.IsZero())
}

func (suite *StoreTestSuite) TestPrune(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, entryAt(base.Add(-48*time.Hour), audit.OpCreate, "old1")))
	require.NoError(t, store.Append(ctx, entryAt(base.Add(-25*time.Hour), audit.OpCreate, "old2")))
	require.NoError(t, store.Append(ctx, entryAt(base.Add(-time.Hour), audit.OpCreate, "new")))

	removed, err := store.Prune(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	entries, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"new"}, entries[0].Targets)

	removed, err = store.Prune(ctx, base.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func (suite *StoreTestSuite) TestConcurrentAppend(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	const writers = 8
	const perWriter = 10

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, store.Append(ctx, audit.Entry{
					Operation: audit.OpCreate,
					Targets:   []string{fmt.Sprintf("w%d-%d", w, i)},
				}))
			}
		}(w)
	}
	wg.Wait()

	entries, err := store.Recent(ctx, writers*perWriter)
	require.NoError(t, err)
	assert.Len(t, entries, writers*perWriter)
}

func (suite *StoreTestSuite) TestCancelledContext(t *testing.T) {
	store := suite.NewStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.Append(ctx, audit.Entry{Operation: audit.OpCreate}), context.Canceled)

	_, err := store.Recent(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
