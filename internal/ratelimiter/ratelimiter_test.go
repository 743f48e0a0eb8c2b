package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Single bucket
// ============================================================================

func TestAllow(t *testing.T) {
	limiter := New(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(), "request %d should be allowed within burst", i)
	}
	assert.False(t, limiter.Allow(), "bucket should be empty after burst")
}

func TestAllowN(t *testing.T) {
	limiter := New(10, 10)

	assert.True(t, limiter.AllowN(5))
	assert.True(t, limiter.AllowN(5))
	assert.False(t, limiter.AllowN(1))
}

func TestWaitContextCancellation(t *testing.T) {
	limiter := New(1, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.Error(t, limiter.Wait(ctx))
}

func TestUnlimitedRate(t *testing.T) {
	limiter := New(0, 0)

	for i := 0; i < 1000; i++ {
		require.True(t, limiter.Allow(), "unlimited limiter should allow request %d", i)
	}
}

func TestTokens(t *testing.T) {
	limiter := New(10, 10)
	for i := 0; i < 5; i++ {
		limiter.Allow()
	}

	remaining := limiter.Tokens()
	assert.InDelta(t, 5, remaining, 1)
}

// ============================================================================
// Per-client buckets
// ============================================================================

func TestPerClient_IndependentBuckets(t *testing.T) {
	p := NewPerClient(Config{RequestsPerSecond: 1, Burst: 2})

	assert.True(t, p.Allow("10.0.0.1"))
	assert.True(t, p.Allow("10.0.0.1"))
	assert.False(t, p.Allow("10.0.0.1"))

	// A different client still has a full bucket.
	assert.True(t, p.Allow("10.0.0.2"))
	assert.Equal(t, 2, p.Len())
}

func TestPerClient_Disabled(t *testing.T) {
	p := NewPerClient(Config{})

	assert.False(t, p.Enabled())
	for i := 0; i < 100; i++ {
		require.True(t, p.Allow("client"))
	}
	assert.Equal(t, 0, p.Len())
}

func TestPerClient_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewPerClient(Config{RequestsPerSecond: 5, Burst: 5, IdleTTL: time.Minute})
	p.now = func() time.Time { return now }

	p.Allow("old")
	now = now.Add(2 * time.Minute)
	p.Allow("fresh")

	assert.Equal(t, 1, p.Sweep())
	assert.Equal(t, 1, p.Len())
}

func TestPerClient_SweepWithoutTTL(t *testing.T) {
	p := NewPerClient(Config{RequestsPerSecond: 5, Burst: 5})
	p.Allow("a")

	assert.Equal(t, 0, p.Sweep())
	assert.Equal(t, 1, p.Len())
}

func BenchmarkPerClientAllow(b *testing.B) {
	p := NewPerClient(Config{RequestsPerSecond: 1_000_000, Burst: 1_000_000})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			p.Allow("bench")
		}
	})
}
