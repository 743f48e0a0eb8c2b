// Package ratelimiter throttles API callers with token buckets.
//
// A RateLimiter is a single bucket. PerClient keeps one bucket per client key
// (the remote IP for the HTTP API) and evicts buckets that have been idle for
// longer than the configured TTL.
package ratelimiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// unlimited is used when a zero rate is configured.
const unlimited = 1_000_000_000

// RateLimiter is a token bucket. All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained with bursts
// up to burst. A zero rate disables limiting.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		requestsPerSecond = unlimited
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Allow consumes one token if available and reports whether it did.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// AllowN consumes n tokens at once, or none if fewer are available.
func (r *RateLimiter) AllowN(n uint) bool {
	return r.limiter.AllowN(time.Now(), int(n))
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the number of tokens currently in the bucket.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}

// Config configures a PerClient limiter.
type Config struct {
	// RequestsPerSecond is the sustained rate per client. Zero disables limiting.
	RequestsPerSecond uint

	// Burst is the bucket capacity per client.
	Burst uint

	// IdleTTL is how long an unused client bucket is kept. Zero keeps buckets
	// forever.
	IdleTTL time.Duration
}

type clientBucket struct {
	limiter  *RateLimiter
	lastSeen time.Time
}

// PerClient maintains an independent bucket for each client key.
type PerClient struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*clientBucket
	now     func() time.Time
}

// NewPerClient creates a PerClient limiter.
func NewPerClient(cfg Config) *PerClient {
	return &PerClient{
		cfg:     cfg,
		clients: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Enabled reports whether any limiting takes place.
func (p *PerClient) Enabled() bool {
	return p.cfg.RequestsPerSecond > 0
}

// Allow consumes a token from the bucket of key.
func (p *PerClient) Allow(key string) bool {
	if !p.Enabled() {
		return true
	}
	return p.bucket(key).Allow()
}

func (p *PerClient) bucket(key string) *RateLimiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	b, ok := p.clients[key]
	if !ok {
		b = &clientBucket{limiter: New(p.cfg.RequestsPerSecond, p.cfg.Burst)}
		p.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Sweep drops buckets idle for longer than IdleTTL and returns how many were
// removed.
func (p *PerClient) Sweep() int {
	if p.cfg.IdleTTL <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := p.now().Add(-p.cfg.IdleTTL)
	removed := 0
	for key, b := range p.clients {
		if b.lastSeen.Before(cutoff) {
			delete(p.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (p *PerClient) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// Run sweeps idle buckets every interval until ctx is done.
func (p *PerClient) Run(ctx context.Context, interval time.Duration) {
	if p.cfg.IdleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}
