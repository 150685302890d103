// Package ratelimit grants per-platform request permits.
//
// Every platform gets its own bucket: a token bucket bounding the request rate and a weighted
// semaphore bounding the requests in flight. Callers waiting on the same platform are served in
// arrival order.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limits is the configuration of one bucket.
type Limits struct {
	RequestsPerSecond float64
	Burst             int
	MaxInFlight       int
}

// DefaultLimits is used for platforms without explicit configuration.
var DefaultLimits = Limits{RequestsPerSecond: 5, Burst: 5, MaxInFlight: 2}

// FromConfig converts the [shared.Config] rate_limits table.
func FromConfig(cfg map[string]shared.RateLimitConfig) map[models.Platform]Limits {
	out := make(map[models.Platform]Limits, len(cfg))
	for name, rl := range cfg {
		p, err := models.ParsePlatform(name)
		if err != nil {
			p = models.Platform(name)
		}
		out[p] = Limits{RequestsPerSecond: rl.RequestsPerSecond, Burst: rl.Burst, MaxInFlight: rl.MaxInFlight}
	}
	return out
}

type bucket struct {
	limits Limits
	// gate serializes waiters so permits are granted first come, first served.
	gate   *semaphore.Weighted
	slots  *semaphore.Weighted
	tokens *rate.Limiter
	active atomic.Int64
}

func newBucket(l Limits) *bucket {
	if l.Burst < 1 {
		l.Burst = 1
	}
	if l.MaxInFlight < 1 {
		l.MaxInFlight = 1
	}
	limit := rate.Limit(l.RequestsPerSecond)
	if l.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &bucket{
		limits: l,
		gate:   semaphore.NewWeighted(1),
		slots:  semaphore.NewWeighted(int64(l.MaxInFlight)),
		tokens: rate.NewLimiter(limit, l.Burst),
	}
}

// Limiter hands out [Permit]s per platform. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[models.Platform]*bucket
	fallback Limits
}

// New creates a Limiter with the given per-platform limits.
func New(limits map[models.Platform]Limits) *Limiter {
	l := &Limiter{buckets: make(map[models.Platform]*bucket, len(limits)), fallback: DefaultLimits}
	for p, lim := range limits {
		l.buckets[p] = newBucket(lim)
	}
	return l
}

func (l *Limiter) bucket(p models.Platform) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[p]
	if !ok {
		b = newBucket(l.fallback)
		l.buckets[p] = b
	}
	return b
}

// Permit is the right to issue one request. Release it when the request completes.
type Permit struct {
	Platform models.Platform
	// Waited is the time spent queued for the permit.
	Waited   time.Duration
	bucket   *bucket
	released atomic.Bool
}

// Acquire blocks until a request to platform may be sent or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, platform models.Platform) (*Permit, error) {
	b := l.bucket(platform)
	start := time.Now()

	if err := b.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer b.gate.Release(1)

	if err := b.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := b.tokens.Wait(ctx); err != nil {
		b.slots.Release(1)
		return nil, err
	}

	b.active.Add(1)
	return &Permit{Platform: platform, Waited: time.Since(start), bucket: b}, nil
}

// Release returns the permit's in-flight slot. Releasing twice is a no-op.
func (l *Limiter) Release(p *Permit) {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	p.bucket.active.Add(-1)
	p.bucket.slots.Release(1)
}

// InFlight reports the permits currently held for platform.
func (l *Limiter) InFlight(platform models.Platform) int {
	return int(l.bucket(platform).active.Load())
}

// Do acquires a permit, runs fn and releases the permit.
func (l *Limiter) Do(ctx context.Context, platform models.Platform, fn func(context.Context) error) error {
	p, err := l.Acquire(ctx, platform)
	if err != nil {
		return err
	}
	defer l.Release(p)
	return fn(ctx)
}
