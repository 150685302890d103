package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

func TestLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("bounds in-flight permits", func(t *testing.T) {
		l := New(map[models.Platform]Limits{models.Spotify: {RequestsPerSecond: 1000, Burst: 100, MaxInFlight: 2}})

		p1, err := l.Acquire(ctx, models.Spotify)
		if err != nil {
			t.Fatalf("first acquire: %v", err)
		}
		p2, err := l.Acquire(ctx, models.Spotify)
		if err != nil {
			t.Fatalf("second acquire: %v", err)
		}
		if got := l.InFlight(models.Spotify); got != 2 {
			t.Errorf("expected 2 in flight, got %d", got)
		}

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := l.Acquire(cctx, models.Spotify); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("third acquire should block until deadline, got %v", err)
		}

		l.Release(p1)
		l.Release(p1)
		if got := l.InFlight(models.Spotify); got != 1 {
			t.Errorf("double release must be a no-op, got %d in flight", got)
		}

		p3, err := l.Acquire(ctx, models.Spotify)
		if err != nil {
			t.Fatalf("acquire after release: %v", err)
		}
		l.Release(p2)
		l.Release(p3)
	})

	t.Run("platforms have independent buckets", func(t *testing.T) {
		l := New(map[models.Platform]Limits{
			models.Spotify: {RequestsPerSecond: 1000, Burst: 10, MaxInFlight: 1},
			models.YouTube: {RequestsPerSecond: 1000, Burst: 10, MaxInFlight: 1},
		})

		sp, err := l.Acquire(ctx, models.Spotify)
		if err != nil {
			t.Fatal(err)
		}
		defer l.Release(sp)

		cctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		yt, err := l.Acquire(cctx, models.YouTube)
		if err != nil {
			t.Fatalf("youtube should not wait on spotify: %v", err)
		}
		l.Release(yt)
	})

	t.Run("token bucket spaces requests", func(t *testing.T) {
		l := New(map[models.Platform]Limits{models.YouTube: {RequestsPerSecond: 20, Burst: 1, MaxInFlight: 10}})

		start := time.Now()
		for range 3 {
			p, err := l.Acquire(ctx, models.YouTube)
			if err != nil {
				t.Fatal(err)
			}
			l.Release(p)
		}
		if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
			t.Errorf("3 permits at 20/s with burst 1 took %v, want >= 100ms", elapsed)
		}
	})

	t.Run("permits are granted in arrival order", func(t *testing.T) {
		l := New(map[models.Platform]Limits{models.Spotify: {RequestsPerSecond: 1000, Burst: 100, MaxInFlight: 1}})

		holder, err := l.Acquire(ctx, models.Spotify)
		if err != nil {
			t.Fatal(err)
		}

		var mu sync.Mutex
		var order []int
		var wg sync.WaitGroup
		for i := range 5 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				p, err := l.Acquire(ctx, models.Spotify)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				l.Release(p)
			}(i)
			// let waiter i queue before i+1
			time.Sleep(10 * time.Millisecond)
		}

		l.Release(holder)
		wg.Wait()

		for i, got := range order {
			if got != i {
				t.Fatalf("permits granted out of order: %v", order)
			}
		}
	})

	t.Run("unknown platform gets default bucket", func(t *testing.T) {
		l := New(nil)
		err := l.Do(ctx, models.Platform("tidal"), func(context.Context) error { return nil })
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if got := l.InFlight(models.Platform("tidal")); got != 0 {
			t.Errorf("Do must release its permit, got %d in flight", got)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		l := New(nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := l.Acquire(cctx, models.Spotify); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestFromConfig(t *testing.T) {
	limits := FromConfig(map[string]shared.RateLimitConfig{
		"spotify": {RequestsPerSecond: 10, Burst: 10, MaxInFlight: 4},
		"ytmusic": {RequestsPerSecond: 2, Burst: 2, MaxInFlight: 2},
	})

	if limits[models.Spotify].MaxInFlight != 4 {
		t.Errorf("unexpected spotify limits %+v", limits[models.Spotify])
	}
	if limits[models.YouTube].RequestsPerSecond != 2 {
		t.Errorf("ytmusic alias should map to youtube, got %+v", limits)
	}
}
