// Package rate implements the credit-accumulation scheduler used by the
// open-model executors to turn a target iterations-per-second rate into a
// sequence of scheduled moments, bounded to one tick of overshoot or
// undershoot per spec §4.3.
package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// LeakyBucket schedules events at a target rate using virtual drip time:
// rather than tracking discrete tokens, it accumulates fractional credit
// proportional to elapsed time and fires whenever that credit reaches 1.0.
// This gives smooth, low-jitter scheduling without the thundering-herd
// bursts a naive token bucket can produce at high rates.
type LeakyBucket struct {
	mu          sync.Mutex
	rate        float64 // events per second
	lastDrip    time.Time
	accumulated float64
	maxBurst    float64

	totalIterations atomic.Int64
	totalWaitTime   atomic.Int64 // nanoseconds
}

// NewLeakyBucket creates a bucket with no burst allowance (maxBurst=1.0,
// i.e. at most one immediately-available credit).
func NewLeakyBucket(ratePerSecond float64) *LeakyBucket {
	return NewLeakyBucketWithBurst(ratePerSecond, 1.0)
}

func NewLeakyBucketWithBurst(ratePerSecond, maxBurst float64) *LeakyBucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 0.01
	}
	if maxBurst < 1.0 {
		maxBurst = 1.0
	}
	return &LeakyBucket{
		rate:     ratePerSecond,
		lastDrip: time.Now(),
		maxBurst: maxBurst,
	}
}

// Next returns the time at which the next event should fire, advancing the
// bucket's internal state as if that event has now been scheduled.
func (b *LeakyBucket) Next() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastDrip).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.accumulated += elapsed * b.rate
	if b.accumulated > b.maxBurst {
		b.accumulated = b.maxBurst
	}

	if b.accumulated >= 1.0 {
		b.accumulated -= 1.0
		b.lastDrip = now
		return now
	}

	deficit := 1.0 - b.accumulated
	waitSeconds := deficit / b.rate
	b.accumulated = 0
	next := now.Add(time.Duration(waitSeconds * float64(time.Second)))

	// lastDrip is set to the scheduled time, not now: this prevents the
	// elapsed-time computation on the *following* call from double-counting
	// the interval we just "pre-paid" by waiting, which would otherwise let
	// one extra iteration fire immediately upon waking.
	b.lastDrip = next

	return next
}

// Wait blocks until the next scheduled time, or returns ctx.Err() if ctx is
// cancelled first.
func (b *LeakyBucket) Wait(ctx context.Context) error {
	start := time.Now()
	next := b.Next()
	defer func() {
		b.totalIterations.Add(1)
		b.totalWaitTime.Add(int64(time.Since(start)))
	}()

	d := time.Until(next)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetRate updates the target rate. Accumulated credit is reset rather than
// carried over, so a rate change never produces a burst.
func (b *LeakyBucket) SetRate(ratePerSecond float64) {
	if ratePerSecond <= 0 {
		ratePerSecond = 0.01
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rate = ratePerSecond
	b.accumulated = 0
	b.lastDrip = time.Now()
}

func (b *LeakyBucket) GetRate() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rate
}

func (b *LeakyBucket) SetMaxBurst(maxBurst float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if maxBurst < 1.0 {
		maxBurst = 1.0
	}
	b.maxBurst = maxBurst
}

type Stats struct {
	Rate            float64
	Accumulated     float64
	MaxBurst        float64
	TotalIterations int64
	TotalWaitTime   time.Duration
}

func (b *LeakyBucket) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Rate:            b.rate,
		Accumulated:     b.accumulated,
		MaxBurst:        b.maxBurst,
		TotalIterations: b.totalIterations.Load(),
		TotalWaitTime:   time.Duration(b.totalWaitTime.Load()),
	}
}

func (b *LeakyBucket) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accumulated = 0
	b.lastDrip = time.Now()
	b.totalIterations.Store(0)
	b.totalWaitTime.Store(0)
}
