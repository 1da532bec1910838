// Package throttle implements a token bucket used to cap the rate of
// desktop notifications fired while escalating through an idle plan.
//
// A flaky session bus or a misconfigured plan with a very short per-step
// timeout can otherwise flood the user with notify-send calls. The bucket
// refills to full capacity on a fixed period rather than trickling tokens
// back continuously: a burst is allowed, then the budget recovers all at
// once.
//
// Invariants:
//   - tokens ∈ [0, capacity] at all times.
//   - Consume is atomic under mutex.
//   - the refill goroutine runs for the lifetime of the Bucket.
package throttle

import (
	"sync"
	"sync/atomic"
	"time"
)

// Bucket is a thread-safe token bucket for rate-limiting notifications.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// New creates a Bucket with the given capacity and starts the refill
// goroutine. capacity must be > 0, refillPeriod must be > 0. Call Close to
// stop the refill goroutine.
func New(capacity int, refillPeriod time.Duration) *Bucket {
	if capacity <= 0 {
		panic("throttle.Bucket: capacity must be > 0")
	}
	if refillPeriod <= 0 {
		panic("throttle.Bucket: refillPeriod must be > 0")
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Allow attempts to consume a single token. Returns true if a notification
// may proceed, false if the budget is exhausted and the notification should
// be dropped.
func (b *Bucket) Allow() bool {
	return b.Consume(1)
}

// Consume attempts to consume cost tokens from the bucket. Returns true if
// the tokens were available and consumed.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// Remaining returns the current token count.
func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Capacity returns the maximum token capacity.
func (b *Bucket) Capacity() int {
	return b.capacity
}

// ConsumedTotal returns the lifetime total of tokens consumed.
func (b *Bucket) ConsumedTotal() uint64 {
	return b.consumedTotal.Load()
}

// RefillCount returns the number of refill cycles completed.
func (b *Bucket) RefillCount() uint64 {
	return b.refillCount.Load()
}

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() {
	close(b.stop)
}
