// Package ratelimit provides token-bucket admission control for broker API
// quotas, plus a minimum-interval gate for smart (multi-leg) orders.
//
// Refill is lazy: tokens accrue on acquire based on elapsed wall time, capped
// at capacity. There is no background timer. A rejection is an explicit
// "not yet" signal carrying a retry-after duration; this layer never retries.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Category selects which bucket admits an operation.
type Category string

const (
	General    Category = "general"
	Order      Category = "order"
	SmartOrder Category = "smart_order"
)

// Default rates, in requests per second. Capacity equals the per-second rate.
const (
	DefaultGeneralRate    = 100.0
	DefaultOrderRate      = 10.0
	DefaultSmartOrderRate = 2.0

	// DefaultSmartDelay is the minimum wall-clock interval between
	// successive smart orders.
	DefaultSmartDelay = 500 * time.Millisecond
)

// LimitError reports a rejected acquisition. Callers should back off for
// RetryAfter; it is not a hard failure.
type LimitError struct {
	Category   Category
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %v", e.Category, e.RetryAfter)
}

type bucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// refill must be called with the limiter mutex held.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// Limiter is a set of independent token buckets keyed by category, plus the
// smart-order delay gate. Safe for concurrent use; the mutex is held only for
// O(1) bookkeeping, never across a network call.
type Limiter struct {
	mu      sync.Mutex
	buckets map[Category]*bucket

	smartDelay time.Duration
	lastSmart  time.Time // zero until the first smart order

	now func() time.Time // injectable clock
}

// New creates a Limiter with the default rates and smart-order delay.
func New() *Limiter {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Limiter that reads time from now. Tests use a
// simulated clock; production passes time.Now via New.
func NewWithClock(now func() time.Time) *Limiter {
	l := &Limiter{
		buckets:    make(map[Category]*bucket),
		smartDelay: DefaultSmartDelay,
		now:        now,
	}
	t := now()
	l.buckets[General] = &bucket{capacity: DefaultGeneralRate, tokens: DefaultGeneralRate, refillRate: DefaultGeneralRate, lastRefill: t}
	l.buckets[Order] = &bucket{capacity: DefaultOrderRate, tokens: DefaultOrderRate, refillRate: DefaultOrderRate, lastRefill: t}
	l.buckets[SmartOrder] = &bucket{capacity: DefaultSmartOrderRate, tokens: DefaultSmartOrderRate, refillRate: DefaultSmartOrderRate, lastRefill: t}
	return l
}

// TryAcquire admits one operation in the given category, or returns a
// *LimitError with the time until a token becomes available. Unknown
// categories fall back to the General bucket.
func (l *Limiter) TryAcquire(cat Category) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[cat]
	if !ok {
		cat = General
		b = l.buckets[General]
	}

	b.refill(l.now())
	if b.tokens >= 1 {
		b.tokens--
		return nil
	}
	wait := time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
	return &LimitError{Category: cat, RetryAfter: wait}
}

// CheckSmartDelay enforces the minimum interval between smart orders.
// The first call after construction always passes. A call before the
// configured delay has elapsed fails with the remaining wait.
func (l *Limiter) CheckSmartDelay() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !l.lastSmart.IsZero() {
		if elapsed := now.Sub(l.lastSmart); elapsed < l.smartDelay {
			return &LimitError{Category: SmartOrder, RetryAfter: l.smartDelay - elapsed}
		}
	}
	l.lastSmart = now
	return nil
}

// SetRate reconfigures one bucket. Takes effect on the next acquisition.
// Capacity follows the rate; current tokens are clamped to the new capacity.
func (l *Limiter) SetRate(cat Category, perSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[cat]
	if !ok {
		return
	}
	b.refill(l.now())
	b.capacity = perSecond
	b.refillRate = perSecond
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
}

// SetSmartDelay reconfigures the smart-order interval gate.
func (l *Limiter) SetSmartDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.smartDelay = d
}
