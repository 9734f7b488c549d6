package ratelimit

import (
	"errors"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for deterministic bucket tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }
func newFakeClock() *fakeClock               { return &fakeClock{t: time.Unix(1700000000, 0)} }

func TestOrderBucket_ExactAdmission(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(clock.now)

	// capacity 10, refill 10/s: exactly 10 succeed, the 11th fails
	for i := 0; i < 10; i++ {
		if err := l.TryAcquire(Order); err != nil {
			t.Fatalf("acquire %d should succeed: %v", i+1, err)
		}
	}
	err := l.TryAcquire(Order)
	if err == nil {
		t.Fatal("11th acquire should be rejected")
	}
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if le.Category != Order {
		t.Fatalf("expected order category, got %s", le.Category)
	}
	if le.RetryAfter <= 0 || le.RetryAfter > 100*time.Millisecond {
		t.Fatalf("retry-after should be within one token interval, got %v", le.RetryAfter)
	}

	// advancing 0.1s refills exactly one token
	clock.advance(100 * time.Millisecond)
	if err := l.TryAcquire(Order); err != nil {
		t.Fatalf("acquire after refill should succeed: %v", err)
	}
	if err := l.TryAcquire(Order); err == nil {
		t.Fatal("only one token should have refilled")
	}
}

func TestBucket_CapsAtCapacity(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(clock.now)

	// long idle must not accrue beyond capacity
	clock.advance(time.Hour)
	for i := 0; i < 2; i++ {
		if err := l.TryAcquire(SmartOrder); err != nil {
			t.Fatalf("acquire %d: %v", i+1, err)
		}
	}
	if err := l.TryAcquire(SmartOrder); err == nil {
		t.Fatal("smart bucket capacity is 2")
	}
}

func TestSmartDelay_Gate(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(clock.now)
	l.SetSmartDelay(500 * time.Millisecond)

	if err := l.CheckSmartDelay(); err != nil {
		t.Fatalf("first smart order always passes: %v", err)
	}

	err := l.CheckSmartDelay()
	if err == nil {
		t.Fatal("second immediate smart order must fail")
	}
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LimitError, got %T", err)
	}
	if le.RetryAfter > 500*time.Millisecond {
		t.Fatalf("wait must be <= configured delay, got %v", le.RetryAfter)
	}

	clock.advance(501 * time.Millisecond)
	if err := l.CheckSmartDelay(); err != nil {
		t.Fatalf("smart order after delay should pass: %v", err)
	}
}

func TestSetRate_EffectiveNextAcquire(t *testing.T) {
	clock := newFakeClock()
	l := NewWithClock(clock.now)

	l.SetRate(Order, 1)
	if err := l.TryAcquire(Order); err != nil {
		t.Fatalf("first acquire at new rate: %v", err)
	}
	if err := l.TryAcquire(Order); err == nil {
		t.Fatal("rate 1/s leaves no second token")
	}
	clock.advance(time.Second)
	if err := l.TryAcquire(Order); err != nil {
		t.Fatalf("one token should refill per second: %v", err)
	}
}

func TestUnknownCategory_FallsBackToGeneral(t *testing.T) {
	l := NewWithClock(newFakeClock().now)
	if err := l.TryAcquire(Category("bogus")); err != nil {
		t.Fatalf("unknown category uses general bucket: %v", err)
	}
}
