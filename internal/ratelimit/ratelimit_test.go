package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 10; i++ {
		if !l.Allow("client", 10) {
			t.Fatalf("request %d denied, want allowed", i)
		}
	}
}

func TestAllowDeniesWhenDrained(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 5; i++ {
		l.Allow("client", 5)
	}
	if l.Allow("client", 5) {
		t.Error("request beyond allowance granted, want denied")
	}
}

func TestAllowUnlimitedWhenZero(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 1000; i++ {
		if !l.Allow("client", 0) {
			t.Fatal("rpm=0 should never deny")
		}
	}
}

func TestAllowIsolatesKeys(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 5; i++ {
		l.Allow("a", 5)
	}
	if l.Allow("a", 5) {
		t.Error("drained key allowed")
	}
	if !l.Allow("b", 5) {
		t.Error("fresh key denied")
	}
}

func TestAllowRefills(t *testing.T) {
	l := NewLimiter()
	for i := 0; i < 60; i++ {
		l.Allow("client", 60)
	}
	if l.Allow("client", 60) {
		t.Fatal("expected drained bucket")
	}

	// Backdate the refill stamp instead of sleeping.
	l.mu.Lock()
	l.buckets["client"].lastRefill = time.Now().Add(-2 * time.Second)
	l.mu.Unlock()

	if !l.Allow("client", 60) {
		t.Error("bucket did not refill after elapsed time")
	}
}

func TestRetryAfter(t *testing.T) {
	l := NewLimiter()
	if got := l.RetryAfter("client", 0); got != 0 {
		t.Errorf("RetryAfter with rpm=0 = %d, want 0", got)
	}
	if got := l.RetryAfter("client", 60); got != 1 {
		t.Errorf("RetryAfter with no bucket = %d, want 1", got)
	}

	for i := 0; i < 6; i++ {
		l.Allow("client", 6)
	}
	got := l.RetryAfter("client", 6)
	if got < 1 || got > 11 {
		t.Errorf("RetryAfter on drained bucket = %d, want within [1,11]", got)
	}
}

func TestCleanup(t *testing.T) {
	l := NewLimiter()
	l.Allow("stale", 10)
	l.Allow("fresh", 10)

	l.mu.Lock()
	l.buckets["stale"].lastRefill = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	l.Cleanup(10 * time.Minute)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.buckets["stale"]; ok {
		t.Error("stale bucket survived cleanup")
	}
	if _, ok := l.buckets["fresh"]; !ok {
		t.Error("fresh bucket removed by cleanup")
	}
}
