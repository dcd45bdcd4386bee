// Package ratelimit provides a token-bucket limiter keyed by client,
// used to slow down password guessing on the login endpoint.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// Limiter is a per-key token-bucket rate limiter.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{buckets: make(map[string]*bucket)}
}

// Allow reports whether a request for key is within rpm requests per
// minute. rpm <= 0 means unlimited.
func (l *Limiter) Allow(key string, rpm int) bool {
	if rpm <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(rpm), lastRefill: now}
		l.buckets[key] = b
	} else {
		elapsed := now.Sub(b.lastRefill).Seconds()
		b.tokens += elapsed * float64(rpm) / 60.0
		if b.tokens > float64(rpm) {
			b.tokens = float64(rpm)
		}
		b.lastRefill = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// RetryAfter returns the number of seconds until the next token for key
// becomes available, at least 1.
func (l *Limiter) RetryAfter(key string, rpm int) int {
	if rpm <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.tokens >= 1 {
		return 1
	}
	missing := 1 - b.tokens
	secs := missing * 60.0 / float64(rpm)
	if secs < 1 {
		return 1
	}
	return int(secs + 0.5)
}

// Cleanup removes buckets idle longer than maxIdle.
func (l *Limiter) Cleanup(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for key, b := range l.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
