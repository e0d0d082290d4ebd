// Package ratelimit implements per-key token bucket limiting for the
// HTTP API.
package ratelimit

import (
	"sync"
	"time"
)

// Config sizes the bucket handed to each key.
type Config struct {
	// RequestsPerSecond is the sustained refill rate per key.
	RequestsPerSecond float64
	// Burst is the bucket capacity: how many requests a key can spend
	// back to back after idling.
	Burst int
}

// maxTrackedKeys bounds the bucket map. Beyond it, refilled buckets
// are pruned before a new key is admitted.
const maxTrackedKeys = 10000

// Limiter maintains one token bucket per key. Keys are user IDs for
// authenticated requests and client addresses otherwise.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     Config

	// Overridable for deterministic tests.
	now func() time.Time
}

// NewLimiter creates a limiter, substituting sane defaults for missing
// rate and burst values.
func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now, consuming one token if so.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(key, now)
	b.refill(now, l.cfg)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// RetryAfter returns how long key must wait before its next request
// would be allowed. Zero means it would be allowed now.
func (l *Limiter) RetryAfter(key string) time.Duration {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.bucketFor(key, now)
	b.refill(now, l.cfg)
	if b.tokens >= 1 {
		return 0
	}
	missing := 1 - b.tokens
	return time.Duration(missing / l.cfg.RequestsPerSecond * float64(time.Second))
}

// bucketFor returns the bucket for key, creating a full one for a key
// not seen before. Callers must hold the lock.
func (l *Limiter) bucketFor(key string, now time.Time) *bucket {
	if b, ok := l.buckets[key]; ok {
		return b
	}
	if len(l.buckets) >= maxTrackedKeys {
		l.prune(now)
	}
	b := &bucket{tokens: float64(l.cfg.Burst), last: now}
	l.buckets[key] = b
	return b
}

// prune drops buckets that have refilled close to capacity; those keys
// have been idle long enough to forget.
func (l *Limiter) prune(now time.Time) {
	capacity := float64(l.cfg.Burst)
	for key, b := range l.buckets {
		b.refill(now, l.cfg)
		if b.tokens >= capacity*0.9 {
			delete(l.buckets, key)
		}
	}
}

type bucket struct {
	tokens float64
	last   time.Time
}

func (b *bucket) refill(now time.Time, cfg Config) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.last = now
	b.tokens += elapsed * cfg.RequestsPerSecond
	if capacity := float64(cfg.Burst); b.tokens > capacity {
		b.tokens = capacity
	}
}
