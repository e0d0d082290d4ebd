package ratelimit

import (
	"fmt"
	"testing"
	"time"
)

// frozenLimiter pins the limiter's clock to a controllable instant.
func frozenLimiter(cfg Config) (*Limiter, *time.Time) {
	now := time.Unix(1700000000, 0)
	l := NewLimiter(cfg)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_BurstThenThrottle(t *testing.T) {
	l, _ := frozenLimiter(Config{RequestsPerSecond: 1, Burst: 2})

	if !l.Allow("user-1") || !l.Allow("user-1") {
		t.Fatal("burst capacity should admit the first two requests")
	}
	if l.Allow("user-1") {
		t.Error("third request within the same instant should be rejected")
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l, now := frozenLimiter(Config{RequestsPerSecond: 1, Burst: 1})

	if !l.Allow("user-1") {
		t.Fatal("first request should pass")
	}
	if l.Allow("user-1") {
		t.Fatal("bucket should be empty")
	}

	*now = now.Add(time.Second)
	if !l.Allow("user-1") {
		t.Error("one second at 1 rps should refill one token")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l, _ := frozenLimiter(Config{RequestsPerSecond: 1, Burst: 1})

	if !l.Allow("user-1") {
		t.Fatal("first request should pass")
	}
	if l.Allow("user-1") {
		t.Error("user-1 should be throttled")
	}
	if !l.Allow("user-2") {
		t.Error("user-2 has its own bucket and should pass")
	}
}

func TestRetryAfter(t *testing.T) {
	l, now := frozenLimiter(Config{RequestsPerSecond: 2, Burst: 1})

	if got := l.RetryAfter("user-1"); got != 0 {
		t.Errorf("RetryAfter() = %v before any requests, want 0", got)
	}

	l.Allow("user-1")
	if got := l.RetryAfter("user-1"); got != 500*time.Millisecond {
		t.Errorf("RetryAfter() = %v, want 500ms at 2 rps", got)
	}

	*now = now.Add(time.Second)
	if got := l.RetryAfter("user-1"); got != 0 {
		t.Errorf("RetryAfter() = %v after refill, want 0", got)
	}
}

func TestNewLimiter_Defaults(t *testing.T) {
	l, _ := frozenLimiter(Config{})

	allowed := 0
	for i := 0; i < 30; i++ {
		if l.Allow("user-1") {
			allowed++
		}
	}
	if allowed != 20 {
		t.Errorf("default burst admitted %d requests, want 20", allowed)
	}
}

func TestPrune_EvictsIdleKeys(t *testing.T) {
	l, now := frozenLimiter(Config{RequestsPerSecond: 100, Burst: 10})

	for i := 0; i < maxTrackedKeys; i++ {
		l.Allow(fmt.Sprintf("key-%d", i))
	}
	if len(l.buckets) != maxTrackedKeys {
		t.Fatalf("tracked %d keys, want %d", len(l.buckets), maxTrackedKeys)
	}

	// Older buckets refill to capacity and become prunable.
	*now = now.Add(time.Minute)
	l.Allow("one-more")

	if len(l.buckets) >= maxTrackedKeys {
		t.Errorf("tracked %d keys after prune, want fewer than %d", len(l.buckets), maxTrackedKeys)
	}
}
