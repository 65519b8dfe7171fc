package tcp

import (
	"sync"
	"time"
)

// AcceptLimiter admits at most rate connections per window from one
// remote host. Stale entries are pruned lazily from Allow, so there is no
// background goroutine to stop.
type AcceptLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int
	window  time.Duration

	lastPrune time.Time
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

// NewAcceptLimiter creates a limiter allowing rate accepts per window
// per host. A rate of zero or less admits everything.
func NewAcceptLimiter(rate int, window time.Duration) *AcceptLimiter {
	return &AcceptLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
	}
}

// Allow reports whether host may open another connection at now.
func (l *AcceptLimiter) Allow(host string, now time.Time) bool {
	if l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)

	b, ok := l.buckets[host]
	if !ok {
		l.buckets[host] = &bucket{tokens: l.rate - 1, lastReset: now}
		return true
	}

	if now.Sub(b.lastReset) >= l.window {
		b.tokens = l.rate - 1
		b.lastReset = now
		return true
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Tracked returns how many hosts currently have a bucket.
func (l *AcceptLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *AcceptLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < 2*l.window {
		return
	}
	l.lastPrune = now
	for host, b := range l.buckets {
		if now.Sub(b.lastReset) > 2*l.window {
			delete(l.buckets, host)
		}
	}
}
