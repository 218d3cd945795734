package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter applies a token bucket per client ID and evicts idle buckets
// on demand.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu     sync.Mutex
	byID   map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows maxPerMinute messages per client with a burst of
// the same size.
func NewRateLimiter(maxPerMinute int) *RateLimiter {
	if maxPerMinute <= 0 {
		maxPerMinute = 60
	}
	return &RateLimiter{
		limit: rate.Limit(float64(maxPerMinute) / 60.0),
		burst: maxPerMinute,
		byID:  make(map[string]*bucket),
	}
}

// Allow reports whether one token is available for the client now.
func (l *RateLimiter) Allow(clientID string) bool {
	return l.allowAt(clientID, time.Now())
}

func (l *RateLimiter) allowAt(clientID string, now time.Time) bool {
	if clientID == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.byID[clientID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.byID[clientID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// CleanupInactive drops buckets idle longer than maxIdle, returning how
// many were removed.
func (l *RateLimiter) CleanupInactive(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, b := range l.byID {
		if b.lastSeen.Before(cutoff) {
			delete(l.byID, id)
			removed++
		}
	}
	return removed
}

// ConnectionLimiter is a bounded semaphore over concurrent connections.
type ConnectionLimiter struct {
	slots chan struct{}
}

func NewConnectionLimiter(max int) *ConnectionLimiter {
	if max <= 0 {
		max = 100
	}
	return &ConnectionLimiter{slots: make(chan struct{}, max)}
}

// TryAcquire claims a slot, reporting false at capacity.
func (l *ConnectionLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot claimed by TryAcquire.
func (l *ConnectionLimiter) Release() {
	select {
	case <-l.slots:
	default:
	}
}

// ActiveCount reports the claimed slot count.
func (l *ConnectionLimiter) ActiveCount() int {
	return len(l.slots)
}
