package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per caller in process memory. Buckets
// idle for more than twice the eviction interval are dropped by a background
// goroutine.
type MemoryLimiter struct {
	rate          rate.Limit
	burst         int
	perMinute     int
	evictInterval time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	done    chan struct{}
	once    sync.Once
}

// NewMemoryLimiter creates a limiter refilling requestsPerMinute tokens a
// minute with room for burst, and starts the eviction goroutine.
func NewMemoryLimiter(requestsPerMinute, burst int, evictInterval time.Duration) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:          rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:         burst,
		perMinute:     requestsPerMinute,
		evictInterval: evictInterval,
		buckets:       make(map[string]*bucket),
		done:          make(chan struct{}),
	}
	go m.evictLoop()
	return m
}

// Allow takes one token from key's bucket.
func (m *MemoryLimiter) Allow(key string) (bool, Info) {
	now := time.Now()

	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(m.rate, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now
	m.mu.Unlock()

	info := Info{Limit: m.perMinute}
	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		info.RetryAfter = delay
		return false, info
	}

	info.Remaining = int(math.Max(0, math.Floor(b.limiter.TokensAt(now))))
	return true, info
}

// Len returns the number of tracked callers.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Close stops the eviction goroutine. It is safe to call more than once.
func (m *MemoryLimiter) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *MemoryLimiter) evictLoop() {
	ticker := time.NewTicker(m.evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictIdle(time.Now().Add(-2 * m.evictInterval))
		}
	}
}

func (m *MemoryLimiter) evictIdle(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, b := range m.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
