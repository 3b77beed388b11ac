package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per key, typically a route scope
// joined with the client IP. Keys idle for longer than ttl are forgotten.
type IPRateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	every     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewIPRateLimiter allows requests events per window for each key on top of
// burst. Non-positive arguments fall back to 1 per second, burst 1, ttl 5m.
func NewIPRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *IPRateLimiter {
	requests = max(requests, 1)
	burst = max(burst, 1)
	if window <= 0 {
		window = time.Second
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &IPRateLimiter{
		clients: make(map[string]*client),
		every:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow consumes a token for key and reports whether one was available.
func (l *IPRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	if now.Sub(l.lastSweep) > l.ttl {
		l.sweepLocked(now)
	}
	l.mu.Unlock()

	return c.bucket.AllowN(now, 1)
}

// Len reports the number of tracked keys.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *IPRateLimiter) sweepLocked(now time.Time) {
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > l.ttl {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

// WithNowFunc allows tests to override the time source.
func (l *IPRateLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
