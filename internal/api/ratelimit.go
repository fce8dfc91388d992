package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a per-client-IP token bucket guarding expensive routes.
type Limiter struct {
	mu        sync.Mutex
	rate      float64 // tokens/sec
	burst     float64
	clients   map[string]*bucket
	ttl       time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func NewLimiter(rate, burst float64) *Limiter {
	if burst < 1 {
		burst = 1
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Limiter{
		rate:      rate,
		burst:     burst,
		clients:   make(map[string]*bucket),
		ttl:       10 * time.Minute,
		lastPrune: now(),
		now:       now,
	}
}

func (l *Limiter) Allow(r *http.Request) bool {
	ip := clientIP(r)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.pruneLocked(now)

	b, ok := l.clients[ip]
	if !ok {
		b = &bucket{tokens: l.burst, last: now}
		l.clients[ip] = b
	}

	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
		b.last = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limit rejects requests over the client's budget with 429.
func (l *Limiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < 2*time.Minute {
		return
	}
	l.lastPrune = now

	for ip, b := range l.clients {
		if now.Sub(b.last) > l.ttl {
			delete(l.clients, ip)
		}
	}
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For is not trusted.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
