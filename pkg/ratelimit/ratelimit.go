/*
Package ratelimit caps admitted requests per caller identity, as a
standalone package both the Controller and the Gateway can call
without pulling in a full HTTP middleware stack.
*/
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter caps the admitted rate per identity. A "5 per 60s" limit is
// modeled as a token bucket of burst 5 refilling one token every 12s
// (window/perWindow): after 5 back-to-back requests the 6th is denied
// until a token has refilled, and the full burst is available again a
// full window after being exhausted. It is not a sliding-window count:
// because tokens refill continuously, more than perWindow requests can
// be admitted within a single window (up to 9 in 60s at 5 per 60s).
type Limiter struct {
	perWindow int
	window    time.Duration

	mu       sync.Mutex
	entries  map[string]*entry
	maxIdle  time.Duration
}

type entry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// New builds a Limiter allowing each identity a burst of perWindow calls,
// refilled at perWindow per window duration.
func New(perWindow int, window time.Duration) *Limiter {
	return &Limiter{
		perWindow: perWindow,
		window:    window,
		entries:   make(map[string]*entry),
		maxIdle:   time.Hour,
	}
}

// Allow reports whether identity may proceed, consuming one token if so.
func (l *Limiter) Allow(identity string) bool {
	l.mu.Lock()
	e, ok := l.entries[identity]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(float64(l.perWindow)/l.window.Seconds()), l.perWindow)}
		l.entries[identity] = e
	}
	e.lastSeenAt = time.Now()
	limiter := e.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// Cleanup evicts identities that have not been seen in maxIdle, keyed
// on actual last-access time instead of a blunt total-count threshold.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.maxIdle)
	removed := 0
	for id, e := range l.entries {
		if e.lastSeenAt.Before(cutoff) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// StartCleanupJob runs Cleanup on an hourly tick until stop is closed.
func (l *Limiter) StartCleanupJob(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-stop:
				return
			}
		}
	}()
}

// IdentityFromRequest extracts the caller identity (remote network
// address): the ingress layer, not the request body, determines
// identity.
func IdentityFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
