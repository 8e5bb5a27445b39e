package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/apierr"
	"github.com/0xJonHoldsCrypto/clawed-escrow/internal/metrics"
)

const (
	// staleLimiterTTL is how long a per-IP limiter can be idle before the
	// sweep evicts it.
	staleLimiterTTL = 10 * time.Minute

	// sweepInterval is how often the background goroutine sweeps stale
	// entries.
	sweepInterval = time.Minute
)

// limiterEntry wraps a rate.Limiter with a last-accessed timestamp for
// TTL-based eviction.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimitMiddleware applies a per-IP token bucket across the whole public
// surface. The configured budget of max requests per window becomes a
// steady refill rate with a burst of the full budget, so a client that has
// been quiet can spend its window's allowance at once but cannot exceed it
// sustained.
type rateLimitMiddleware struct {
	rps        rate.Limit
	burst      int
	window     time.Duration
	trustProxy bool
	logger     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*limiterEntry

	sweepOnce sync.Once
}

func newRateLimitMiddleware(window time.Duration, max int, trustProxy bool, logger *slog.Logger) *rateLimitMiddleware {
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 100
	}
	return &rateLimitMiddleware{
		rps:        rate.Limit(float64(max) / window.Seconds()),
		burst:      max,
		window:     window,
		trustProxy: trustProxy,
		logger:     logger,
		limiters:   make(map[string]*limiterEntry),
	}
}

// Wrap applies the per-IP limiter before delegating to next. The first call
// to Wrap also starts the background TTL sweep.
func (rl *rateLimitMiddleware) Wrap(next http.Handler) http.Handler {
	rl.sweepOnce.Do(func() { go rl.sweepLoop() })

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		if !rl.getOrCreateLimiter(ip).Allow() {
			metrics.APIRateLimitRejectionsTotal.WithLabelValues(routeTemplate(r.URL.Path)).Inc()
			rl.logger.Warn("rate limit exceeded", "client_ip", ip, "path", r.URL.Path)
			apierr.Write(w, apierr.RateLimited(rl.retryAfterSeconds()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds is the steady-state wait for one token: the window
// divided by its request budget, floored at one second.
func (rl *rateLimitMiddleware) retryAfterSeconds() int {
	retryAfter := int((rl.window / time.Duration(rl.burst)).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return retryAfter
}

// getOrCreateLimiter retrieves or creates the token bucket for ip and
// refreshes its eviction timestamp.
func (rl *rateLimitMiddleware) getOrCreateLimiter(ip string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[ip]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.rps, rl.burst)
	rl.limiters[ip] = &limiterEntry{limiter: limiter, lastSeen: now}
	return limiter
}

func (rl *rateLimitMiddleware) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		rl.evictStale()
	}
}

// evictStale removes limiter entries that have not been accessed within the
// TTL.
func (rl *rateLimitMiddleware) evictStale() {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, ip)
		}
	}
}

// clientIP honors X-Forwarded-For and X-Real-IP only when trustProxy is
// configured; otherwise the peer address decides.
func (rl *rateLimitMiddleware) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if idx := strings.IndexByte(xff, ','); idx != -1 {
				return strings.TrimSpace(xff[:idx])
			}
			return strings.TrimSpace(xff)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
