// Package security guards the HTTP surface against abusive clients.
package security

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"conversation-chaos/internal/config"
	"conversation-chaos/internal/logging"
	"conversation-chaos/internal/monitoring"
)

// clientLimiter is one client's token bucket and when it was last used
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter enforces a token bucket per client IP
type RateLimiter struct {
	config  config.RateLimitConfig
	logger  *logging.Logger
	metrics *monitoring.ChaosMetrics

	mu       sync.Mutex
	limiters map[string]*clientLimiter
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRateLimiter creates a limiter and starts its idle-client sweeper. Call
// Stop to end the sweeper.
func NewRateLimiter(cfg config.RateLimitConfig, logger *logging.Logger, metrics *monitoring.ChaosMetrics) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 20
	}
	if cfg.Burst < 1 {
		cfg.Burst = 40
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = logging.Discard()
	}

	rl := &RateLimiter{
		config:   cfg,
		logger:   logger.WithField("component", "rate_limiter"),
		metrics:  metrics,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	rl.wg.Add(1)
	go rl.cleanupLoop()
	return rl
}

// Stop ends the sweeper. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
		rl.wg.Wait()
	})
}

// Allow takes one token from the client's bucket.
func (rl *RateLimiter) Allow(client string) bool {
	return rl.limiterFor(client).AllowN(rl.now(), 1)
}

// Clients reports how many clients currently hold a bucket.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if cl, ok := rl.limiters[client]; ok {
		cl.lastAccess = now
		return cl.limiter
	}

	cl := &clientLimiter{
		limiter:    rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
		lastAccess: now,
	}
	rl.limiters[client] = cl
	return cl.limiter
}

// Middleware rejects requests over the limit with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ClientIP(r)
		if client == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(rl.config.RequestsPerSecond, 'f', -1, 64))
		if !rl.Allow(client) {
			rl.metrics.RequestRateLimited()
			rl.logger.WithContext(r.Context()).Warn("Rate limit exceeded",
				"client", client,
				"method", r.Method,
				"path", r.URL.Path,
			)

			retryAfter := int(math.Ceil(1 / rl.config.RequestsPerSecond))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate limit exceeded","code":%d,"message":%q}`+"\n",
				http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) cleanupLoop() {
	defer rl.wg.Done()

	ticker := time.NewTicker(rl.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := rl.cleanup(); removed > 0 {
				rl.logger.Debug("Forgot idle clients", "removed", removed)
			}
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for longer than IdleTimeout
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.IdleTimeout)
	removed := 0
	for client, cl := range rl.limiters {
		if cl.lastAccess.Before(cutoff) {
			delete(rl.limiters, client)
			removed++
		}
	}
	return removed
}

// ClientIP identifies the caller: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip := strings.TrimSpace(strings.Split(fwd, ",")[0]); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
