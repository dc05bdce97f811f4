package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds the request rate per client. A zero RequestsPerMinute
// disables limiting.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
}

// RateLimiter applies a token-bucket limit per client address. Entries idle
// for longer than the retention window are dropped by a background sweep.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterRetention = 10 * time.Minute

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{cfg: cfg, clients: make(map[string]*clientLimiter)}
	if cfg.RequestsPerMinute > 0 {
		go rl.sweep()
	}
	return rl
}

// Middleware rejects requests exceeding the per-client budget with 429.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.cfg.RequestsPerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if !rl.allow(clientAddress(r)) {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) allow(client string) bool {
	rl.mu.Lock()
	entry, ok := rl.clients[client]
	if !ok {
		burst := rl.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerMinute/60.0), burst)}
		rl.clients[client] = entry
	}
	entry.lastSeen = time.Now()
	rl.mu.Unlock()
	return entry.limiter.Allow()
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(limiterRetention / 2)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-limiterRetention)
		rl.mu.Lock()
		for client, entry := range rl.clients {
			if entry.lastSeen.Before(cutoff) {
				delete(rl.clients, client)
			}
		}
		rl.mu.Unlock()
	}
}

// clientAddress resolves the originating client, honoring proxy headers so a
// deployment behind a load balancer limits end clients rather than the proxy.
func clientAddress(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := fwd
		if comma := strings.IndexByte(fwd, ','); comma >= 0 {
			first = fwd[:comma]
		}
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
