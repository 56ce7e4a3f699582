package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"waenhancer/internal/errors"
	"waenhancer/internal/httputil"
)

const (
	visitorTTL       = 10 * time.Minute
	cleanupThreshold = 1000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Idle buckets are evicted
// opportunistically during lookups.
type RateLimiter struct {
	rps            rate.Limit
	burst          int
	trustForwarded bool
	logger         *logrus.Logger

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  int
	now      func() time.Time
}

func NewRateLimiter(rps float64, burst int, trustForwarded bool, logger *logrus.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:            rate.Limit(rps),
		burst:          burst,
		trustForwarded: trustForwarded,
		logger:         logger,
		visitors:       make(map[string]*visitor),
		now:            time.Now,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= cleanupThreshold {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= visitorTTL {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Middleware answers 429 with a RATE_LIMITED body once a client's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r, rl.trustForwarded)
		if !rl.limiterFor(ip).Allow() {
			rl.logger.WithField("remote_ip", ip).Warn("Rate limit exceeded")
			err := errors.NewRateLimitError(float64(rl.rps), rl.burst)
			w.Header().Set("Retry-After", "1")
			_ = httputil.WriteJSON(w, errors.HTTPStatusCode(err), errors.ToResponse(err))
			return
		}
		next.ServeHTTP(w, r)
	})
}
