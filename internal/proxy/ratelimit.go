package proxy

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apierrors "github.com/tutoria/tutor-relay/internal/errors"
)

const staleAfter = 5 * time.Minute

// clientLimiter tracks the bucket of a single client IP.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client IP. Idle buckets are swept
// on access, so no background goroutine is needed.
type rateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiters:  make(map[string]*clientLimiter),
		rate:      rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// allow reports whether the client may make a request now.
func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > staleAfter {
		for id, l := range rl.limiters {
			if now.Sub(l.lastSeen) > staleAfter {
				delete(rl.limiters, id)
			}
		}
		rl.lastSweep = now
	}

	l, ok := rl.limiters[client]
	if !ok {
		l = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[client] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// middleware rejects requests over the per-IP limit with 429.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			apierrors.WriteJSONError(w, http.StatusTooManyRequests, apierrors.ErrRateLimited.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
