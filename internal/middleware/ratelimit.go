package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// maxClients bounds the limiter table.
	maxClients = 100_000

	idleAfter = 10 * time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP. Expansions fan out to
// many providers, so the limit guards the outbound load as much as the server.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
}

// NewRateLimiter creates a RateLimiter allowing ratePerSec requests per
// second with the given burst. Idle clients are evicted until ctx is cancelled.
func NewRateLimiter(ctx context.Context, ratePerSec float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(ratePerSec),
		burst:   burst,
	}

	go rl.evictIdle(ctx)

	return rl
}

func (rl *RateLimiter) evictIdle(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for ip, cl := range rl.clients {
				if now.Sub(cl.lastSeen) > idleAfter {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// allow reports whether ip may proceed. full is set when ip is new and the
// table has no room for it.
func (rl *RateLimiter) allow(ip string) (ok, full bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, found := rl.clients[ip]
	if !found {
		if len(rl.clients) >= maxClients {
			return false, true
		}

		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = cl
	}

	cl.lastSeen = time.Now()

	return cl.limiter.Allow(), false
}

// Handler returns gin middleware enforcing the limit.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// ClientIP ignores forwarding headers: the router trusts no proxies.
		ok, full := rl.allow(c.ClientIP())

		switch {
		case full:
			respondError(c, http.StatusTooManyRequests, "rate_limited", "too many clients")
		case !ok:
			respondError(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		default:
			c.Next()
		}
	}
}
