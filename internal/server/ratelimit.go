package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// A client idle longer than limiterIdleTTL is forgotten; its next
	// request starts with a fresh bucket.
	limiterIdleTTL    = 10 * time.Minute
	limiterSweepEvery = 5 * time.Minute
)

// limiterPool holds one token bucket per client IP. Buckets are created on
// first sight and swept once idle, so the pool stays bounded even when the
// verify endpoint is hit by many distinct callers.
type limiterPool struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	clients  map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

func newLimiterPool(rps, burst int) *limiterPool {
	return &limiterPool{
		rps:      rate.Limit(rps),
		burst:    burst,
		clients:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	lim, ok := p.clients[ip]
	if !ok {
		lim = rate.NewLimiter(p.rps, p.burst)
		p.clients[ip] = lim
	}
	p.lastSeen[ip] = time.Now()
	return lim
}

func (p *limiterPool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ip, seen := range p.lastSeen {
		if time.Since(seen) > limiterIdleTTL {
			delete(p.clients, ip)
			delete(p.lastSeen, ip)
		}
	}
}

// RateLimiter returns a Gin middleware enforcing a per-IP token bucket.
// rps is the steady-state requests per second, burst the bucket size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)

	go func() {
		for range time.Tick(limiterSweepEvery) {
			pool.sweep()
		}
	}()

	return func(c *gin.Context) {
		if !pool.get(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
