package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig tunes the per-IP token bucket on the public verification
// surface.
type RateLimitConfig struct {
	// RPS is the steady-state requests per second per client IP.
	RPS int
	// Burst is the bucket size. Defaults to 2×RPS.
	Burst int
	// StaleAfter is how long an IP may stay idle before its bucket is
	// forgotten. Defaults to 10 minutes.
	StaleAfter time.Duration
	// SweepEvery is the idle-bucket collection interval. Defaults to half
	// of StaleAfter.
	SweepEvery time.Duration
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipRateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	buckets map[string]*ipBucket
}

// RateLimiter returns a Gin middleware enforcing a per-IP token bucket.
// Buckets belonging to idle IPs are swept periodically so the map cannot
// grow without bound under scanning traffic.
func RateLimiter(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RPS * 2
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = cfg.StaleAfter / 2
	}

	rl := &ipRateLimiter{cfg: cfg, buckets: make(map[string]*ipBucket)}
	go rl.sweep()
	return rl.handle
}

func (rl *ipRateLimiter) handle(c *gin.Context) {
	if !rl.allow(c.ClientIP()) {
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
		})
		return
	}
	c.Next()
}

func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.mu.Unlock()
	return b.limiter.Allow()
}

func (rl *ipRateLimiter) sweep() {
	ticker := time.NewTicker(rl.cfg.SweepEvery)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-rl.cfg.StaleAfter)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
