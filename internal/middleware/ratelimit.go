package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitConfig configures a token bucket per client.
type RateLimitConfig struct {
	// RequestsPerMinute is the refill rate.
	RequestsPerMinute int
	// BurstSize is the bucket capacity.
	BurstSize int
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
	// IdleTimeout is how long a bucket may go unused before cleanup drops it.
	IdleTimeout time.Duration
}

// InstallRateLimitConfig limits install requests, each of which downloads
// and unpacks an archive.
func InstallRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         3,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
	}
}

// CheckRateLimitConfig limits forced update sweeps.
func CheckRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 6,
		BurstSize:         2,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
	}
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is a token bucket limiter keyed by client.
type RateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine. Call
// Stop to end it.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	rl := newRateLimiter(config, time.Now)
	go rl.cleanupLoop()
	return rl
}

func newRateLimiter(config RateLimitConfig, now func() time.Time) *RateLimiter {
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 10 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > rl.config.IdleTimeout {
			delete(rl.buckets, key)
		}
	}
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopped.Do(func() { close(rl.stopCh) })
}

// refill tops up b for the time elapsed since its last update.
func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0
	b.tokens = min(float64(rl.config.BurstSize), b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
	b.lastUpdate = now
}

// Allow takes a token for key and reports whether one was available.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: float64(rl.config.BurstSize) - 1, lastUpdate: now}
		return rl.config.BurstSize > 0
	}
	rl.refill(b, now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Remaining returns the whole tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		return rl.config.BurstSize
	}
	cp := *b
	rl.refill(&cp, rl.now())
	return int(cp.tokens)
}

// retryAfter returns the seconds until one token is available.
func (rl *RateLimiter) retryAfter() int {
	if rl.config.RequestsPerMinute <= 0 {
		return 60
	}
	return max(1, 60/rl.config.RequestsPerMinute)
}

// RateLimitMiddleware rejects requests with 429 once the client's bucket is
// empty. Clients are keyed by IP.
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)
		if !limiter.Allow(key) {
			retry := limiter.retryAfter()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.config.RequestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
		c.Next()
	}
}

func rateLimitKey(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
