package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// clientWindow tracks requests from a single IP
type clientWindow struct {
	Count   int
	FirstAt time.Time
}

// RateLimiter limits how often an IP may hit an expensive endpoint within a
// rolling window.
type RateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientWindow
	maxRequests  int
	windowPeriod time.Duration
}

// NewRateLimiter creates a new rate limiter.
// maxRequests: requests allowed per IP within the window
// windowPeriod: time window for counting requests
func NewRateLimiter(maxRequests int, windowPeriod time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:      make(map[string]*clientWindow),
		maxRequests:  maxRequests,
		windowPeriod: windowPeriod,
	}
	go rl.startCleanup()
	return rl
}

// startCleanup periodically drops expired windows
func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, w := range rl.clients {
		if now.Sub(w.FirstAt) > rl.windowPeriod {
			delete(rl.clients, ip)
		}
	}
}

// Allow records a request from an IP and reports whether it is within the
// limit, plus the wait until the window resets when it is not.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.clients[ip]

	if !exists || now.Sub(w.FirstAt) > rl.windowPeriod {
		rl.clients[ip] = &clientWindow{Count: 1, FirstAt: now}
		return true, 0
	}

	if w.Count >= rl.maxRequests {
		return false, rl.windowPeriod - now.Sub(w.FirstAt)
	}
	w.Count++
	return true, 0
}

// Middleware returns a gin handler enforcing the limit per client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, retryAfter := rl.Allow(ip)
		if !allowed {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests, please try again later",
				"retry_after": int(retryAfter.Seconds()),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
