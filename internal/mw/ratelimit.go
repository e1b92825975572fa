package mw

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyRateLimiter stores a rate limiter per client key.
type KeyRateLimiter struct {
	keys map[string]*rate.Limiter
	mu   *sync.RWMutex
	r    rate.Limit
	b    int
}

// NewKeyRateLimiter creates a new KeyRateLimiter.
func NewKeyRateLimiter(r rate.Limit, b int) *KeyRateLimiter {
	return &KeyRateLimiter{
		keys: make(map[string]*rate.Limiter),
		mu:   &sync.RWMutex{},
		r:    r,
		b:    b,
	}
}

// GetLimiter returns the rate limiter for key, creating it on first use.
func (l *KeyRateLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.keys[key]
	l.mu.RUnlock()
	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, exists = l.keys[key]; !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.keys[key] = limiter
	}
	return limiter
}

// ClientKey identifies the caller by ipHeader when set (for deployments
// behind a proxy) and by the connection's client IP otherwise.
func ClientKey(ipHeader string) func(c *gin.Context) string {
	return func(c *gin.Context) string {
		if ipHeader != "" {
			if v := c.GetHeader(ipHeader); v != "" {
				return v
			}
		}
		return c.ClientIP()
	}
}

// RateLimiter is a middleware for per-client rate limiting.
func RateLimiter(r rate.Limit, b int, key func(c *gin.Context) string) gin.HandlerFunc {
	limiter := NewKeyRateLimiter(r, b)
	return func(c *gin.Context) {
		if !limiter.GetLimiter(key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
