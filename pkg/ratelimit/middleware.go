package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"mailroom/pkg/errors"
	"mailroom/pkg/metrics"
)

type RateLimitConfig struct {
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

func DefaultConfig() RateLimitConfig {
	return RateLimitConfig{
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore holds one token bucket per client IP and evicts buckets
// not seen within MaxAge.
type limiterStore struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	config  RateLimitConfig
}

func newLimiterStore(config RateLimitConfig) *limiterStore {
	s := &limiterStore{
		clients: make(map[string]*clientLimiter),
		config:  config,
	}
	go s.evictLoop()
	return s
}

func (s *limiterStore) get(clientIP string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, ok := s.clients[clientIP]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(s.config.RPS), s.config.Burst),
		}
		s.clients[clientIP] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (s *limiterStore) evictLoop() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for ip, cl := range s.clients {
			if now.Sub(cl.lastSeen) > s.config.MaxAge {
				delete(s.clients, ip)
			}
		}
		s.mu.Unlock()
	}
}

// RateLimitMiddleware throttles per client IP. Webhook deliveries from
// a single upstream share one bucket, so size RPS for the upstream,
// not for end users.
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	store := newLimiterStore(config)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		limiter := store.get(clientIP)

		c.Header("X-RateLimit-Limit", strconv.Itoa(int(config.RPS)))

		if !limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.JSON(http.StatusTooManyRequests, errors.ToErrorResponse(errors.ErrRateLimited))
			c.Abort()
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()

		remaining := limiter.Burst() - int(limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}
