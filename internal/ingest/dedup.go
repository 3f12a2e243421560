package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"mailroom/internal/config"
	"mailroom/internal/constants"
	"mailroom/pkg/circuitbreaker"
)

// DedupCache is the fast-path duplicate check in front of the database
// unique constraint. MarkIfFirst returns true when this process is the
// first to claim the message id within the TTL window.
type DedupCache interface {
	MarkIfFirst(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
}

type RedisDedupCache struct {
	client *redis.Client
}

func NewRedisDedupCache(client *redis.Client) *RedisDedupCache {
	return &RedisDedupCache{client: client}
}

func (c *RedisDedupCache) MarkIfFirst(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	key := constants.CacheKeyPrefixIngest + messageID
	first, err := c.client.SetNX(ctx, key, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SetNX failed: %w", err)
	}
	return first, nil
}

// CircuitBreakerDedupCache wraps a DedupCache so a struggling redis
// cannot stall every ingestion request.
type CircuitBreakerDedupCache struct {
	cache DedupCache
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerDedupCache(cache DedupCache, cfg config.CircuitBreakerConfig) *CircuitBreakerDedupCache {
	if !cfg.Enabled {
		return &CircuitBreakerDedupCache{cache: cache, cb: nil}
	}

	cbConfig := circuitbreaker.DefaultConfig("redis-ingest-dedup")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.MinRequests) {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerDedupCache{
		cache: cache,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (c *CircuitBreakerDedupCache) MarkIfFirst(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if c.cb == nil {
		return c.cache.MarkIfFirst(ctx, messageID, ttl)
	}

	result, err := c.cb.ExecuteWithContext(ctx, func() (interface{}, error) {
		return c.cache.MarkIfFirst(ctx, messageID, ttl)
	})

	c.cb.RecordRequest(err == nil)

	if err != nil {
		if c.cb.IsOpen() {
			return false, fmt.Errorf("circuit breaker is open for redis-ingest-dedup: %w", err)
		}
		return false, err
	}

	first, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("dedup cache returned invalid result type")
	}

	return first, nil
}

func (c *CircuitBreakerDedupCache) IsOpen() bool {
	if c.cb == nil {
		return false
	}
	return c.cb.IsOpen()
}
