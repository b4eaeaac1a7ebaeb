package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"fund-ledger/config"
)

// Logger interface for dependency injection
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Backend is the key/value surface the summary cache needs
type Backend interface {
	IsHealthy() bool
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// SummaryCache memoizes closure read models. A nil backend turns it into a
// pass-through, and backend errors always fall back to the loader.
type SummaryCache struct {
	backend Backend
	ttl     time.Duration
	logger  Logger
}

// NewSummaryCache creates a summary cache over backend, which may be nil
func NewSummaryCache(backend Backend, ttl time.Duration, logger Logger) *SummaryCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &SummaryCache{backend: backend, ttl: ttl, logger: logger}
}

// Enabled reports whether a healthy backend is attached
func (c *SummaryCache) Enabled() bool {
	return c != nil && c.backend != nil && c.backend.IsHealthy()
}

// Load returns the cached value of key or computes it with load and caches
// the result.
func Load[T any](ctx context.Context, c *SummaryCache, key string, load func(context.Context) (T, error)) (T, error) {
	if c.Enabled() {
		raw, err := c.backend.Get(ctx, key)
		if err == nil {
			var cached T
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return cached, nil
			}
			c.logger.Warn("Discarding undecodable cache entry", "key", key)
		} else if !errors.Is(err, ErrCacheMiss) {
			c.logger.Debug("Cache read failed, loading from store", "key", key, "error", err)
		}
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	if c.Enabled() {
		if err := c.backend.Set(ctx, key, value, c.ttl); err != nil {
			c.logger.Debug("Cache write failed", "key", key, "error", err)
		}
	}
	return value, nil
}

// InvalidateFund drops every summary a fund closure changes
func (c *SummaryCache) InvalidateFund(ctx context.Context, fundID int64, clientUserIDs, referrerUserIDs []int64) {
	if !c.Enabled() {
		return
	}
	keys := []string{FundDistributionKey(fundID), FundClosureSummaryKey(fundID)}
	for _, id := range clientUserIDs {
		keys = append(keys, ClientEarningsKey(id))
	}
	for _, id := range referrerUserIDs {
		keys = append(keys, ReferrerCommissionKey(id))
	}
	if err := c.backend.Delete(ctx, keys...); err != nil {
		c.logger.Warn("Failed to invalidate fund summaries", "fund_id", fundID, "error", err)
		return
	}
	c.logger.Debug("Fund summaries invalidated", "fund_id", fundID, "keys", len(keys))
}

// Open connects the Redis backend when cfg enables it and wraps it in a
// SummaryCache. Without Redis both results are usable: the service is nil
// and the summary cache passes every read through to the store.
func Open(cfg config.RedisConfig, logger Logger) (*CacheService, *SummaryCache) {
	if !cfg.Enabled {
		return nil, NewSummaryCache(nil, cfg.SummaryTTL, logger)
	}
	service, err := NewCacheService(cfg)
	if err != nil {
		logger.Warn("Summary cache disabled", "error", err)
		return nil, NewSummaryCache(nil, cfg.SummaryTTL, logger)
	}
	return service, NewSummaryCache(service, cfg.SummaryTTL, logger)
}
