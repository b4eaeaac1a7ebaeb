// Package cache provides Redis-based caching for closure read models.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fund-ledger/config"
	"fund-ledger/internal/logging"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheUnavailable is returned while the breaker is open
	ErrCacheUnavailable = errors.New("cache unavailable - Redis is not healthy")

	// ErrCacheMiss is returned when a key is not cached
	ErrCacheMiss = errors.New("cache miss")
)

// Key formats for the cached read models
const (
	PrefixFundDistribution   = "fund:%d:distribution"
	PrefixFundClosureSummary = "fund:%d:closure_summary"
	PrefixClientEarnings     = "client:%d:earnings"
	PrefixReferrerCommission = "referrer:%d:commissions"
)

// DefaultSummaryTTL applies when the configuration sets none
const DefaultSummaryTTL = 10 * time.Minute

// ============================================================================
// CIRCUIT BREAKER
// ============================================================================

// breaker opens after threshold consecutive failures. While open it refuses
// calls, and once recheckEvery has elapsed it asks for a single recheck.
type breaker struct {
	mu           sync.Mutex
	threshold    int
	recheckEvery time.Duration
	now          func() time.Time

	open        bool
	failures    int
	lastRecheck time.Time
	rechecking  bool
	onChange    func(open bool, failures int)
}

func newBreaker(threshold int, recheckEvery time.Duration) *breaker {
	return &breaker{threshold: threshold, recheckEvery: recheckEvery, now: time.Now}
}

// closed reports whether calls may go through
func (b *breaker) closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.open
}

// wantRecheck returns true at most once per recheckEvery while open
func (b *breaker) wantRecheck() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open || b.rechecking || b.now().Sub(b.lastRecheck) < b.recheckEvery {
		return false
	}
	b.rechecking = true
	b.lastRecheck = b.now()
	return true
}

func (b *breaker) recheckDone(ok bool) {
	b.mu.Lock()
	b.rechecking = false
	b.mu.Unlock()
	if ok {
		b.success()
	}
}

func (b *breaker) failure() {
	b.mu.Lock()
	b.failures++
	tripped := !b.open && b.failures >= b.threshold
	if tripped {
		b.open = true
		b.lastRecheck = b.now()
	}
	failures, notify := b.failures, b.onChange
	b.mu.Unlock()

	if tripped && notify != nil {
		notify(true, failures)
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	recovered := b.open
	b.open = false
	b.failures = 0
	notify := b.onChange
	b.mu.Unlock()

	if recovered && notify != nil {
		notify(false, 0)
	}
}

func (b *breaker) state() (open bool, failures int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, b.failures
}

// ============================================================================
// CACHE SERVICE
// ============================================================================

// CacheService is a Redis client guarded by a circuit breaker. Callers treat
// every error as a miss and fall back to the ledger.
type CacheService struct {
	client  *redis.Client
	address string
	pool    int
	breaker *breaker
	logger  *logging.Logger
}

// NewCacheService connects to Redis. A failed first ping leaves the service
// running with its breaker open rather than failing startup.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	cs := &CacheService{
		client: redis.NewClient(&redis.Options{
			Addr:         cfg.Address,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		address: cfg.Address,
		pool:    cfg.PoolSize,
		breaker: newBreaker(3, 30*time.Second),
		logger:  logging.WithComponent("cache"),
	}
	cs.breaker.onChange = func(open bool, failures int) {
		if open {
			cs.logger.Warn("Circuit breaker OPEN: Redis marked unhealthy", "failures", failures)
		} else {
			cs.logger.Info("Circuit breaker CLOSED: Redis recovered")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.breaker.open = true
		cs.breaker.lastRecheck = time.Now()
		cs.logger.WithError(err).Warn("Initial Redis connection failed, running degraded", "address", cfg.Address)
		return cs, nil
	}

	cs.logger.Info("Redis connected", "address", cfg.Address)
	return cs, nil
}

// IsHealthy reports whether the breaker is closed
func (cs *CacheService) IsHealthy() bool {
	return cs.breaker.closed()
}

// guard runs op when the breaker allows it and feeds the outcome back.
// redis.Nil is a miss, not a failure.
func (cs *CacheService) guard(op string, fn func() error) error {
	if cs.breaker.wantRecheck() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			cs.breaker.recheckDone(cs.client.Ping(ctx).Err() == nil)
		}()
	}
	if !cs.breaker.closed() {
		return ErrCacheUnavailable
	}

	err := fn()
	switch {
	case err == nil:
		cs.breaker.success()
		return nil
	case errors.Is(err, redis.Nil):
		cs.breaker.success()
		return ErrCacheMiss
	default:
		cs.breaker.failure()
		return fmt.Errorf("redis %s failed: %w", op, err)
	}
}

// Get returns the raw cached value of key
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := cs.guard("get", func() error {
		var err error
		value, err = cs.client.Get(ctx, key).Result()
		return err
	})
	return value, err
}

// Set stores value under key. Strings and byte slices are stored as is,
// anything else as JSON.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	return cs.guard("set", func() error {
		return cs.client.Set(ctx, key, data, ttl).Err()
	})
}

// Delete removes keys
func (cs *CacheService) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return cs.guard("delete", func() error {
		return cs.client.Del(ctx, keys...).Err()
	})
}

// Ping checks Redis directly, bypassing an open breaker
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.breaker.failure()
		return err
	}
	cs.breaker.success()
	return nil
}

// Close closes the Redis connection pool
func (cs *CacheService) Close() error {
	if cs.client == nil {
		return nil
	}
	return cs.client.Close()
}

func encodeValue(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(raw), nil
}

// Stats is the cache section of the health endpoint
type Stats struct {
	Healthy      bool   `json:"healthy"`
	BreakerOpen  bool   `json:"breaker_open"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	PoolSize     int    `json:"pool_size"`
}

// GetStats returns the breaker state and connection settings
func (cs *CacheService) GetStats() Stats {
	open, failures := cs.breaker.state()
	return Stats{
		Healthy:      !open,
		BreakerOpen:  open,
		FailureCount: failures,
		Address:      cs.address,
		PoolSize:     cs.pool,
	}
}

// FundDistributionKey is the key of a fund's distribution summary
func FundDistributionKey(fundID int64) string {
	return fmt.Sprintf(PrefixFundDistribution, fundID)
}

// FundClosureSummaryKey is the key of a fund's closure summary
func FundClosureSummaryKey(fundID int64) string {
	return fmt.Sprintf(PrefixFundClosureSummary, fundID)
}

// ClientEarningsKey is the key of a client's lifetime earnings
func ClientEarningsKey(clientUserID int64) string {
	return fmt.Sprintf(PrefixClientEarnings, clientUserID)
}

// ReferrerCommissionKey is the key of a referrer's commission totals
func ReferrerCommissionKey(referrerUserID int64) string {
	return fmt.Sprintf(PrefixReferrerCommission, referrerUserID)
}
