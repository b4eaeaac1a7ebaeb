package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fund-ledger/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// MOCK TYPES
// ============================================================================

// MockBackend mocks the CacheService for testing
type MockBackend struct {
	mu          sync.Mutex
	healthy     bool
	data        map[string]string
	setCalls    []SetCall
	deleteCalls [][]string
	getErr      error
	setErr      error
}

// SetCall tracks Set method invocations
type SetCall struct {
	Key string
	TTL time.Duration
}

func NewMockBackend() *MockBackend {
	return &MockBackend{healthy: true, data: make(map[string]string)}
}

func (m *MockBackend) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

func (m *MockBackend) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *MockBackend) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = string(raw)
	m.setCalls = append(m.setCalls, SetCall{Key: key, TTL: ttl})
	return nil
}

func (m *MockBackend) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls = append(m.deleteCalls, keys)
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// MockLogger discards log lines
type MockLogger struct{}

func (MockLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (MockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (MockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (MockLogger) Error(msg string, keysAndValues ...interface{}) {}

type summary struct {
	FundID int64  `json:"fund_id"`
	Total  string `json:"total"`
}

// ============================================================================
// TESTS
// ============================================================================

func TestLoadCachesResult(t *testing.T) {
	ctx := context.Background()
	backend := NewMockBackend()
	c := NewSummaryCache(backend, time.Minute, MockLogger{})

	calls := 0
	load := func(context.Context) (summary, error) {
		calls++
		return summary{FundID: 7, Total: "140"}, nil
	}

	first, err := Load(ctx, c, FundDistributionKey(7), load)
	require.NoError(t, err)
	second, err := Load(ctx, c, FundDistributionKey(7), load)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	require.Len(t, backend.setCalls, 1)
	assert.Equal(t, "fund:7:distribution", backend.setCalls[0].Key)
	assert.Equal(t, time.Minute, backend.setCalls[0].TTL)
}

func TestLoadDegradesGracefully(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cache   func() *SummaryCache
		wantSet bool
	}{
		{"nil cache", func() *SummaryCache { return nil }, false},
		{"no backend", func() *SummaryCache { return NewSummaryCache(nil, 0, MockLogger{}) }, false},
		{"unhealthy backend", func() *SummaryCache {
			b := NewMockBackend()
			b.healthy = false
			return NewSummaryCache(b, 0, MockLogger{})
		}, false},
		{"read error", func() *SummaryCache {
			b := NewMockBackend()
			b.getErr = errors.New("connection reset")
			return NewSummaryCache(b, 0, MockLogger{})
		}, true},
		{"write error", func() *SummaryCache {
			b := NewMockBackend()
			b.setErr = errors.New("read only replica")
			return NewSummaryCache(b, 0, MockLogger{})
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cache()
			got, err := Load(ctx, c, ClientEarningsKey(3), func(context.Context) (summary, error) {
				return summary{FundID: 3, Total: "39"}, nil
			})
			require.NoError(t, err)
			assert.Equal(t, "39", got.Total)
			if c != nil && c.backend != nil {
				mb := c.backend.(*MockBackend)
				assert.Equal(t, tt.wantSet, len(mb.setCalls) == 1)
			}
		})
	}
}

func TestLoadPropagatesLoaderError(t *testing.T) {
	backend := NewMockBackend()
	c := NewSummaryCache(backend, 0, MockLogger{})
	boom := errors.New("store down")

	_, err := Load(context.Background(), c, FundClosureSummaryKey(1), func(context.Context) (summary, error) {
		return summary{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, backend.setCalls)
	assert.Equal(t, DefaultSummaryTTL, c.ttl)
}

func TestInvalidateFund(t *testing.T) {
	ctx := context.Background()
	backend := NewMockBackend()
	c := NewSummaryCache(backend, 0, MockLogger{})

	backend.data[FundDistributionKey(1)] = "{}"
	backend.data[ClientEarningsKey(20)] = "{}"
	backend.data[FundDistributionKey(2)] = "{}"

	c.InvalidateFund(ctx, 1, []int64{20, 30}, []int64{10})

	require.Len(t, backend.deleteCalls, 1)
	assert.ElementsMatch(t, []string{
		"fund:1:distribution", "fund:1:closure_summary",
		"client:20:earnings", "client:30:earnings", "referrer:10:commissions",
	}, backend.deleteCalls[0])
	assert.Contains(t, backend.data, FundDistributionKey(2))
	assert.NotContains(t, backend.data, FundDistributionKey(1))
}

func TestOpenWithoutRedis(t *testing.T) {
	service, summaries := Open(config.RedisConfig{Enabled: false}, MockLogger{})
	assert.Nil(t, service)
	require.NotNil(t, summaries)
	assert.False(t, summaries.Enabled())
	assert.Equal(t, DefaultSummaryTTL, summaries.ttl)
}
