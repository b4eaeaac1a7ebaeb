package closure

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"fund-ledger/internal/cache"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributionSummaryBeforeClosure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := NewReporter(f.store, nil)

	got, err := r.DistributionSummary(ctx, f.fund.Fund.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNotClosed, got.Status)
	assert.True(t, got.TotalFundEarnings.IsZero())
	assert.True(t, got.ClientsPercentage.IsZero())
	assert.Equal(t, 0, got.TotalParticipants)
	assert.Nil(t, got.ClosedAt)

	_, err = r.DistributionSummary(ctx, 999)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDistributionSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.engine.CloseFund(ctx, f.fund.Fund.ID, Options{})
	require.NoError(t, err)

	got, err := NewReporter(f.store, nil).DistributionSummary(ctx, f.fund.Fund.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", got.Status)
	assert.Equal(t, res.Snapshot.Reference, got.Reference)
	assert.True(t, got.TotalInvestment.Equal(dec("1000")))
	assert.True(t, got.TotalFundEarnings.Equal(dec("200")))
	assert.True(t, got.CompanyPercentage.Equal(dec("20")))
	assert.True(t, got.ReferralsPercentage.Equal(dec("4.5")))
	assert.True(t, got.ClientsPercentage.Equal(dec("75.5")))
	assert.Equal(t, 2, got.TotalParticipants)
	assert.Equal(t, 1, got.FirstDepositsReferred)
	assert.NotNil(t, got.ClosedAt)
}

func TestClosureSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := NewReporter(f.store, nil)

	_, err := r.ClosureSummary(ctx, f.fund.Fund.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.engine.CloseFund(ctx, f.fund.Fund.ID, Options{})
	require.NoError(t, err)

	got, err := r.ClosureSummary(ctx, f.fund.Fund.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalRewards)
	assert.Equal(t, 1, got.TotalReferralCommissions)
	assert.True(t, got.AverageNetEarnings.Equal(dec("75.5")))
	assert.True(t, got.HighestNetEarnings.Equal(dec("112")))
	assert.True(t, got.LowestNetEarnings.Equal(dec("39")))
	assert.True(t, got.TotalCommissionsPaid.Equal(dec("9")))
}

func TestFundRewards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.engine.CloseFund(ctx, f.fund.Fund.ID, Options{})
	require.NoError(t, err)

	rows, err := NewReporter(f.store, nil).FundRewards(ctx, f.fund.Fund.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "client", row.ClientName)
		if row.WasReferred {
			// the referrer never deposited, so it has no client record
			assert.Equal(t, "N/A", row.ReferrerName)
		} else {
			assert.Empty(t, row.ReferrerName)
		}
	}
}

func TestClientAndReferrerTotals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := NewReporter(f.store, nil)

	before, err := r.ClientTotalEarnings(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 0, before.Rewards)
	assert.True(t, before.TotalNetEarnings.IsZero())

	_, err = f.engine.CloseFund(ctx, f.fund.Fund.ID, Options{})
	require.NoError(t, err)

	client, err := r.ClientTotalEarnings(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, client.Rewards)
	assert.True(t, client.TotalNetEarnings.Equal(dec("39")))

	referrer, err := r.ReferrerTotalCommissions(ctx, referrerID)
	require.NoError(t, err)
	assert.Equal(t, 1, referrer.Referrals)
	assert.Equal(t, 1, referrer.Paid)
	assert.Equal(t, 0, referrer.Pending)
	assert.True(t, referrer.TotalPaid.Equal(dec("9")))
}

type memoryBackend struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryBackend) IsHealthy() bool { return true }

func (m *memoryBackend) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (m *memoryBackend) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = string(raw)
	return nil
}

func (m *memoryBackend) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func TestClosureInvalidatesCachedSummaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	backend := &memoryBackend{data: make(map[string]string)}
	summaries := cache.NewSummaryCache(backend, time.Minute, logging.WithComponent("cache"))
	r := NewReporter(f.store, summaries)
	f.engine.summaries = summaries

	got, err := r.DistributionSummary(ctx, f.fund.Fund.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNotClosed, got.Status)
	_, err = r.ClientTotalEarnings(ctx, 30)
	require.NoError(t, err)
	assert.Contains(t, backend.data, cache.FundDistributionKey(f.fund.Fund.ID))
	assert.Contains(t, backend.data, cache.ClientEarningsKey(30))

	_, err = f.engine.CloseFund(ctx, f.fund.Fund.ID, Options{})
	require.NoError(t, err)
	assert.NotContains(t, backend.data, cache.FundDistributionKey(f.fund.Fund.ID))
	assert.NotContains(t, backend.data, cache.ClientEarningsKey(30))

	got, err = r.DistributionSummary(ctx, f.fund.Fund.ID)
	require.NoError(t, err)
	assert.Equal(t, "closed", got.Status)
	assert.True(t, got.TotalFundEarnings.Equal(dec("200")))

	client, err := r.ClientTotalEarnings(ctx, 30)
	require.NoError(t, err)
	assert.True(t, client.TotalNetEarnings.Equal(dec("39")))
}
