package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerTripsAndRecovers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := newBreaker(3, 30*time.Second)
	b.now = func() time.Time { return now }

	var changes []bool
	b.onChange = func(open bool, _ int) { changes = append(changes, open) }

	b.failure()
	b.failure()
	assert.True(t, b.closed(), "below threshold")

	b.failure()
	assert.False(t, b.closed())
	open, failures := b.state()
	assert.True(t, open)
	assert.Equal(t, 3, failures)

	assert.False(t, b.wantRecheck(), "recheck waits for the interval")
	now = now.Add(31 * time.Second)
	require.True(t, b.wantRecheck())
	assert.False(t, b.wantRecheck(), "one recheck at a time")

	b.recheckDone(false)
	assert.False(t, b.closed())

	now = now.Add(31 * time.Second)
	require.True(t, b.wantRecheck())
	b.recheckDone(true)
	assert.True(t, b.closed())

	_, failures = b.state()
	assert.Equal(t, 0, failures)
	assert.Equal(t, []bool{true, false}, changes)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := newBreaker(2, time.Minute)
	b.failure()
	b.success()
	b.failure()
	assert.True(t, b.closed())
	assert.False(t, b.wantRecheck(), "no recheck while closed")
}

func TestEncodeValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"string", "plain", "plain"},
		{"bytes", []byte(`{"a":1}`), `{"a":1}`},
		{"struct", struct {
			Fund int64 `json:"fund_id"`
		}{7}, `{"fund_id":7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := encodeValue(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := encodeValue(make(chan int))
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "fund:7:distribution", FundDistributionKey(7))
	assert.Equal(t, "fund:7:closure_summary", FundClosureSummaryKey(7))
	assert.Equal(t, "client:30:earnings", ClientEarningsKey(30))
	assert.Equal(t, "referrer:5:commissions", ReferrerCommissionKey(5))
}
