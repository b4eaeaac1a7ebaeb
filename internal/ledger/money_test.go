package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFluctuationPercent(t *testing.T) {
	testCases := []struct {
		name     string
		previous string
		next     string
		want     string
	}{
		{"gain", "1000", "1100", "10"},
		{"loss", "1000", "900", "-10"},
		{"unchanged", "250", "250", "0"},
		{"zero previous", "0", "500", "0"},
		{"rounded", "300", "324", "8"},
		{"fractional", "3", "4", "33.3333"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FluctuationPercent(d(tc.previous), d(tc.next))
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestShare(t *testing.T) {
	assert.True(t, Share(d("700"), d("1000")).Equal(d("0.7")))
	assert.True(t, Share(d("700"), decimal.Zero).IsZero())
	assert.True(t, SharePercent(d("300"), d("1000")).Equal(d("30")))
	assert.True(t, Sum(d("1.5"), d("2.5"), d("-1")).Equal(d("3")))
}

func TestPolicyValidate(t *testing.T) {
	p := DefaultPolicy()
	require.Error(t, p.Validate(), "missing company profile")

	p.CompanyProfileID = 1
	require.NoError(t, p.Validate())
	assert.True(t, p.ClientShare().Equal(d("0.8")))

	p.CompanyShare = d("1.2")
	assert.Error(t, p.Validate())

	p = DefaultPolicy()
	p.CompanyProfileID = 1
	p.CompanyShare = d("0.9")
	assert.Error(t, p.Validate(), "company plus referral above 100%")
}

func TestFundStateErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("revalue: %w", NewFundStateError(7, "closed", "revalue"))
	assert.True(t, errors.Is(err, ErrInvalidState))

	var stateErr *FundStateError
	require.True(t, errors.As(err, &stateErr))
	assert.Equal(t, int64(7), stateErr.FundID)
	assert.Contains(t, err.Error(), "fund 7 is closed")
}

func TestFormatMoney(t *testing.T) {
	testCases := []struct {
		name     string
		amount   string
		currency string
		want     string
	}{
		{"whole dollars", "112", "USD", "$112.00"},
		{"rounds to cents", "1234.565", "USD", "$1,234.57"},
		{"negative", "-100", "USD", "-$100.00"},
		{"no minor unit", "1000", "JPY", "¥1,000"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FormatMoney(d(tc.amount), tc.currency))
		})
	}
}
