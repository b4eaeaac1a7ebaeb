package main

import (
	"bytes"
	"context"
	"flag"
	"strconv"
	"testing"

	"fund-ledger/internal/closure"
	"fund-ledger/internal/database"
	"fund-ledger/internal/funding"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/valuation"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) (*env, *bytes.Buffer, int64) {
	t.Helper()
	ctx := context.Background()
	policy := ledger.DefaultPolicy()
	policy.CompanyProfileID = 1
	store := database.NewMemoryStore()

	svc := funding.NewService(store, policy, nil)
	referrer := int64(5)
	a, err := svc.RecordDeposit(ctx, funding.DepositRequest{PayerUserID: 20, PayerProfileID: 120, PayerName: "Ana", Amount: decimal.NewFromInt(700)})
	require.NoError(t, err)
	b, err := svc.RecordDeposit(ctx, funding.DepositRequest{PayerUserID: 30, PayerProfileID: 130, PayerName: "Ben", ReferredByUserID: &referrer, Amount: decimal.NewFromInt(300)})
	require.NoError(t, err)
	created, err := svc.CreateFund(ctx, funding.FundRequest{Name: "Growth", PaymentIDs: []int64{a.Payment.ID, b.Payment.ID}})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &env{
		store:     store,
		closure:   closure.NewEngine(store, policy, nil, nil),
		valuation: valuation.NewEngine(store, policy, nil),
		reporter:  closure.NewReporter(store, nil),
		currency:  "USD",
		out:       out,
		errOut:    &bytes.Buffer{},
	}, out, created.Fund.ID
}

func run(t *testing.T, e *env, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet("fund-admin", flag.ContinueOnError)
	commander := subcommands.NewCommander(fs, "fund-admin")
	register(commander, func(context.Context) (*env, func(), error) {
		return e, func() {}, nil
	})
	require.NoError(t, fs.Parse(args))
	return commander.Execute(context.Background())
}

func TestClosePeriod(t *testing.T) {
	e, out, fundID := newTestEnv(t)
	id := strconv.FormatInt(fundID, 10)

	status := run(t, e, "close-period", "-yield", "0.1", "-period-start", "2000-01-01", id)
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), "Fund "+id+" closed")
	assert.Contains(t, out.String(), "$75.50")
	assert.Contains(t, out.String(), "2 participants, 1 referral commissions paid")

	fund, err := e.store.GetFund(context.Background(), fundID)
	require.NoError(t, err)
	assert.Equal(t, database.FundStatusClosed, fund.Status)

	out.Reset()
	status = run(t, e, "summary", "-rewards", id)
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), "closed")
	assert.Contains(t, out.String(), "75.5%")
	assert.Contains(t, out.String(), "Ben")

	// A closed fund cannot be closed again.
	assert.Equal(t, subcommands.ExitFailure, run(t, e, "close-period", id))
}

func TestRevalue(t *testing.T) {
	e, out, fundID := newTestEnv(t)
	id := strconv.FormatInt(fundID, 10)

	status := run(t, e, "revalue", "-amount", "1500", "-reason", "market", id)
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), "$1,000.00 -> $1,500.00")
	assert.Contains(t, out.String(), "Company: $0.00 -> $100.00")
}

func TestConflictPrintsRetryHint(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		fault    error
		wantHint bool
	}{
		{"close conflict", []string{"close-period"}, ledger.ErrConcurrentModification, true},
		{"revalue conflict", []string{"revalue", "-amount", "1200"}, ledger.ErrConcurrentModification, true},
		{"close not found", []string{"close-period"}, ledger.ErrNotFound, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, fundID := newTestEnv(t)
			errOut := &bytes.Buffer{}
			e.errOut = errOut
			e.store.(*database.MemoryStore).FailOn("LockFund", tt.fault)

			args := append(tt.args, strconv.FormatInt(fundID, 10))
			assert.Equal(t, subcommands.ExitFailure, run(t, e, args...))
			if tt.wantHint {
				assert.Contains(t, errOut.String(), "retry the command")
			} else {
				assert.NotContains(t, errOut.String(), "retry")
			}
		})
	}
}

func TestSummaryOfOpenFund(t *testing.T) {
	e, out, fundID := newTestEnv(t)

	status := run(t, e, "summary", strconv.FormatInt(fundID, 10))
	require.Equal(t, subcommands.ExitSuccess, status)
	assert.Contains(t, out.String(), closure.StatusNotClosed)
}

func TestUsageErrors(t *testing.T) {
	e, _, _ := newTestEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing fund id", []string{"close-period"}},
		{"bad fund id", []string{"summary", "abc"}},
		{"bad yield", []string{"close-period", "-yield", "lots", "1"}},
		{"bad period", []string{"close-period", "-period-end", "yesterday", "1"}},
		{"missing amount", []string{"revalue", "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, subcommands.ExitUsageError, run(t, e, tt.args...))
		})
	}
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseTime("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2026, got.Year())

	_, err = parseTime("March")
	assert.ErrorIs(t, err, ledger.ErrInvalidPeriod)
}
