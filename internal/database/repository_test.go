package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"fund-ledger/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, ledger.ErrNotFound},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ledger.ErrConcurrentModification},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ledger.ErrConcurrentModification},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, ledger.ErrConcurrentModification},
		{"unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), ledger.ErrDuplicate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(tc.err)
			assert.ErrorIs(t, got, tc.want)
			assert.ErrorIs(t, got, tc.err)
		})
	}

	other := errors.New("connection reset")
	assert.Equal(t, other, mapError(other))
	assert.NoError(t, mapError(nil))
}

func TestVersionConflict(t *testing.T) {
	assert.ErrorIs(t, versionConflict(pgx.ErrNoRows), ledger.ErrConcurrentModification)
}

func TestAllocationTransitions(t *testing.T) {
	testCases := []struct {
		from, to AllocationStatus
		allowed  bool
	}{
		{AllocationStatusAccrued, AllocationStatusPendingPayment, true},
		{AllocationStatusAccrued, AllocationStatusCancelled, true},
		{AllocationStatusAccrued, AllocationStatusPaid, false},
		{AllocationStatusPendingPayment, AllocationStatusPaid, true},
		{AllocationStatusPendingPayment, AllocationStatusCancelled, true},
		{AllocationStatusPaid, AllocationStatusCancelled, false},
		{AllocationStatusCancelled, AllocationStatusAccrued, false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
	assert.False(t, ValidAllocationStatus("settled"))
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "ledger", Password: "pw", Database: "funds", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=ledger password=pw dbname=funds sslmode=disable", cfg.DSN())
}

// TestRepositoryIntegration runs against a live PostgreSQL when FUND_LEDGER_TEST_DSN is set
func TestRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("FUND_LEDGER_TEST_DSN")
	if dsn == "" {
		t.Skip("FUND_LEDGER_TEST_DSN not set")
	}
	ctx := context.Background()

	db, err := NewDBFromDSN(dsn, 4, 1)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.RunMigrations(ctx))

	repo := NewRepository(db)
	fund := &Fund{
		Category:      FundCategoryInvestment,
		Name:          fmt.Sprintf("integration-%d", os.Getpid()),
		InitialAmount: decimal.NewFromInt(1000),
		CurrentAmount: decimal.NewFromInt(1000),
	}
	require.NoError(t, repo.CreateFund(ctx, fund))

	err = repo.InTx(ctx, func(tx Store) error {
		locked, err := tx.LockFund(ctx, fund.ID)
		if err != nil {
			return err
		}
		return tx.UpdateFundValuation(ctx, locked, decimal.NewFromInt(1100))
	})
	require.NoError(t, err)

	got, err := repo.GetFund(ctx, fund.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(decimal.NewFromInt(1100)))

	err = repo.UpdateFundValuation(ctx, fund, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification, "stale version")

	_, err = repo.GetFund(ctx, -1)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
