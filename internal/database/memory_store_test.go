package database

import (
	"context"
	"errors"
	"testing"

	"fund-ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFund(t *testing.T, s *MemoryStore, amount string) *Fund {
	t.Helper()
	f := &Fund{
		Category:      FundCategoryInvestment,
		Name:          "Growth " + amount,
		InitialAmount: decimal.RequireFromString(amount),
		CurrentAmount: decimal.RequireFromString(amount),
	}
	require.NoError(t, s.CreateFund(context.Background(), f))
	return f
}

func TestMemoryStoreTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fund := newTestFund(t, s, "1000")

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Store) error {
		locked, err := tx.LockFund(ctx, fund.ID)
		require.NoError(t, err)
		require.NoError(t, tx.UpdateFundValuation(ctx, locked, decimal.NewFromInt(1500)))
		require.NoError(t, tx.InsertFundHistory(ctx, &FundHistory{FundID: fund.ID, Reason: "rebalance"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetFund(ctx, fund.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, int64(1), got.Version)

	history, err := s.ListFundHistory(ctx, fund.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryStoreTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fund := newTestFund(t, s, "1000")

	err := s.InTx(ctx, func(tx Store) error {
		locked, err := tx.LockFund(ctx, fund.ID)
		if err != nil {
			return err
		}
		// uncommitted writes are invisible outside the transaction
		if err := tx.UpdateFundValuation(ctx, locked, decimal.NewFromInt(1200)); err != nil {
			return err
		}
		outside, err := s.GetFund(ctx, fund.ID)
		require.NoError(t, err)
		assert.True(t, outside.CurrentAmount.Equal(decimal.NewFromInt(1000)))
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetFund(ctx, fund.ID)
	require.NoError(t, err)
	assert.True(t, got.CurrentAmount.Equal(decimal.NewFromInt(1200)))
	assert.Equal(t, int64(2), got.Version)
}

func TestMemoryStoreLockFundRequiresTransaction(t *testing.T) {
	s := NewMemoryStore()
	fund := newTestFund(t, s, "10")
	_, err := s.LockFund(context.Background(), fund.ID)
	assert.Error(t, err)
}

func TestMemoryStoreVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fund := newTestFund(t, s, "1000")

	stale := *fund
	require.NoError(t, s.UpdateFundStatus(ctx, fund, FundStatusPaused))

	err := s.UpdateFundValuation(ctx, &stale, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
}

func TestMemoryStoreClosedFundFreezesPositions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fund := newTestFund(t, s, "500")

	pos := &EarningPosition{
		FundID:        &fund.ID,
		Kind:          PositionKindClient,
		InitialAmount: decimal.NewFromInt(500),
		CurrentAmount: decimal.NewFromInt(500),
	}
	require.NoError(t, s.CreatePosition(ctx, pos))
	require.NoError(t, s.UpdateFundStatus(ctx, fund, FundStatusClosed))

	err := s.UpdatePositionAmount(ctx, pos.ID, decimal.NewFromInt(600))
	assert.ErrorIs(t, err, ledger.ErrInvalidState)
}

func TestMemoryStorePositionInvariants(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fund := newTestFund(t, s, "100")

	testCases := []struct {
		name    string
		kind    PositionKind
		initial int64
		wantErr error
	}{
		{"client with basis", PositionKindClient, 100, nil},
		{"client without basis", PositionKindClient, 0, ledger.ErrInvalidPosition},
		{"company with basis", PositionKindCompany, 5, ledger.ErrInvalidPosition},
		{"company", PositionKindCompany, 0, nil},
		{"second company", PositionKindCompany, 0, ledger.ErrDuplicate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.CreatePosition(ctx, &EarningPosition{
				FundID:        &fund.ID,
				Kind:          tc.kind,
				InitialAmount: decimal.NewFromInt(tc.initial),
				CurrentAmount: decimal.NewFromInt(tc.initial),
			})
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestMemoryStoreEarliestAllocation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	fund := newTestFund(t, s, "100")

	for _, paymentID := range []int64{11, 12} {
		require.NoError(t, s.CreateAllocation(ctx, &Allocation{
			PaymentID: paymentID, FundID: fund.ID, ClientUserID: 7, Amount: decimal.NewFromInt(50),
		}))
	}

	earliest, err := s.EarliestAllocation(ctx, fund.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(11), earliest.PaymentID)

	_, err = s.EarliestAllocation(ctx, fund.ID, 8)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	err = s.CreateAllocation(ctx, &Allocation{PaymentID: 11, FundID: fund.ID, ClientUserID: 7, Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestMemoryStoreAllocationPerPayment(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	first := newTestFund(t, s, "100")
	second := newTestFund(t, s, "200")

	require.NoError(t, s.CreateAllocation(ctx, &Allocation{
		PaymentID: 11, FundID: first.ID, ClientUserID: 7, Amount: decimal.NewFromInt(100),
	}))

	got, err := s.GetAllocationByPayment(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.FundID)

	_, err = s.GetAllocationByPayment(ctx, 12)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	// The same payment cannot back a second fund.
	err = s.CreateAllocation(ctx, &Allocation{PaymentID: 11, FundID: second.ID, ClientUserID: 7, Amount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)
}

func TestMemoryStoreFailOn(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	injected := errors.New("disk full")
	s.FailOn("CreateFund", injected)

	err := s.CreateFund(ctx, &Fund{Name: "x"})
	assert.ErrorIs(t, err, injected)

	s.FailOn("CreateFund", nil)
	assert.NoError(t, s.CreateFund(ctx, &Fund{Name: "x"}))
}
