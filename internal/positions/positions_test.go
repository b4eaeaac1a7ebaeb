package positions

import (
	"context"
	"testing"

	"fund-ledger/internal/database"
	"fund-ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func position(id int64, kind database.PositionKind, initial, current string) *database.EarningPosition {
	return &database.EarningPosition{ID: id, Kind: kind, InitialAmount: d(initial), CurrentAmount: d(current)}
}

func TestClassify(t *testing.T) {
	cohort, err := Classify([]*database.EarningPosition{
		position(1, database.PositionKindClient, "700", "700"),
		position(2, database.PositionKindCompany, "0", "0"),
		position(3, database.PositionKindClient, "300", "310"),
	})
	require.NoError(t, err)
	require.Len(t, cohort.Clients, 2)
	require.NotNil(t, cohort.Company)
	assert.Equal(t, int64(2), cohort.Company.ID)
	assert.True(t, cohort.ClientBasis().Equal(d("1000")))
	assert.True(t, cohort.ClientValue().Equal(d("1010")))
}

func TestClassifyRejectsMisclassifiedRows(t *testing.T) {
	testCases := []struct {
		name string
		list []*database.EarningPosition
	}{
		{"client without basis", []*database.EarningPosition{position(1, database.PositionKindClient, "0", "0")}},
		{"company with basis", []*database.EarningPosition{position(1, database.PositionKindCompany, "10", "10")}},
		{"two company rows", []*database.EarningPosition{
			position(1, database.PositionKindCompany, "0", "0"),
			position(2, database.PositionKindCompany, "0", "5"),
		}},
		{"unknown kind", []*database.EarningPosition{position(1, "advisor", "10", "10")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Classify(tc.list)
			assert.ErrorIs(t, err, ledger.ErrInvalidPosition)
		})
	}
}

func TestProportionalShare(t *testing.T) {
	a, err := NewClientPosition(position(1, database.PositionKindClient, "700", "700"))
	require.NoError(t, err)

	assert.True(t, ProportionalShare(a, d("1000")).Equal(d("0.7")))
	assert.True(t, ProportionalShare(a, decimal.Zero).IsZero())
}

func TestSetAmountWritesHistoryAndParticipants(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()

	fund := &database.Fund{Name: "f", InitialAmount: d("700"), CurrentAmount: d("700")}
	require.NoError(t, store.CreateFund(ctx, fund))
	p := &database.EarningPosition{FundID: &fund.ID, Kind: database.PositionKindClient, InitialAmount: d("700"), CurrentAmount: d("700")}
	require.NoError(t, store.CreatePosition(ctx, p))
	require.NoError(t, store.CreateParticipant(ctx, &database.Participant{
		PositionID: &p.ID, Role: database.ParticipantRoleOwner, FinalInvestmentAmount: d("700"),
	}))

	h, err := ApplyDelta(ctx, store, p, d("56"), Change{Reason: "rebalance", Metadata: map[string]interface{}{"share": "0.7"}})
	require.NoError(t, err)
	assert.True(t, h.PreviousAmount.Equal(d("700")))
	assert.True(t, h.NewAmount.Equal(d("756")))
	assert.True(t, h.FluctuationPercent.Equal(d("8")))
	assert.True(t, p.CurrentAmount.Equal(d("756")))

	stored, err := store.GetPosition(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.Equal(d("756")))

	participants, err := store.ListParticipantsByPosition(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.True(t, participants[0].FinalInvestmentAmount.Equal(d("756")))

	history, err := store.ListEarningHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSetAmountFromZeroHasZeroFluctuation(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	p := &database.EarningPosition{Kind: database.PositionKindCompany, InitialAmount: decimal.Zero, CurrentAmount: decimal.Zero}
	require.NoError(t, store.CreatePosition(ctx, p))

	h, err := SetAmount(ctx, store, p, d("20"), Change{Reason: "rebalance"})
	require.NoError(t, err)
	assert.True(t, h.FluctuationPercent.IsZero())
}
