package funding

import (
	"context"
	"errors"
	"testing"
	"time"

	"fund-ledger/internal/database"
	"fund-ledger/internal/events"
	"fund-ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const companyProfileID = int64(1)

func testPolicy() ledger.Policy {
	p := ledger.DefaultPolicy()
	p.CompanyProfileID = companyProfileID
	return p
}

func newTestService(t *testing.T) (*Service, *database.MemoryStore) {
	t.Helper()
	store := database.NewMemoryStore()
	return NewService(store, testPolicy(), nil), store
}

func deposit(t *testing.T, svc *Service, payer int64, amount string, referrer *int64) *Deposit {
	t.Helper()
	d, err := svc.RecordDeposit(context.Background(), DepositRequest{
		PayerUserID:      payer,
		PayerProfileID:   payer + 100,
		PayerName:        "client",
		ReferredByUserID: referrer,
		Amount:           decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRecordDeposit(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	referrer := int64(5)

	first := deposit(t, svc, 20, "300", &referrer)
	assert.Equal(t, database.PaymentStatusCompleted, first.Payment.Status)
	assert.Equal(t, "USD", first.Payment.Currency)
	require.NotNil(t, first.Subscription.PaymentID)
	assert.Equal(t, first.Payment.ID, *first.Subscription.PaymentID)
	require.NotNil(t, first.Referral)
	assert.True(t, first.Referral.IsFirstDeposit)
	assert.True(t, first.Referral.CommissionPercentage.Equal(decimal.NewFromInt(15)))

	// The referrer is remembered when a later payment omits it.
	second := deposit(t, svc, 20, "500", nil)
	assert.Nil(t, second.Referral)
	client, err := store.GetClient(ctx, 20)
	require.NoError(t, err)
	require.NotNil(t, client.ReferredByUserID)
	assert.Equal(t, referrer, *client.ReferredByUserID)

	direct := deposit(t, svc, 30, "700", nil)
	assert.Nil(t, direct.Referral)
}

func TestRecordDepositValidation(t *testing.T) {
	svc, _ := newTestService(t)
	self := int64(20)

	tests := []struct {
		name string
		req  DepositRequest
		want error
	}{
		{"zero amount", DepositRequest{PayerUserID: 20, PayerProfileID: 120, Amount: decimal.Zero}, ledger.ErrInvalidAmount},
		{"negative amount", DepositRequest{PayerUserID: 20, PayerProfileID: 120, Amount: dec("-1")}, ledger.ErrInvalidAmount},
		{"self referral", DepositRequest{PayerUserID: 20, PayerProfileID: 120, Amount: dec("1"), ReferredByUserID: &self}, ledger.ErrInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordDeposit(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateFund(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	bus := events.NewEventBus()
	created := make(chan events.Event, 1)
	bus.Subscribe(events.EventFundCreated, func(e events.Event) { created <- e })
	svc.bus = bus

	a := deposit(t, svc, 20, "700", nil)
	b := deposit(t, svc, 30, "300", nil)
	pending, err := svc.RecordDeposit(ctx, DepositRequest{
		PayerUserID: 40, PayerProfileID: 140, Amount: dec("50"), Status: database.PaymentStatusPending,
	})
	require.NoError(t, err)

	out, err := svc.CreateFund(ctx, FundRequest{
		Name:       "Growth I",
		PaymentIDs: []int64{a.Payment.ID, b.Payment.ID, pending.Payment.ID, 9999},
	})
	require.NoError(t, err)

	fund := out.Fund
	assert.Equal(t, database.FundCategoryInvestment, fund.Category)
	assert.Equal(t, database.FundStatusOpen, fund.Status)
	assert.True(t, fund.InitialAmount.Equal(dec("1000")))
	assert.True(t, fund.CurrentAmount.Equal(dec("1000")))
	assert.ElementsMatch(t, []int64{pending.Payment.ID, 9999}, out.SkippedPayments)

	history, err := store.ListFundHistory(ctx, fund.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "fund_created", history[0].Reason)
	assert.True(t, history[0].PreviousAmount.IsZero())

	require.Len(t, out.ClientPositions, 2)
	require.Len(t, out.Allocations, 2)
	wantPercent := []string{"70", "30"}
	for i, p := range out.ClientPositions {
		assert.Equal(t, database.PositionKindClient, p.Kind)
		assert.True(t, p.InitialAmount.Equal(p.CurrentAmount))

		participants, err := store.ListParticipantsByPosition(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, participants, 1)
		assert.Equal(t, database.ParticipantRoleOwner, participants[0].Role)
		assert.True(t, participants[0].IsPrimaryOwner)
		assert.True(t, participants[0].SharePercent.Equal(dec(wantPercent[i])), "share %s", participants[0].SharePercent)

		ph, err := store.ListEarningHistory(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, ph, 1)
		assert.Equal(t, "initial_allocation", ph[0].Reason)

		alloc := out.Allocations[i]
		assert.Equal(t, database.AllocationStatusAccrued, alloc.Status)
		assert.Equal(t, p.ID, alloc.PositionID)
		assert.True(t, alloc.Percent.Equal(dec(wantPercent[i])))
	}
	assert.Equal(t, *a.Subscription.PaymentID, out.Allocations[0].PaymentID)
	assert.Equal(t, a.Subscription.ID, out.Allocations[0].SubscriptionID)

	company := out.CompanyPosition
	require.NotNil(t, company)
	assert.Equal(t, database.PositionKindCompany, company.Kind)
	assert.True(t, company.InitialAmount.IsZero())
	participants, err := store.ListParticipantsByPosition(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, companyProfileID, participants[0].ProfileID)
	assert.Equal(t, database.ParticipantRoleAdvisor, participants[0].Role)
	assert.True(t, participants[0].SharePercent.Equal(dec("20")))

	select {
	case e := <-created:
		assert.Equal(t, fund.ID, e.Data["fund_id"])
	case <-time.After(time.Second):
		t.Fatal("FUND_CREATED not published")
	}
}

func TestCreateFundErrors(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	a := deposit(t, svc, 20, "700", nil)

	_, err := svc.CreateFund(ctx, FundRequest{Name: "Empty", PaymentIDs: []int64{12345}})
	assert.ErrorIs(t, err, ledger.ErrNoPayments)

	_, err = svc.CreateFund(ctx, FundRequest{Name: "  ", PaymentIDs: []int64{a.Payment.ID}})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	_, err = svc.CreateFund(ctx, FundRequest{Name: "Odd", Category: "crypto", PaymentIDs: []int64{a.Payment.ID}})
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)

	_, err = svc.CreateFund(ctx, FundRequest{Name: "Growth", PaymentIDs: []int64{a.Payment.ID}})
	require.NoError(t, err)
	b := deposit(t, svc, 30, "300", nil)
	_, err = svc.CreateFund(ctx, FundRequest{Name: "Growth", PaymentIDs: []int64{b.Payment.ID}})
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	// A failure midway leaves nothing behind.
	boom := errors.New("disk full")
	store.FailOn("CreateAllocation", boom)
	_, err = svc.CreateFund(ctx, FundRequest{Name: "Broken", PaymentIDs: []int64{b.Payment.ID}})
	assert.ErrorIs(t, err, boom)
	store.FailOn("CreateAllocation", nil)

	funds, err := store.ListFunds(ctx)
	require.NoError(t, err)
	assert.Len(t, funds, 1)
}

func TestCreateFundSkipsPooledPayments(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	a := deposit(t, svc, 20, "700", nil)
	b := deposit(t, svc, 30, "300", nil)

	growth, err := svc.CreateFund(ctx, FundRequest{Name: "Growth", PaymentIDs: []int64{a.Payment.ID, b.Payment.ID}})
	require.NoError(t, err)

	_, err = svc.CreateFund(ctx, FundRequest{Name: "Growth II", PaymentIDs: []int64{a.Payment.ID, b.Payment.ID}})
	assert.ErrorIs(t, err, ledger.ErrNoPayments)

	// Cancelling the allocation does not release the payment.
	_, err = svc.TransitionAllocation(ctx, growth.Allocations[1].ID, database.AllocationStatusCancelled)
	require.NoError(t, err)

	c := deposit(t, svc, 40, "250", nil)
	mixed, err := svc.CreateFund(ctx, FundRequest{Name: "Growth III", PaymentIDs: []int64{a.Payment.ID, b.Payment.ID, c.Payment.ID}})
	require.NoError(t, err)
	assert.True(t, mixed.Fund.InitialAmount.Equal(dec("250")))
	assert.Equal(t, []int64{a.Payment.ID, b.Payment.ID}, mixed.SkippedPayments)
	require.Len(t, mixed.Allocations, 1)
	assert.Equal(t, c.Payment.ID, mixed.Allocations[0].PaymentID)

	funds, err := store.ListFunds(ctx)
	require.NoError(t, err)
	assert.Len(t, funds, 2)
}

func TestCreateFundPublishesError(t *testing.T) {
	store := database.NewMemoryStore()
	bus := events.NewEventBus()
	failures := make(chan events.Event, 1)
	bus.Subscribe(events.EventError, func(e events.Event) { failures <- e })
	svc := NewService(store, testPolicy(), bus)

	_, err := svc.CreateFund(context.Background(), FundRequest{Name: "Empty", PaymentIDs: []int64{404}})
	require.ErrorIs(t, err, ledger.ErrNoPayments)

	select {
	case e := <-failures:
		assert.Equal(t, "funding", e.Data["source"])
		assert.Equal(t, err.Error(), e.Data["message"])
		assert.NotContains(t, e.Data, "fund_id")
	case <-time.After(time.Second):
		t.Fatal("error event not delivered")
	}
}

func TestTransitionAllocation(t *testing.T) {
	tests := []struct {
		name  string
		steps []database.AllocationStatus
		want  error
	}{
		{"accrued to pending to paid", []database.AllocationStatus{database.AllocationStatusPendingPayment, database.AllocationStatusPaid}, nil},
		{"accrued to cancelled", []database.AllocationStatus{database.AllocationStatusCancelled}, nil},
		{"pending to cancelled", []database.AllocationStatus{database.AllocationStatusPendingPayment, database.AllocationStatusCancelled}, nil},
		{"accrued straight to paid", []database.AllocationStatus{database.AllocationStatusPaid}, ledger.ErrInvalidTransition},
		{"paid is terminal", []database.AllocationStatus{database.AllocationStatusPendingPayment, database.AllocationStatusPaid, database.AllocationStatusCancelled}, ledger.ErrInvalidTransition},
		{"cancelled is terminal", []database.AllocationStatus{database.AllocationStatusCancelled, database.AllocationStatusAccrued}, ledger.ErrInvalidTransition},
		{"unknown status", []database.AllocationStatus{"refunded"}, ledger.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			svc, store := newTestService(t)
			d := deposit(t, svc, 20, "100", nil)
			out, err := svc.CreateFund(ctx, FundRequest{Name: "F", PaymentIDs: []int64{d.Payment.ID}})
			require.NoError(t, err)
			id := out.Allocations[0].ID

			var last error
			for _, next := range tt.steps {
				if _, last = svc.TransitionAllocation(ctx, id, next); last != nil {
					break
				}
			}
			if tt.want == nil {
				require.NoError(t, last)
				got, err := store.GetAllocation(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, tt.steps[len(tt.steps)-1], got.Status)
				return
			}
			assert.ErrorIs(t, last, tt.want)
		})
	}
}

func TestTransitionAllocationClosedFund(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	d := deposit(t, svc, 20, "100", nil)
	out, err := svc.CreateFund(ctx, FundRequest{Name: "F", PaymentIDs: []int64{d.Payment.ID}})
	require.NoError(t, err)

	require.NoError(t, store.InTx(ctx, func(tx database.Store) error {
		f, err := tx.LockFund(ctx, out.Fund.ID)
		if err != nil {
			return err
		}
		return tx.UpdateFundStatus(ctx, f, database.FundStatusClosed)
	}))

	_, err = svc.TransitionAllocation(ctx, out.Allocations[0].ID, database.AllocationStatusPendingPayment)
	assert.ErrorIs(t, err, ledger.ErrInvalidState)

	_, err = svc.TransitionAllocation(ctx, 424242, database.AllocationStatusPendingPayment)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
