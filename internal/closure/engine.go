// Package closure ends a fund's earning period. Every active allocation is
// paid out at an assumed period yield, with the company cut and the referral
// commission of first referred deposits taken from the gross gain.
package closure

import (
	"context"
	"fmt"
	"time"

	"fund-ledger/internal/cache"
	"fund-ledger/internal/database"
	"fund-ledger/internal/events"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/logging"
	"fund-ledger/internal/referral"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RewardReason is stamped on every reward written by a closure
const RewardReason = "closure"

// Engine closes funds
type Engine struct {
	store     database.Transactor
	policy    ledger.Policy
	bus       events.Publisher
	summaries *cache.SummaryCache
	now       func() time.Time
}

// NewEngine creates a closure engine. bus and summaries may be nil.
func NewEngine(store database.Transactor, policy ledger.Policy, bus events.Publisher, summaries *cache.SummaryCache) *Engine {
	return &Engine{
		store:     store,
		policy:    policy,
		bus:       bus,
		summaries: summaries,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Options are the operator inputs of a closure. Nil fields take defaults:
// the policy's period yield, the fund's creation time and now.
type Options struct {
	PeriodYield *decimal.Decimal `json:"period_yield,omitempty"`
	PeriodStart *time.Time       `json:"period_start,omitempty"`
	PeriodEnd   *time.Time       `json:"period_end,omitempty"`
}

// PaidReferral is a referral link settled by the closure
type PaidReferral struct {
	LinkID           int64           `json:"link_id"`
	ReferrerUserID   int64           `json:"referrer_user_id"`
	ReferredUserID   int64           `json:"referred_user_id"`
	RewardID         int64           `json:"reward_id"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
}

// Result is a committed closure
type Result struct {
	Snapshot      *database.ClosureSnapshot `json:"snapshot"`
	Rewards       []*database.RewardRecord  `json:"rewards"`
	ReferralsPaid []PaidReferral            `json:"referrals_paid"`
}

// Payout is the split of one allocation's gross gain
type Payout struct {
	Investment        decimal.Decimal
	GrossEarnings     decimal.Decimal
	CompanyDeduction  decimal.Decimal
	ReferralDeduction decimal.Decimal
	NetEarnings       decimal.Decimal
}

// ComputePayout applies yield to investment and takes the company cut, plus
// the referral cut when referred is set.
func ComputePayout(investment, yield decimal.Decimal, policy ledger.Policy, referred bool) Payout {
	gross := ledger.Round(investment.Mul(yield))
	company := ledger.Round(gross.Mul(policy.CompanyShare))
	referralCut := decimal.Zero
	if referred {
		referralCut = ledger.Round(gross.Mul(policy.ReferralShare))
	}
	return Payout{
		Investment:        investment,
		GrossEarnings:     gross,
		CompanyDeduction:  company,
		ReferralDeduction: referralCut,
		NetEarnings:       gross.Sub(company).Sub(referralCut),
	}
}

type pending struct {
	allocation  *database.Allocation
	payout      Payout
	attribution referral.Attribution
}

// CloseFund pays out every active allocation of the fund, writes the closure
// snapshot and marks the fund closed, all in one transaction.
func (e *Engine) CloseFund(ctx context.Context, fundID int64, opts Options) (*Result, error) {
	start := time.Now()

	yield := e.policy.DefaultPeriodYield
	if opts.PeriodYield != nil {
		yield = *opts.PeriodYield
	}
	logger := logging.ClosureContext(ctx, fundID, yield)

	if yield.IsNegative() {
		return nil, fmt.Errorf("period yield %s: %w", yield, ledger.ErrInvalidAmount)
	}
	if opts.PeriodStart != nil && opts.PeriodEnd != nil && opts.PeriodEnd.Before(*opts.PeriodStart) {
		return nil, fmt.Errorf("period ends %s before it starts %s: %w",
			opts.PeriodEnd.Format(time.RFC3339), opts.PeriodStart.Format(time.RFC3339), ledger.ErrInvalidPeriod)
	}

	logger.Info("Starting fund closure")

	var result *Result
	err := e.store.InTx(ctx, func(tx database.Store) error {
		r, err := e.close(ctx, tx, logger, fundID, yield, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		err = fmt.Errorf("close fund %d: %w", fundID, err)
		logger.WithError(err).WithDuration(time.Since(start)).Error("Fund closure failed")
		if e.bus != nil {
			e.bus.PublishError("closure", fundID, err)
		}
		return nil, err
	}

	snap := result.Snapshot
	logger.WithDuration(time.Since(start)).Info("Fund closure committed",
		"reference", snap.Reference,
		"total_investment", snap.TotalInvestment,
		"total_gross_earnings", snap.TotalGrossEarnings,
		"company_total", snap.CompanyTotal,
		"referral_total", snap.ReferralTotal,
		"clients_net_total", snap.ClientsNetTotal,
		"participants", snap.ParticipantCount,
		"first_deposits_referred", snap.FirstDepositsReferred,
	)

	if e.bus != nil {
		e.bus.PublishFundClosed(fundID, snap.Reference, snap.TotalGrossEarnings, snap.ClientsNetTotal, snap.ParticipantCount)
	}
	e.summaries.InvalidateFund(ctx, fundID, result.clientIDs(), result.referrerIDs())
	return result, nil
}

func (e *Engine) close(ctx context.Context, tx database.Store, logger *logging.Logger, fundID int64, yield decimal.Decimal, opts Options) (*Result, error) {
	fund, err := tx.LockFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if !fund.IsOpen() {
		return nil, ledger.NewFundStateError(fund.ID, string(fund.Status), "close")
	}

	allocations, err := tx.ListActiveAllocations(ctx, fund.ID)
	if err != nil {
		return nil, err
	}
	if len(allocations) == 0 {
		return nil, fmt.Errorf("fund %d: %w", fund.ID, ledger.ErrNoActiveAllocations)
	}

	now := e.now()
	periodStart := fund.CreatedAt
	if opts.PeriodStart != nil {
		periodStart = *opts.PeriodStart
	}
	periodEnd := now
	if opts.PeriodEnd != nil {
		periodEnd = *opts.PeriodEnd
	}
	if periodEnd.Before(periodStart) {
		return nil, fmt.Errorf("period ends %s before it starts %s: %w",
			periodEnd.Format(time.RFC3339), periodStart.Format(time.RFC3339), ledger.ErrInvalidPeriod)
	}

	snap := &database.ClosureSnapshot{
		Reference:          uuid.New().String(),
		FundID:             fund.ID,
		PeriodStart:        periodStart,
		PeriodEnd:          periodEnd,
		PeriodYield:        yield,
		TotalInvestment:    decimal.Zero,
		TotalGrossEarnings: decimal.Zero,
		CompanyTotal:       decimal.Zero,
		ReferralTotal:      decimal.Zero,
		ClientsNetTotal:    decimal.Zero,
		Status:             database.ClosureStatusClosed,
		CalculatedAt:       &now,
		DistributedAt:      &now,
		ClosedAt:           &now,
	}

	clients := make(map[int64]struct{})
	items := make([]pending, 0, len(allocations))
	for _, a := range allocations {
		verdict, err := referral.IsEligibleFirstReferredDeposit(ctx, tx, fund.ID, a)
		if err != nil {
			return nil, err
		}
		payout := ComputePayout(a.Amount, yield, e.policy, verdict.Eligible)
		items = append(items, pending{allocation: a, payout: payout, attribution: verdict})

		snap.TotalInvestment = snap.TotalInvestment.Add(payout.Investment)
		snap.TotalGrossEarnings = snap.TotalGrossEarnings.Add(payout.GrossEarnings)
		snap.CompanyTotal = snap.CompanyTotal.Add(payout.CompanyDeduction)
		snap.ReferralTotal = snap.ReferralTotal.Add(payout.ReferralDeduction)
		snap.ClientsNetTotal = snap.ClientsNetTotal.Add(payout.NetEarnings)
		clients[a.ClientUserID] = struct{}{}
		if verdict.Eligible {
			snap.FirstDepositsReferred++
		}

		logger.Debug("Allocation payout computed",
			"allocation_id", a.ID,
			"client_user_id", a.ClientUserID,
			"investment", payout.Investment,
			"gross_earnings", payout.GrossEarnings,
			"referral", verdict.Reason,
		)
	}
	snap.ParticipantCount = len(clients)

	if err := tx.CreateClosureSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	result := &Result{Snapshot: snap}
	companyPct := e.policy.CompanyShare.Mul(decimal.NewFromInt(100))
	referralPct := e.policy.ReferralShare.Mul(decimal.NewFromInt(100))
	for _, it := range items {
		reward := &database.RewardRecord{
			ClosureID:          snap.ID,
			ClientUserID:       it.allocation.ClientUserID,
			FundID:             fund.ID,
			AllocationID:       it.allocation.ID,
			Investment:         it.payout.Investment,
			GrossEarnings:      it.payout.GrossEarnings,
			CompanyPercentage:  companyPct,
			CompanyDeduction:   it.payout.CompanyDeduction,
			WasReferred:        it.attribution.Eligible,
			ReferralPercentage: decimal.Zero,
			ReferralDeduction:  it.payout.ReferralDeduction,
			NetEarnings:        it.payout.NetEarnings,
			Reason:             RewardReason,
			Status:             database.RewardStatusClosed,
			ClosedAt:           &now,
		}
		if it.attribution.Eligible {
			reward.ReferrerUserID = it.attribution.ReferrerUserID
			reward.ReferralPercentage = referralPct
		}
		if err := tx.CreateReward(ctx, reward); err != nil {
			return nil, err
		}
		result.Rewards = append(result.Rewards, reward)

		if !it.attribution.Eligible {
			continue
		}
		link := it.attribution.Link
		if err := tx.MarkReferralPaid(ctx, link.ID, it.payout.ReferralDeduction, reward.ID, now); err != nil {
			return nil, err
		}
		result.ReferralsPaid = append(result.ReferralsPaid, PaidReferral{
			LinkID:           link.ID,
			ReferrerUserID:   link.ReferrerUserID,
			ReferredUserID:   link.ReferredUserID,
			RewardID:         reward.ID,
			CommissionAmount: it.payout.ReferralDeduction,
		})
	}

	if err := tx.UpdateFundStatus(ctx, fund, database.FundStatusClosed); err != nil {
		return nil, err
	}
	history := &database.FundHistory{
		FundID:             fund.ID,
		PreviousAmount:     fund.CurrentAmount,
		NewAmount:          fund.CurrentAmount,
		FluctuationPercent: decimal.Zero,
		Reason:             "fund_closed",
		RecordedAt:         now,
		Metadata: map[string]interface{}{
			"event":                "closure",
			"closure_reference":    snap.Reference,
			"period_yield":         yield.String(),
			"total_gross_earnings": snap.TotalGrossEarnings.String(),
			"clients_net_total":    snap.ClientsNetTotal.String(),
		},
	}
	if err := tx.InsertFundHistory(ctx, history); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Result) clientIDs() []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, reward := range r.Rewards {
		if _, ok := seen[reward.ClientUserID]; ok {
			continue
		}
		seen[reward.ClientUserID] = struct{}{}
		ids = append(ids, reward.ClientUserID)
	}
	return ids
}

func (r *Result) referrerIDs() []int64 {
	ids := make([]int64, 0, len(r.ReferralsPaid))
	for _, p := range r.ReferralsPaid {
		ids = append(ids, p.ReferrerUserID)
	}
	return ids
}
