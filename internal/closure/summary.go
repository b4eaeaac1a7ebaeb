package closure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fund-ledger/internal/cache"
	"fund-ledger/internal/database"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/referral"

	"github.com/shopspring/decimal"
)

// StatusNotClosed is reported for funds without a closure snapshot
const StatusNotClosed = "not_closed"

// Reporter builds the read-side projections of closure snapshots
type Reporter struct {
	store     database.Store
	summaries *cache.SummaryCache
}

// NewReporter creates a reporter. summaries may be nil.
func NewReporter(store database.Store, summaries *cache.SummaryCache) *Reporter {
	return &Reporter{store: store, summaries: summaries}
}

// DistributionSummary splits a closed fund's gross earnings between the
// company, referrers and clients.
type DistributionSummary struct {
	FundID                int64           `json:"fund_id"`
	Reference             string          `json:"reference,omitempty"`
	TotalInvestment       decimal.Decimal `json:"total_investment"`
	TotalFundEarnings     decimal.Decimal `json:"total_fund_earnings"`
	CompanyTotal          decimal.Decimal `json:"company_total"`
	CompanyPercentage     decimal.Decimal `json:"company_percentage"`
	ReferralsTotal        decimal.Decimal `json:"referrals_total"`
	ReferralsPercentage   decimal.Decimal `json:"referrals_percentage"`
	ClientsTotal          decimal.Decimal `json:"clients_total"`
	ClientsPercentage     decimal.Decimal `json:"clients_percentage"`
	TotalParticipants     int             `json:"total_participants"`
	FirstDepositsReferred int             `json:"first_deposits_referred"`
	Status                string          `json:"status"`
	ClosedAt              *time.Time      `json:"closed_at,omitempty"`
}

// ClosureSummary aggregates the rewards of a fund's latest closure
type ClosureSummary struct {
	Snapshot                 *database.ClosureSnapshot `json:"closure"`
	TotalRewards             int                       `json:"total_rewards"`
	TotalReferralCommissions int                       `json:"total_referral_commissions"`
	AverageNetEarnings       decimal.Decimal           `json:"average_client_earning"`
	HighestNetEarnings       decimal.Decimal           `json:"highest_earning"`
	LowestNetEarnings        decimal.Decimal           `json:"lowest_earning"`
	TotalCommissionsPaid     decimal.Decimal           `json:"total_commissions_paid"`
}

// RewardDetail is one row of a fund's distribution table
type RewardDetail struct {
	*database.RewardRecord
	ClientName   string `json:"client_name"`
	ReferrerName string `json:"referrer_name,omitempty"`
}

// ClientEarnings is the closed net earnings of one client over all funds
type ClientEarnings struct {
	ClientUserID     int64           `json:"client_user_id"`
	Rewards          int             `json:"rewards"`
	TotalNetEarnings decimal.Decimal `json:"total_net_earnings"`
}

// DistributionSummary returns the split of the fund's latest closure, or a
// zeroed summary with StatusNotClosed when the fund has none.
func (r *Reporter) DistributionSummary(ctx context.Context, fundID int64) (*DistributionSummary, error) {
	return cache.Load(ctx, r.summaries, cache.FundDistributionKey(fundID), func(ctx context.Context) (*DistributionSummary, error) {
		if _, err := r.store.GetFund(ctx, fundID); err != nil {
			return nil, err
		}
		snap, err := r.store.GetLatestClosure(ctx, fundID)
		if errors.Is(err, ledger.ErrNotFound) {
			return &DistributionSummary{
				FundID:              fundID,
				TotalInvestment:     decimal.Zero,
				TotalFundEarnings:   decimal.Zero,
				CompanyTotal:        decimal.Zero,
				CompanyPercentage:   decimal.Zero,
				ReferralsTotal:      decimal.Zero,
				ReferralsPercentage: decimal.Zero,
				ClientsTotal:        decimal.Zero,
				ClientsPercentage:   decimal.Zero,
				Status:              StatusNotClosed,
			}, nil
		}
		if err != nil {
			return nil, err
		}

		gross := snap.TotalGrossEarnings
		return &DistributionSummary{
			FundID:                fundID,
			Reference:             snap.Reference,
			TotalInvestment:       snap.TotalInvestment,
			TotalFundEarnings:     gross,
			CompanyTotal:          snap.CompanyTotal,
			CompanyPercentage:     ledger.SharePercent(snap.CompanyTotal, gross),
			ReferralsTotal:        snap.ReferralTotal,
			ReferralsPercentage:   ledger.SharePercent(snap.ReferralTotal, gross),
			ClientsTotal:          snap.ClientsNetTotal,
			ClientsPercentage:     ledger.SharePercent(snap.ClientsNetTotal, gross),
			TotalParticipants:     snap.ParticipantCount,
			FirstDepositsReferred: snap.FirstDepositsReferred,
			Status:                string(snap.Status),
			ClosedAt:              snap.ClosedAt,
		}, nil
	})
}

// ClosureSummary returns reward statistics of the fund's latest closure.
// It fails with ledger.ErrNotFound when the fund was never closed.
func (r *Reporter) ClosureSummary(ctx context.Context, fundID int64) (*ClosureSummary, error) {
	return cache.Load(ctx, r.summaries, cache.FundClosureSummaryKey(fundID), func(ctx context.Context) (*ClosureSummary, error) {
		snap, err := r.store.GetLatestClosure(ctx, fundID)
		if err != nil {
			return nil, err
		}
		rewards, err := r.closureRewards(ctx, snap)
		if err != nil {
			return nil, err
		}

		out := &ClosureSummary{
			Snapshot:             snap,
			TotalRewards:         len(rewards),
			AverageNetEarnings:   decimal.Zero,
			HighestNetEarnings:   decimal.Zero,
			LowestNetEarnings:    decimal.Zero,
			TotalCommissionsPaid: decimal.Zero,
		}
		if len(rewards) == 0 {
			return out, nil
		}

		total := decimal.Zero
		out.HighestNetEarnings = rewards[0].NetEarnings
		out.LowestNetEarnings = rewards[0].NetEarnings
		for _, rw := range rewards {
			total = total.Add(rw.NetEarnings)
			out.HighestNetEarnings = decimal.Max(out.HighestNetEarnings, rw.NetEarnings)
			out.LowestNetEarnings = decimal.Min(out.LowestNetEarnings, rw.NetEarnings)
			if rw.WasReferred {
				out.TotalReferralCommissions++
				out.TotalCommissionsPaid = out.TotalCommissionsPaid.Add(rw.ReferralDeduction)
			}
		}
		out.AverageNetEarnings = ledger.Round(total.Div(decimal.NewFromInt(int64(len(rewards)))))
		return out, nil
	})
}

func (r *Reporter) closureRewards(ctx context.Context, snap *database.ClosureSnapshot) ([]*database.RewardRecord, error) {
	all, err := r.store.ListRewardsByFund(ctx, snap.FundID)
	if err != nil {
		return nil, err
	}
	rewards := make([]*database.RewardRecord, 0, len(all))
	for _, rw := range all {
		if rw.ClosureID == snap.ID {
			rewards = append(rewards, rw)
		}
	}
	return rewards, nil
}

// FundRewards lists every reward of the fund with client and referrer names
func (r *Reporter) FundRewards(ctx context.Context, fundID int64) ([]RewardDetail, error) {
	if _, err := r.store.GetFund(ctx, fundID); err != nil {
		return nil, err
	}
	rewards, err := r.store.ListRewardsByFund(ctx, fundID)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string)
	name := func(userID int64) (string, error) {
		if n, ok := names[userID]; ok {
			return n, nil
		}
		c, err := r.store.GetClient(ctx, userID)
		if errors.Is(err, ledger.ErrNotFound) {
			names[userID] = "N/A"
			return "N/A", nil
		}
		if err != nil {
			return "", fmt.Errorf("resolve client %d: %w", userID, err)
		}
		names[userID] = c.Name
		return c.Name, nil
	}

	details := make([]RewardDetail, 0, len(rewards))
	for _, rw := range rewards {
		d := RewardDetail{RewardRecord: rw}
		if d.ClientName, err = name(rw.ClientUserID); err != nil {
			return nil, err
		}
		if rw.WasReferred && rw.ReferrerUserID != nil {
			if d.ReferrerName, err = name(*rw.ReferrerUserID); err != nil {
				return nil, err
			}
		}
		details = append(details, d)
	}
	return details, nil
}

// ClientTotalEarnings sums the net earnings of the client's closed rewards
func (r *Reporter) ClientTotalEarnings(ctx context.Context, clientUserID int64) (*ClientEarnings, error) {
	return cache.Load(ctx, r.summaries, cache.ClientEarningsKey(clientUserID), func(ctx context.Context) (*ClientEarnings, error) {
		rewards, err := r.store.ListRewardsByClient(ctx, clientUserID)
		if err != nil {
			return nil, err
		}
		out := &ClientEarnings{ClientUserID: clientUserID, TotalNetEarnings: decimal.Zero}
		for _, rw := range rewards {
			if rw.Status != database.RewardStatusClosed {
				continue
			}
			out.Rewards++
			out.TotalNetEarnings = out.TotalNetEarnings.Add(rw.NetEarnings)
		}
		return out, nil
	})
}

// ReferrerTotalCommissions sums the commissions paid to a referrer
func (r *Reporter) ReferrerTotalCommissions(ctx context.Context, referrerUserID int64) (*referral.ReferrerCommissions, error) {
	return cache.Load(ctx, r.summaries, cache.ReferrerCommissionKey(referrerUserID), func(ctx context.Context) (*referral.ReferrerCommissions, error) {
		return referral.TotalCommissions(ctx, r.store, referrerUserID)
	})
}
