package database

import (
	"context"
	"fmt"
	"time"

	"fund-ledger/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ============================================================================
// REFERRAL LINKS
// ============================================================================

const referralColumns = `id, referrer_user_id, referred_user_id, first_payment_id, deposit_amount, is_first_deposit,
	commission_percentage, commission_amount, reward_id, status, paid_at, created_at`

func scanReferral(row pgx.Row) (*ReferralLink, error) {
	l := &ReferralLink{}
	err := row.Scan(
		&l.ID, &l.ReferrerUserID, &l.ReferredUserID, &l.FirstPaymentID, &l.DepositAmount, &l.IsFirstDeposit,
		&l.CommissionPercentage, &l.CommissionAmount, &l.RewardID, &l.Status, &l.PaidAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return l, nil
}

// CreateReferralLink inserts a referral link
func (r *Repository) CreateReferralLink(ctx context.Context, l *ReferralLink) error {
	if l.Status == "" {
		l.Status = ReferralStatusPending
	}
	query := `
		INSERT INTO referral_links (referrer_user_id, referred_user_id, first_payment_id, deposit_amount,
		                            is_first_deposit, commission_percentage, commission_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(
		ctx, query,
		l.ReferrerUserID, l.ReferredUserID, l.FirstPaymentID, l.DepositAmount,
		l.IsFirstDeposit, l.CommissionPercentage, l.CommissionAmount, l.Status,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create referral link for user %d: %w", l.ReferredUserID, mapError(err))
	}
	return nil
}

// FindFirstDepositReferral returns the first-deposit link of a referred user
func (r *Repository) FindFirstDepositReferral(ctx context.Context, referredUserID int64) (*ReferralLink, error) {
	l, err := scanReferral(r.q.QueryRow(ctx,
		`SELECT `+referralColumns+` FROM referral_links WHERE referred_user_id = $1 AND is_first_deposit ORDER BY id LIMIT 1`,
		referredUserID,
	))
	if err != nil {
		return nil, fmt.Errorf("first deposit referral of user %d: %w", referredUserID, err)
	}
	return l, nil
}

// MarkReferralPaid records the commission taken at closure
func (r *Repository) MarkReferralPaid(ctx context.Context, id int64, commission decimal.Decimal, rewardID int64, paidAt time.Time) error {
	query := `
		UPDATE referral_links
		SET commission_amount = $2, reward_id = $3, status = $4, paid_at = $5
		WHERE id = $1 AND status <> $4
	`
	tag, err := r.q.Exec(ctx, query, id, commission, rewardID, ReferralStatusPaid, paidAt)
	if err != nil {
		return fmt.Errorf("mark referral %d paid: %w", id, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("referral %d missing or already paid: %w", id, ledger.ErrConcurrentModification)
	}
	return nil
}

// ListReferralsByReferrer returns the links created by a referrer
func (r *Repository) ListReferralsByReferrer(ctx context.Context, referrerUserID int64) ([]*ReferralLink, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+referralColumns+` FROM referral_links WHERE referrer_user_id = $1 ORDER BY id`,
		referrerUserID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var links []*ReferralLink
	for rows.Next() {
		l, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, mapError(rows.Err())
}

// ============================================================================
// CLOSURE SNAPSHOTS
// ============================================================================

// CreateClosureSnapshot inserts the audit record of a closure
func (r *Repository) CreateClosureSnapshot(ctx context.Context, c *ClosureSnapshot) error {
	query := `
		INSERT INTO closure_snapshots (reference, fund_id, period_start, period_end, period_yield,
		                               total_investment, total_gross_earnings, company_total, referral_total,
		                               clients_net_total, participant_count, first_deposits_referred, status,
		                               calculated_at, distributed_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(
		ctx, query,
		c.Reference, c.FundID, c.PeriodStart, c.PeriodEnd, c.PeriodYield,
		c.TotalInvestment, c.TotalGrossEarnings, c.CompanyTotal, c.ReferralTotal,
		c.ClientsNetTotal, c.ParticipantCount, c.FirstDepositsReferred, c.Status,
		c.CalculatedAt, c.DistributedAt, c.ClosedAt,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create closure snapshot for fund %d: %w", c.FundID, mapError(err))
	}
	return nil
}

// GetLatestClosure returns the most recent closure of a fund
func (r *Repository) GetLatestClosure(ctx context.Context, fundID int64) (*ClosureSnapshot, error) {
	c := &ClosureSnapshot{}
	err := r.q.QueryRow(ctx, `
		SELECT id, reference, fund_id, period_start, period_end, period_yield,
		       total_investment, total_gross_earnings, company_total, referral_total,
		       clients_net_total, participant_count, first_deposits_referred, status,
		       calculated_at, distributed_at, closed_at, created_at
		FROM closure_snapshots
		WHERE fund_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, fundID).Scan(
		&c.ID, &c.Reference, &c.FundID, &c.PeriodStart, &c.PeriodEnd, &c.PeriodYield,
		&c.TotalInvestment, &c.TotalGrossEarnings, &c.CompanyTotal, &c.ReferralTotal,
		&c.ClientsNetTotal, &c.ParticipantCount, &c.FirstDepositsReferred, &c.Status,
		&c.CalculatedAt, &c.DistributedAt, &c.ClosedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("closure of fund %d: %w", fundID, mapError(err))
	}
	return c, nil
}

// ============================================================================
// REWARDS
// ============================================================================

const rewardColumns = `id, closure_id, client_user_id, fund_id, allocation_id, investment, gross_earnings,
	company_percentage, company_deduction, was_referred, referrer_user_id, referral_percentage,
	referral_deduction, net_earnings, reason, status, closed_at, created_at`

// CreateReward inserts a reward record
func (r *Repository) CreateReward(ctx context.Context, rw *RewardRecord) error {
	query := `
		INSERT INTO reward_records (closure_id, client_user_id, fund_id, allocation_id, investment, gross_earnings,
		                            company_percentage, company_deduction, was_referred, referrer_user_id,
		                            referral_percentage, referral_deduction, net_earnings, reason, status, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(
		ctx, query,
		rw.ClosureID, rw.ClientUserID, rw.FundID, rw.AllocationID, rw.Investment, rw.GrossEarnings,
		rw.CompanyPercentage, rw.CompanyDeduction, rw.WasReferred, rw.ReferrerUserID,
		rw.ReferralPercentage, rw.ReferralDeduction, rw.NetEarnings, rw.Reason, rw.Status, rw.ClosedAt,
	).Scan(&rw.ID, &rw.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create reward for allocation %d: %w", rw.AllocationID, mapError(err))
	}
	return nil
}

func (r *Repository) queryRewards(ctx context.Context, query string, args ...any) ([]*RewardRecord, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var rewards []*RewardRecord
	for rows.Next() {
		rw := &RewardRecord{}
		if err := rows.Scan(
			&rw.ID, &rw.ClosureID, &rw.ClientUserID, &rw.FundID, &rw.AllocationID, &rw.Investment, &rw.GrossEarnings,
			&rw.CompanyPercentage, &rw.CompanyDeduction, &rw.WasReferred, &rw.ReferrerUserID, &rw.ReferralPercentage,
			&rw.ReferralDeduction, &rw.NetEarnings, &rw.Reason, &rw.Status, &rw.ClosedAt, &rw.CreatedAt,
		); err != nil {
			return nil, mapError(err)
		}
		rewards = append(rewards, rw)
	}
	return rewards, mapError(rows.Err())
}

// ListRewardsByFund returns the rewards of a fund
func (r *Repository) ListRewardsByFund(ctx context.Context, fundID int64) ([]*RewardRecord, error) {
	return r.queryRewards(ctx, `SELECT `+rewardColumns+` FROM reward_records WHERE fund_id = $1 ORDER BY id`, fundID)
}

// ListRewardsByClient returns the rewards of a client across funds
func (r *Repository) ListRewardsByClient(ctx context.Context, clientUserID int64) ([]*RewardRecord, error) {
	return r.queryRewards(ctx, `SELECT `+rewardColumns+` FROM reward_records WHERE client_user_id = $1 ORDER BY id`, clientUserID)
}
