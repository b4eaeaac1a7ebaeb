package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the ledger data access surface used by the engines.
// Implementations return errors wrapping the ledger package sentinels
// (ErrNotFound, ErrDuplicate, ErrConcurrentModification, ErrInvalidState).
type Store interface {
	// Funds
	CreateFund(ctx context.Context, fund *Fund) error
	GetFund(ctx context.Context, id int64) (*Fund, error)
	// LockFund loads the fund and holds an exclusive row lock until the
	// enclosing transaction ends.
	LockFund(ctx context.Context, id int64) (*Fund, error)
	ListFunds(ctx context.Context) ([]*Fund, error)
	// UpdateFundValuation sets current_amount when the fund is still open at
	// fund.Version, and bumps the version.
	UpdateFundValuation(ctx context.Context, fund *Fund, newAmount decimal.Decimal) error
	// UpdateFundStatus moves the fund to status when it is still at fund.Version.
	UpdateFundStatus(ctx context.Context, fund *Fund, status FundStatus) error
	InsertFundHistory(ctx context.Context, h *FundHistory) error
	ListFundHistory(ctx context.Context, fundID int64) ([]*FundHistory, error)

	// Positions
	CreatePosition(ctx context.Context, p *EarningPosition) error
	GetPosition(ctx context.Context, id int64) (*EarningPosition, error)
	ListPositionsByFund(ctx context.Context, fundID int64) ([]*EarningPosition, error)
	// UpdatePositionAmount is refused with ErrInvalidState once the owning fund is closed.
	UpdatePositionAmount(ctx context.Context, positionID int64, amount decimal.Decimal) error
	InsertEarningHistory(ctx context.Context, h *EarningHistory) error
	ListEarningHistory(ctx context.Context, positionID int64) ([]*EarningHistory, error)
	CreateParticipant(ctx context.Context, p *Participant) error
	ListParticipantsByPosition(ctx context.Context, positionID int64) ([]*Participant, error)
	SyncParticipantAmounts(ctx context.Context, positionID int64, amount decimal.Decimal) error

	// Deposits
	CreateClient(ctx context.Context, c *Client) error
	GetClient(ctx context.Context, userID int64) (*Client, error)
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	CountCompletedPayments(ctx context.Context, payerUserID int64) (int, error)
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscriptionByPayment(ctx context.Context, paymentID int64) (*Subscription, error)

	// Allocations
	CreateAllocation(ctx context.Context, a *Allocation) error
	GetAllocation(ctx context.Context, id int64) (*Allocation, error)
	// GetAllocationByPayment returns the allocation of a payment, or
	// ErrNotFound. A payment is pooled into at most one fund.
	GetAllocationByPayment(ctx context.Context, paymentID int64) (*Allocation, error)
	ListAllocationsByFund(ctx context.Context, fundID int64) ([]*Allocation, error)
	// ListActiveAllocations returns non-cancelled allocations in creation order.
	ListActiveAllocations(ctx context.Context, fundID int64) ([]*Allocation, error)
	// EarliestAllocation returns the first allocation by creation order of a
	// client within a fund, cancelled ones included.
	EarliestAllocation(ctx context.Context, fundID, clientUserID int64) (*Allocation, error)
	UpdateAllocationStatus(ctx context.Context, id int64, status AllocationStatus) error

	// Referrals
	CreateReferralLink(ctx context.Context, l *ReferralLink) error
	// FindFirstDepositReferral returns the link flagged is_first_deposit for
	// the referred user, or ErrNotFound.
	FindFirstDepositReferral(ctx context.Context, referredUserID int64) (*ReferralLink, error)
	MarkReferralPaid(ctx context.Context, id int64, commission decimal.Decimal, rewardID int64, paidAt time.Time) error
	ListReferralsByReferrer(ctx context.Context, referrerUserID int64) ([]*ReferralLink, error)

	// Closures
	CreateClosureSnapshot(ctx context.Context, c *ClosureSnapshot) error
	GetLatestClosure(ctx context.Context, fundID int64) (*ClosureSnapshot, error)
	CreateReward(ctx context.Context, r *RewardRecord) error
	ListRewardsByFund(ctx context.Context, fundID int64) ([]*RewardRecord, error)
	ListRewardsByClient(ctx context.Context, clientUserID int64) ([]*RewardRecord, error)
}

// Transactor runs fn inside one atomic unit. Every write made through the
// Store handed to fn is committed together or not at all. Nested calls on a
// transactional Store join the outer transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

// Ledger is a Store that can open transactions.
type Ledger interface {
	Store
	Transactor
	HealthCheck(ctx context.Context) error
}
