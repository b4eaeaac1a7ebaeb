package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundStatus is the lifecycle state of a fund
type FundStatus string

const (
	FundStatusOpen   FundStatus = "open"
	FundStatusPaused FundStatus = "paused"
	FundStatusClosed FundStatus = "closed"
)

// FundCategory classifies a fund
type FundCategory string

const (
	FundCategoryInvestment FundCategory = "investment"
	FundCategoryCoverage   FundCategory = "coverage"
)

// Fund is a pool of client deposits valued as a whole
type Fund struct {
	ID            int64                  `json:"id"`
	Category      FundCategory           `json:"category"`
	Name          string                 `json:"name"`
	InitialAmount decimal.Decimal        `json:"initial_amount"`
	CurrentAmount decimal.Decimal        `json:"current_amount"`
	Status        FundStatus             `json:"status"`
	Version       int64                  `json:"version"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// IsOpen reports whether the fund accepts revaluation and closure
func (f *Fund) IsOpen() bool {
	return f.Status == FundStatusOpen
}

// FundHistory is one append-only valuation event of a fund
type FundHistory struct {
	ID                 int64                  `json:"id"`
	FundID             int64                  `json:"fund_id"`
	PreviousAmount     decimal.Decimal        `json:"previous_amount"`
	NewAmount          decimal.Decimal        `json:"new_amount"`
	FluctuationPercent decimal.Decimal        `json:"fluctuation_percent"`
	Reason             string                 `json:"reason"`
	RecordedAt         time.Time              `json:"recorded_at"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// PositionKind tags an earning position as a client stake or the company commission
type PositionKind string

const (
	PositionKindClient  PositionKind = "client"
	PositionKindCompany PositionKind = "company"
)

// EarningPosition is a stake inside a fund
type EarningPosition struct {
	ID             int64                  `json:"id"`
	SubscriptionID int64                  `json:"subscription_id"`
	FundID         *int64                 `json:"fund_id,omitempty"`
	Kind           PositionKind           `json:"kind"`
	InitialAmount  decimal.Decimal        `json:"initial_amount"`
	CurrentAmount  decimal.Decimal        `json:"current_amount"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// EarningHistory is one append-only change of a position value
type EarningHistory struct {
	ID                 int64                  `json:"id"`
	PositionID         int64                  `json:"position_id"`
	PreviousAmount     decimal.Decimal        `json:"previous_amount"`
	NewAmount          decimal.Decimal        `json:"new_amount"`
	FluctuationPercent decimal.Decimal        `json:"fluctuation_percent"`
	Reason             string                 `json:"reason"`
	RecordedAt         time.Time              `json:"recorded_at"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// ParticipantRole is the relation of a profile to a position
type ParticipantRole string

const (
	ParticipantRoleOwner       ParticipantRole = "owner"
	ParticipantRoleBeneficiary ParticipantRole = "beneficiary"
	ParticipantRoleAdvisor     ParticipantRole = "advisor"
)

// Participant links a position to a profile
type Participant struct {
	ID                    int64           `json:"id"`
	SubscriptionID        int64           `json:"subscription_id"`
	ProfileID             int64           `json:"profile_id"`
	PositionID            *int64          `json:"position_id,omitempty"`
	Role                  ParticipantRole `json:"role"`
	SharePercent          decimal.Decimal `json:"share_percent"`
	FinalInvestmentAmount decimal.Decimal `json:"final_investment_amount"`
	IsPrimaryOwner        bool            `json:"is_primary_owner"`
	StartedAt             time.Time       `json:"started_at"`
}

// Client is the slice of a user account the ledger needs for referral checks
type Client struct {
	UserID           int64     `json:"user_id"`
	ProfileID        int64     `json:"profile_id"`
	Name             string    `json:"name"`
	ReferredByUserID *int64    `json:"referred_by_user_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// PaymentStatus mirrors the status assigned by the payment collaborator
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment is a deposit supplied by the payment collaborator
type Payment struct {
	ID             int64                  `json:"id"`
	PayerUserID    int64                  `json:"payer_user_id"`
	PayerProfileID int64                  `json:"payer_profile_id"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	Status         PaymentStatus          `json:"status"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// Subscription ties a payment (or the company) to its positions
type Subscription struct {
	ID        int64     `json:"id"`
	PaymentID *int64    `json:"payment_id,omitempty"`
	ProfileID int64     `json:"profile_id"`
	StartedAt time.Time `json:"started_at"`
}

// AllocationStatus is the payout state of an allocation
type AllocationStatus string

const (
	AllocationStatusAccrued        AllocationStatus = "accrued"
	AllocationStatusPendingPayment AllocationStatus = "pending_payment"
	AllocationStatusPaid           AllocationStatus = "paid"
	AllocationStatusCancelled      AllocationStatus = "cancelled"
)

var allocationTransitions = map[AllocationStatus][]AllocationStatus{
	AllocationStatusAccrued:        {AllocationStatusPendingPayment, AllocationStatusCancelled},
	AllocationStatusPendingPayment: {AllocationStatusPaid, AllocationStatusCancelled},
}

// CanTransitionTo reports whether the allocation may move to next
func (s AllocationStatus) CanTransitionTo(next AllocationStatus) bool {
	for _, allowed := range allocationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ValidAllocationStatus reports whether s is a known status
func ValidAllocationStatus(s AllocationStatus) bool {
	switch s {
	case AllocationStatusAccrued, AllocationStatusPendingPayment, AllocationStatusPaid, AllocationStatusCancelled:
		return true
	}
	return false
}

// Allocation links one completed deposit to one fund position
type Allocation struct {
	ID             int64                  `json:"id"`
	PaymentID      int64                  `json:"payment_id"`
	SubscriptionID int64                  `json:"subscription_id"`
	FundID         int64                  `json:"fund_id"`
	PositionID     int64                  `json:"position_id"`
	ClientUserID   int64                  `json:"client_user_id"`
	Amount         decimal.Decimal        `json:"amount"`
	Percent        decimal.Decimal        `json:"percent"`
	Status         AllocationStatus       `json:"status"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// ReferralStatus is the commission state of a referral link
type ReferralStatus string

const (
	ReferralStatusPending    ReferralStatus = "pending"
	ReferralStatusCalculated ReferralStatus = "calculated"
	ReferralStatusPaid       ReferralStatus = "paid"
)

// ReferralLink records that a referrer brought a client in
type ReferralLink struct {
	ID                   int64           `json:"id"`
	ReferrerUserID       int64           `json:"referrer_user_id"`
	ReferredUserID       int64           `json:"referred_user_id"`
	FirstPaymentID       *int64          `json:"first_payment_id,omitempty"`
	DepositAmount        decimal.Decimal `json:"deposit_amount"`
	IsFirstDeposit       bool            `json:"is_first_deposit"`
	CommissionPercentage decimal.Decimal `json:"commission_percentage"`
	CommissionAmount     decimal.Decimal `json:"commission_amount"`
	RewardID             *int64          `json:"reward_id,omitempty"`
	Status               ReferralStatus  `json:"status"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// ClosureStatus is the stage of a closure snapshot
type ClosureStatus string

const (
	ClosureStatusPending     ClosureStatus = "pending"
	ClosureStatusCalculated  ClosureStatus = "calculated"
	ClosureStatusDistributed ClosureStatus = "distributed"
	ClosureStatusClosed      ClosureStatus = "closed"
)

// ClosureSnapshot is the immutable aggregate report of one fund closure
type ClosureSnapshot struct {
	ID                    int64           `json:"id"`
	Reference             string          `json:"reference"`
	FundID                int64           `json:"fund_id"`
	PeriodStart           time.Time       `json:"period_start"`
	PeriodEnd             time.Time       `json:"period_end"`
	PeriodYield           decimal.Decimal `json:"period_yield"`
	TotalInvestment       decimal.Decimal `json:"total_investment"`
	TotalGrossEarnings    decimal.Decimal `json:"total_gross_earnings"`
	CompanyTotal          decimal.Decimal `json:"company_total"`
	ReferralTotal         decimal.Decimal `json:"referral_total"`
	ClientsNetTotal       decimal.Decimal `json:"clients_net_total"`
	ParticipantCount      int             `json:"participant_count"`
	FirstDepositsReferred int             `json:"first_deposits_referred"`
	Status                ClosureStatus   `json:"status"`
	CalculatedAt          *time.Time      `json:"calculated_at,omitempty"`
	DistributedAt         *time.Time      `json:"distributed_at,omitempty"`
	ClosedAt              *time.Time      `json:"closed_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// RewardStatus is the payout state of a reward
type RewardStatus string

const (
	RewardStatusPending RewardStatus = "pending"
	RewardStatusClosed  RewardStatus = "closed"
	RewardStatusPaid    RewardStatus = "paid"
)

// RewardRecord is one client's earnings for one allocation at closure
type RewardRecord struct {
	ID                 int64           `json:"id"`
	ClosureID          int64           `json:"closure_id"`
	ClientUserID       int64           `json:"client_user_id"`
	FundID             int64           `json:"fund_id"`
	AllocationID       int64           `json:"allocation_id"`
	Investment         decimal.Decimal `json:"investment"`
	GrossEarnings      decimal.Decimal `json:"gross_earnings"`
	CompanyPercentage  decimal.Decimal `json:"company_percentage"`
	CompanyDeduction   decimal.Decimal `json:"company_deduction"`
	WasReferred        bool            `json:"was_referred"`
	ReferrerUserID     *int64          `json:"referrer_user_id,omitempty"`
	ReferralPercentage decimal.Decimal `json:"referral_percentage"`
	ReferralDeduction  decimal.Decimal `json:"referral_deduction"`
	NetEarnings        decimal.Decimal `json:"net_earnings"`
	Reason             string          `json:"reason"`
	Status             RewardStatus    `json:"status"`
	ClosedAt           *time.Time      `json:"closed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}
