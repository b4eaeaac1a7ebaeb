// Package funding turns completed deposits into funds: deposit intake,
// fund creation with its client and company positions, and allocation
// status transitions.
package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fund-ledger/internal/database"
	"fund-ledger/internal/events"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/logging"
	"fund-ledger/internal/referral"

	"github.com/shopspring/decimal"
)

// Service records deposits and creates funds from them
type Service struct {
	store    database.Transactor
	policy   ledger.Policy
	registry *referral.Registry
	bus      events.Publisher
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates a funding service. bus may be nil.
func NewService(store database.Transactor, policy ledger.Policy, bus events.Publisher) *Service {
	return &Service{
		store:    store,
		policy:   policy,
		registry: referral.NewRegistry(policy.ReferralCommissionPercent),
		bus:      bus,
		logger:   logging.WithComponent("funding"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ============================================================================
// DEPOSITS
// ============================================================================

// DepositRequest is a payment reported by the payment collaborator
type DepositRequest struct {
	PayerUserID      int64                  `json:"payer_user_id" binding:"required"`
	PayerProfileID   int64                  `json:"payer_profile_id" binding:"required"`
	PayerName        string                 `json:"payer_name"`
	ReferredByUserID *int64                 `json:"referred_by_user_id,omitempty"`
	Amount           decimal.Decimal        `json:"amount"`
	Currency         string                 `json:"currency"`
	Status           database.PaymentStatus `json:"status"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// Deposit is the outcome of RecordDeposit
type Deposit struct {
	Payment      *database.Payment      `json:"payment"`
	Subscription *database.Subscription `json:"subscription"`
	Referral     *database.ReferralLink `json:"referral,omitempty"`
}

// RecordDeposit stores the payer, the payment and its subscription, and
// registers a referral link when this is a referred payer's first deposit.
func (s *Service) RecordDeposit(ctx context.Context, req DepositRequest) (*Deposit, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount %s: %w", req.Amount, ledger.ErrInvalidAmount)
	}
	if req.Status == "" {
		req.Status = database.PaymentStatusCompleted
	}
	if req.Currency == "" {
		req.Currency = s.policy.Currency
	}
	if req.ReferredByUserID != nil && *req.ReferredByUserID == req.PayerUserID {
		return nil, fmt.Errorf("payer %d cannot refer themselves: %w", req.PayerUserID, ledger.ErrInvalidRequest)
	}

	var out *Deposit
	err := s.store.InTx(ctx, func(tx database.Store) error {
		client := &database.Client{
			UserID:           req.PayerUserID,
			ProfileID:        req.PayerProfileID,
			Name:             req.PayerName,
			ReferredByUserID: req.ReferredByUserID,
		}
		// An existing referral sticks even if the collaborator omits it later.
		if existing, err := tx.GetClient(ctx, req.PayerUserID); err == nil {
			if client.ReferredByUserID == nil {
				client.ReferredByUserID = existing.ReferredByUserID
			}
			if client.Name == "" {
				client.Name = existing.Name
			}
		} else if !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		if err := tx.CreateClient(ctx, client); err != nil {
			return err
		}

		payment := &database.Payment{
			PayerUserID:    req.PayerUserID,
			PayerProfileID: req.PayerProfileID,
			Amount:         ledger.Round(req.Amount),
			Currency:       strings.ToUpper(req.Currency),
			Status:         req.Status,
			Metadata:       req.Metadata,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		paymentID := payment.ID
		sub := &database.Subscription{PaymentID: &paymentID, ProfileID: req.PayerProfileID, StartedAt: s.now()}
		if err := tx.CreateSubscription(ctx, sub); err != nil {
			return err
		}

		link, err := s.registry.RegisterDeposit(ctx, tx, payment)
		if err != nil {
			return err
		}
		out = &Deposit{Payment: payment, Subscription: sub, Referral: link}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record deposit of payer %d: %w", req.PayerUserID, err)
	}

	s.logger.Info("Deposit recorded",
		"payment_id", out.Payment.ID,
		"payer_user_id", out.Payment.PayerUserID,
		"amount", out.Payment.Amount,
		"status", out.Payment.Status,
		"referral_created", out.Referral != nil,
	)
	if s.bus != nil {
		s.bus.PublishDepositRecorded(out.Payment.ID, out.Payment.PayerUserID, out.Payment.Amount, out.Referral != nil)
	}
	return out, nil
}

// ============================================================================
// FUND CREATION
// ============================================================================

// FundRequest asks for a new fund built from completed payments
type FundRequest struct {
	Category    database.FundCategory `json:"category"`
	Name        string                `json:"name" binding:"required"`
	PaymentIDs  []int64               `json:"payment_ids" binding:"required"`
	Description string                `json:"description"`
}

// CreatedFund is the outcome of CreateFund
type CreatedFund struct {
	Fund            *database.Fund              `json:"fund"`
	ClientPositions []*database.EarningPosition `json:"client_positions"`
	CompanyPosition *database.EarningPosition   `json:"company_position"`
	Allocations     []*database.Allocation      `json:"allocations"`
	SkippedPayments []int64                     `json:"skipped_payments,omitempty"`
}

// CreateFund pools the completed payments among paymentIDs into a new open
// fund. Each payment gets a client position, an owner participant and an
// accrued allocation; the configured company profile gets the commission
// position starting at zero.
func (s *Service) CreateFund(ctx context.Context, req FundRequest) (*CreatedFund, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("fund name is required: %w", ledger.ErrInvalidRequest)
	}
	if req.Category == "" {
		req.Category = database.FundCategoryInvestment
	}
	if req.Category != database.FundCategoryInvestment && req.Category != database.FundCategoryCoverage {
		return nil, fmt.Errorf("unknown fund category %q: %w", req.Category, ledger.ErrInvalidRequest)
	}

	start := time.Now()
	var out *CreatedFund
	err := s.store.InTx(ctx, func(tx database.Store) error {
		created, err := s.createFund(ctx, tx, req)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		err = fmt.Errorf("create fund %q: %w", req.Name, err)
		s.logger.WithError(err).Error("Fund creation failed", "name", req.Name, "payments", len(req.PaymentIDs))
		if s.bus != nil {
			s.bus.PublishError("funding", 0, err)
		}
		return nil, err
	}

	s.logger.WithDuration(time.Since(start)).Info("Fund created",
		"fund_id", out.Fund.ID,
		"name", out.Fund.Name,
		"initial_amount", out.Fund.InitialAmount,
		"client_positions", len(out.ClientPositions),
		"skipped_payments", len(out.SkippedPayments),
	)
	if s.bus != nil {
		s.bus.PublishFundCreated(out.Fund.ID, out.Fund.Name, out.Fund.InitialAmount, len(out.ClientPositions)+1)
	}
	return out, nil
}

func (s *Service) createFund(ctx context.Context, tx database.Store, req FundRequest) (*CreatedFund, error) {
	out := &CreatedFund{}
	var payments []*database.Payment
	seen := make(map[int64]bool, len(req.PaymentIDs))
	for _, id := range req.PaymentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := tx.GetPayment(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			out.SkippedPayments = append(out.SkippedPayments, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Status != database.PaymentStatusCompleted {
			out.SkippedPayments = append(out.SkippedPayments, id)
			continue
		}
		// A payment already pooled into a fund, cancelled or not, stays there.
		_, err = tx.GetAllocationByPayment(ctx, id)
		if err == nil {
			out.SkippedPayments = append(out.SkippedPayments, id)
			continue
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return nil, err
		}
		payments = append(payments, p)
	}
	if len(payments) == 0 {
		return nil, ledger.ErrNoPayments
	}

	amounts := make([]decimal.Decimal, len(payments))
	for i, p := range payments {
		amounts[i] = p.Amount
	}
	total := ledger.Sum(amounts...)

	now := s.now()
	fund := &database.Fund{
		Category:      req.Category,
		Name:          req.Name,
		InitialAmount: total,
		CurrentAmount: total,
		Status:        database.FundStatusOpen,
		Metadata: map[string]interface{}{
			"description":   req.Description,
			"payment_count": len(payments),
		},
	}
	if err := tx.CreateFund(ctx, fund); err != nil {
		return nil, err
	}
	if err := tx.InsertFundHistory(ctx, &database.FundHistory{
		FundID:         fund.ID,
		PreviousAmount: decimal.Zero,
		NewAmount:      total,
		Reason:         "fund_created",
		RecordedAt:     now,
		Metadata: map[string]interface{}{
			"event":          "fund_created",
			"initial_amount": total.String(),
			"payment_count":  len(payments),
		},
	}); err != nil {
		return nil, err
	}
	out.Fund = fund

	for _, p := range payments {
		sub, err := s.subscriptionFor(ctx, tx, p, now)
		if err != nil {
			return nil, err
		}
		sharePercent := ledger.SharePercent(p.Amount, total)

		fundID := fund.ID
		position := &database.EarningPosition{
			SubscriptionID: sub.ID,
			FundID:         &fundID,
			Kind:           database.PositionKindClient,
			InitialAmount:  p.Amount,
			CurrentAmount:  p.Amount,
			Metadata:       map[string]interface{}{"share_percent": sharePercent.String()},
		}
		if err := tx.CreatePosition(ctx, position); err != nil {
			return nil, err
		}
		positionID := position.ID
		if err := tx.CreateParticipant(ctx, &database.Participant{
			SubscriptionID:        sub.ID,
			ProfileID:             p.PayerProfileID,
			PositionID:            &positionID,
			Role:                  database.ParticipantRoleOwner,
			SharePercent:          sharePercent,
			FinalInvestmentAmount: p.Amount,
			IsPrimaryOwner:        true,
			StartedAt:             now,
		}); err != nil {
			return nil, err
		}
		if err := tx.InsertEarningHistory(ctx, &database.EarningHistory{
			PositionID:     position.ID,
			PreviousAmount: decimal.Zero,
			NewAmount:      p.Amount,
			Reason:         "initial_allocation",
			RecordedAt:     now,
			Metadata: map[string]interface{}{
				"event":          "fund_creation",
				"fund_id":        fund.ID,
				"share_percent":  sharePercent.String(),
				"initial_amount": p.Amount.String(),
			},
		}); err != nil {
			return nil, err
		}

		allocation := &database.Allocation{
			PaymentID:      p.ID,
			SubscriptionID: sub.ID,
			FundID:         fund.ID,
			PositionID:     position.ID,
			ClientUserID:   p.PayerUserID,
			Amount:         p.Amount,
			Percent:        sharePercent,
			Status:         database.AllocationStatusAccrued,
			Metadata: map[string]interface{}{
				"allocated_at": now.Format(time.RFC3339),
				"fund_name":    fund.Name,
			},
		}
		if err := tx.CreateAllocation(ctx, allocation); err != nil {
			return nil, err
		}
		out.ClientPositions = append(out.ClientPositions, position)
		out.Allocations = append(out.Allocations, allocation)
	}

	company, err := s.createCompanyPosition(ctx, tx, fund, now)
	if err != nil {
		return nil, err
	}
	out.CompanyPosition = company
	return out, nil
}

// subscriptionFor reuses the subscription opened at deposit intake, or opens
// one for payments that arrived without it.
func (s *Service) subscriptionFor(ctx context.Context, tx database.Store, p *database.Payment, now time.Time) (*database.Subscription, error) {
	sub, err := tx.GetSubscriptionByPayment(ctx, p.ID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}
	paymentID := p.ID
	sub = &database.Subscription{PaymentID: &paymentID, ProfileID: p.PayerProfileID, StartedAt: now}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *Service) createCompanyPosition(ctx context.Context, tx database.Store, fund *database.Fund, now time.Time) (*database.EarningPosition, error) {
	commissionPercent := s.policy.CompanyShare.Mul(decimal.NewFromInt(100))

	sub := &database.Subscription{ProfileID: s.policy.CompanyProfileID, StartedAt: now}
	if err := tx.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	fundID := fund.ID
	position := &database.EarningPosition{
		SubscriptionID: sub.ID,
		FundID:         &fundID,
		Kind:           database.PositionKindCompany,
		InitialAmount:  decimal.Zero,
		CurrentAmount:  decimal.Zero,
		Metadata: map[string]interface{}{
			"type":            "company_commission",
			"commission_rate": commissionPercent.String(),
		},
	}
	if err := tx.CreatePosition(ctx, position); err != nil {
		return nil, err
	}
	positionID := position.ID
	if err := tx.CreateParticipant(ctx, &database.Participant{
		SubscriptionID:        sub.ID,
		ProfileID:             s.policy.CompanyProfileID,
		PositionID:            &positionID,
		Role:                  database.ParticipantRoleAdvisor,
		SharePercent:          commissionPercent,
		FinalInvestmentAmount: decimal.Zero,
		StartedAt:             now,
	}); err != nil {
		return nil, err
	}
	if err := tx.InsertEarningHistory(ctx, &database.EarningHistory{
		PositionID:     position.ID,
		PreviousAmount: decimal.Zero,
		NewAmount:      decimal.Zero,
		Reason:         "company_commission_setup",
		RecordedAt:     now,
		Metadata: map[string]interface{}{
			"event":           "company_commission_setup",
			"fund_id":         fund.ID,
			"commission_rate": commissionPercent.String(),
		},
	}); err != nil {
		return nil, err
	}
	return position, nil
}

// ============================================================================
// ALLOCATIONS
// ============================================================================

// TransitionAllocation moves an allocation along its payout lifecycle
func (s *Service) TransitionAllocation(ctx context.Context, allocationID int64, next database.AllocationStatus) (*database.Allocation, error) {
	if !database.ValidAllocationStatus(next) {
		return nil, fmt.Errorf("unknown allocation status %q: %w", next, ledger.ErrInvalidTransition)
	}

	var (
		updated  *database.Allocation
		previous database.AllocationStatus
	)
	err := s.store.InTx(ctx, func(tx database.Store) error {
		a, err := tx.GetAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		fund, err := tx.LockFund(ctx, a.FundID)
		if err != nil {
			return err
		}
		if fund.Status == database.FundStatusClosed {
			return ledger.NewFundStateError(fund.ID, string(fund.Status), "transition allocation")
		}
		if !a.Status.CanTransitionTo(next) {
			return fmt.Errorf("allocation %d %s -> %s: %w", a.ID, a.Status, next, ledger.ErrInvalidTransition)
		}
		if err := tx.UpdateAllocationStatus(ctx, a.ID, next); err != nil {
			return err
		}
		previous = a.Status
		a.Status = next
		updated = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("transition allocation %d: %w", allocationID, err)
	}

	s.logger.Info("Allocation status changed",
		"allocation_id", updated.ID,
		"fund_id", updated.FundID,
		"from", previous,
		"to", next,
	)
	if s.bus != nil {
		s.bus.PublishAllocationTransition(updated.ID, updated.FundID, string(previous), string(next))
	}
	return updated, nil
}
