package referral

import (
	"context"
	"errors"
	"fmt"

	"fund-ledger/internal/database"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/logging"

	"github.com/shopspring/decimal"
)

// Store is the part of the ledger the registry reads and writes
type Store interface {
	GetClient(ctx context.Context, userID int64) (*database.Client, error)
	CountCompletedPayments(ctx context.Context, payerUserID int64) (int, error)
	FindFirstDepositReferral(ctx context.Context, referredUserID int64) (*database.ReferralLink, error)
	CreateReferralLink(ctx context.Context, l *database.ReferralLink) error
	ListReferralsByReferrer(ctx context.Context, referrerUserID int64) ([]*database.ReferralLink, error)
}

// Registry records referral links for referred clients
type Registry struct {
	commissionPercent decimal.Decimal
	logger            *logging.Logger
}

// NewRegistry creates a registry that stamps commissionPercent on new links
func NewRegistry(commissionPercent decimal.Decimal) *Registry {
	return &Registry{
		commissionPercent: commissionPercent,
		logger:            logging.WithComponent("referral"),
	}
}

// RegisterDeposit creates the first-deposit link when the payment is the
// payer's first completed one and the payer was referred. It returns nil
// when no link applies. payment must already be stored.
func (r *Registry) RegisterDeposit(ctx context.Context, s Store, payment *database.Payment) (*database.ReferralLink, error) {
	if payment.Status != database.PaymentStatusCompleted {
		return nil, nil
	}

	client, err := s.GetClient(ctx, payment.PayerUserID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve payer %d: %w", payment.PayerUserID, err)
	}
	if client.ReferredByUserID == nil {
		return nil, nil
	}

	completed, err := s.CountCompletedPayments(ctx, payment.PayerUserID)
	if err != nil {
		return nil, err
	}
	if completed != 1 {
		return nil, nil
	}

	if _, err := s.FindFirstDepositReferral(ctx, client.UserID); err == nil {
		return nil, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	paymentID := payment.ID
	link := &database.ReferralLink{
		ReferrerUserID:       *client.ReferredByUserID,
		ReferredUserID:       client.UserID,
		FirstPaymentID:       &paymentID,
		DepositAmount:        payment.Amount,
		IsFirstDeposit:       true,
		CommissionPercentage: r.commissionPercent,
		CommissionAmount:     decimal.Zero,
		Status:               database.ReferralStatusPending,
	}
	if err := s.CreateReferralLink(ctx, link); err != nil {
		return nil, err
	}

	r.logger.Info("Referral link registered for first deposit",
		"referrer_user_id", link.ReferrerUserID,
		"referred_user_id", link.ReferredUserID,
		"payment_id", payment.ID,
		"deposit_amount", payment.Amount,
	)
	return link, nil
}

// ReferrerCommissions is the commission total of one referrer
type ReferrerCommissions struct {
	ReferrerUserID int64           `json:"referrer_user_id"`
	Referrals      int             `json:"referrals"`
	Paid           int             `json:"paid"`
	Pending        int             `json:"pending"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
}

// TotalCommissions sums the commissions taken for a referrer
func TotalCommissions(ctx context.Context, s Store, referrerUserID int64) (*ReferrerCommissions, error) {
	links, err := s.ListReferralsByReferrer(ctx, referrerUserID)
	if err != nil {
		return nil, err
	}
	out := &ReferrerCommissions{ReferrerUserID: referrerUserID, TotalPaid: decimal.Zero}
	for _, l := range links {
		out.Referrals++
		if l.Status == database.ReferralStatusPaid {
			out.Paid++
			out.TotalPaid = out.TotalPaid.Add(l.CommissionAmount)
		} else {
			out.Pending++
		}
	}
	return out, nil
}
