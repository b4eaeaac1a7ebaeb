// Package referral decides which deposits carry a referral commission and
// registers referral links when referred clients make their first payment.
package referral

import (
	"context"
	"errors"
	"fmt"

	"fund-ledger/internal/database"
	"fund-ledger/internal/ledger"
)

// Reader is the part of the store attribution reads
type Reader interface {
	GetClient(ctx context.Context, userID int64) (*database.Client, error)
	EarliestAllocation(ctx context.Context, fundID, clientUserID int64) (*database.Allocation, error)
	FindFirstDepositReferral(ctx context.Context, referredUserID int64) (*database.ReferralLink, error)
}

// Reasons an allocation is not commission eligible
const (
	ReasonEligible       = "first_referred_deposit"
	ReasonUnknownClient  = "unknown_client"
	ReasonNotReferred    = "not_referred"
	ReasonNotFirstInFund = "not_first_in_fund"
	ReasonNoFirstDeposit = "no_first_deposit_link"
	ReasonOtherPayment   = "first_deposit_was_another_payment"
	ReasonAlreadyPaid    = "commission_already_paid"
)

// Attribution is the referral verdict for one allocation
type Attribution struct {
	Eligible       bool
	Reason         string
	ReferrerUserID *int64
	Link           *database.ReferralLink
}

// IsEligibleFirstReferredDeposit reports whether the allocation is the
// client's earliest in the fund, the client was referred, and the client's
// first-deposit link still waits for this very payment.
func IsEligibleFirstReferredDeposit(ctx context.Context, r Reader, fundID int64, a *database.Allocation) (Attribution, error) {
	client, err := r.GetClient(ctx, a.ClientUserID)
	if errors.Is(err, ledger.ErrNotFound) {
		return Attribution{Reason: ReasonUnknownClient}, nil
	}
	if err != nil {
		return Attribution{}, fmt.Errorf("resolve client of allocation %d: %w", a.ID, err)
	}
	if client.ReferredByUserID == nil {
		return Attribution{Reason: ReasonNotReferred}, nil
	}
	verdict := Attribution{ReferrerUserID: client.ReferredByUserID}

	earliest, err := r.EarliestAllocation(ctx, fundID, client.UserID)
	if err != nil {
		return Attribution{}, fmt.Errorf("earliest allocation of client %d: %w", client.UserID, err)
	}
	if earliest.ID != a.ID {
		verdict.Reason = ReasonNotFirstInFund
		return verdict, nil
	}

	link, err := r.FindFirstDepositReferral(ctx, client.UserID)
	if errors.Is(err, ledger.ErrNotFound) {
		verdict.Reason = ReasonNoFirstDeposit
		return verdict, nil
	}
	if err != nil {
		return Attribution{}, fmt.Errorf("first deposit referral of client %d: %w", client.UserID, err)
	}
	if link.FirstPaymentID != nil && *link.FirstPaymentID != a.PaymentID {
		verdict.Reason = ReasonOtherPayment
		return verdict, nil
	}
	if link.Status == database.ReferralStatusPaid {
		verdict.Reason = ReasonAlreadyPaid
		return verdict, nil
	}

	referrer := link.ReferrerUserID
	return Attribution{
		Eligible:       true,
		Reason:         ReasonEligible,
		ReferrerUserID: &referrer,
		Link:           link,
	}, nil
}
