// Package positions keeps each client's and the company's stake inside a fund.
// Positions are tagged variants: a ClientPosition always carries a positive
// contribution basis and a CompanyPosition carries none.
package positions

import (
	"context"
	"fmt"
	"time"

	"fund-ledger/internal/database"
	"fund-ledger/internal/ledger"

	"github.com/shopspring/decimal"
)

// Writer is the part of the ledger store position accounting writes through
type Writer interface {
	UpdatePositionAmount(ctx context.Context, positionID int64, amount decimal.Decimal) error
	InsertEarningHistory(ctx context.Context, h *database.EarningHistory) error
	SyncParticipantAmounts(ctx context.Context, positionID int64, amount decimal.Decimal) error
}

// ClientPosition is a client's stake; its basis is the deposit it came from
type ClientPosition struct {
	*database.EarningPosition
}

// CompanyPosition accumulates the company commission of a fund
type CompanyPosition struct {
	*database.EarningPosition
}

// NewClientPosition checks the client invariants on a stored position
func NewClientPosition(p *database.EarningPosition) (ClientPosition, error) {
	if p.Kind != database.PositionKindClient || !p.InitialAmount.IsPositive() {
		return ClientPosition{}, fmt.Errorf("position %d (%s, basis %s) is not a client stake: %w",
			p.ID, p.Kind, p.InitialAmount, ledger.ErrInvalidPosition)
	}
	return ClientPosition{p}, nil
}

// NewCompanyPosition checks the company invariants on a stored position
func NewCompanyPosition(p *database.EarningPosition) (CompanyPosition, error) {
	if p.Kind != database.PositionKindCompany || !p.InitialAmount.IsZero() {
		return CompanyPosition{}, fmt.Errorf("position %d (%s, basis %s) is not the company stake: %w",
			p.ID, p.Kind, p.InitialAmount, ledger.ErrInvalidPosition)
	}
	return CompanyPosition{p}, nil
}

// Cohort is the positions of one fund split by variant
type Cohort struct {
	Clients []ClientPosition
	Company *CompanyPosition
}

// Classify splits a fund's positions into the client cohort and the company position.
// A row whose kind and basis disagree, or a second company row, is an error.
func Classify(list []*database.EarningPosition) (Cohort, error) {
	var cohort Cohort
	for _, p := range list {
		switch p.Kind {
		case database.PositionKindClient:
			cp, err := NewClientPosition(p)
			if err != nil {
				return Cohort{}, err
			}
			cohort.Clients = append(cohort.Clients, cp)
		case database.PositionKindCompany:
			cp, err := NewCompanyPosition(p)
			if err != nil {
				return Cohort{}, err
			}
			if cohort.Company != nil {
				return Cohort{}, fmt.Errorf("positions %d and %d both claim the company stake: %w",
					cohort.Company.ID, p.ID, ledger.ErrInvalidPosition)
			}
			cohort.Company = &cp
		default:
			return Cohort{}, fmt.Errorf("position %d has unknown kind %q: %w", p.ID, p.Kind, ledger.ErrInvalidPosition)
		}
	}
	return cohort, nil
}

// ClientBasis is the sum of the client contribution bases
func (c Cohort) ClientBasis() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c.Clients {
		total = total.Add(p.InitialAmount)
	}
	return total
}

// ClientValue is the sum of the client live values
func (c Cohort) ClientValue() decimal.Decimal {
	total := decimal.Zero
	for _, p := range c.Clients {
		total = total.Add(p.CurrentAmount)
	}
	return total
}

// ProportionalShare is the client's fraction of the cohort basis, 0 for an empty cohort
func ProportionalShare(p ClientPosition, cohortTotal decimal.Decimal) decimal.Decimal {
	return ledger.Share(p.InitialAmount, cohortTotal)
}

// Change describes one write to a position
type Change struct {
	Reason     string
	Metadata   map[string]interface{}
	RecordedAt time.Time
}

// SetAmount sets the position's live value, appends one earning history row
// and mirrors the value onto the position's participants. It must run inside
// the caller's transaction.
func SetAmount(ctx context.Context, w Writer, p *database.EarningPosition, amount decimal.Decimal, change Change) (*database.EarningHistory, error) {
	amount = ledger.Round(amount)
	previous := p.CurrentAmount

	if err := w.UpdatePositionAmount(ctx, p.ID, amount); err != nil {
		return nil, fmt.Errorf("set position %d: %w", p.ID, err)
	}

	h := &database.EarningHistory{
		PositionID:         p.ID,
		PreviousAmount:     previous,
		NewAmount:          amount,
		FluctuationPercent: ledger.FluctuationPercent(previous, amount),
		Reason:             change.Reason,
		RecordedAt:         change.RecordedAt,
		Metadata:           change.Metadata,
	}
	if err := w.InsertEarningHistory(ctx, h); err != nil {
		return nil, fmt.Errorf("record position %d history: %w", p.ID, err)
	}

	if err := w.SyncParticipantAmounts(ctx, p.ID, amount); err != nil {
		return nil, fmt.Errorf("sync position %d participants: %w", p.ID, err)
	}

	p.CurrentAmount = amount
	return h, nil
}

// ApplyDelta adds delta to the position's live value through SetAmount
func ApplyDelta(ctx context.Context, w Writer, p *database.EarningPosition, delta decimal.Decimal, change Change) (*database.EarningHistory, error) {
	return SetAmount(ctx, w, p, p.CurrentAmount.Add(delta), change)
}
