// Package valuation re-prices a fund and propagates the change to every
// position. Profit is measured from the fund's original basis; the company
// keeps a cumulative cut of profit and never absorbs losses.
package valuation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fund-ledger/internal/database"
	"fund-ledger/internal/events"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/logging"
	"fund-ledger/internal/positions"

	"github.com/shopspring/decimal"
)

// DefaultReason is recorded when the operator gives none
const DefaultReason = "rebalance"

// Engine runs fund revaluations
type Engine struct {
	store  database.Transactor
	policy ledger.Policy
	bus    events.Publisher
	now    func() time.Time
}

// NewEngine creates a valuation engine. bus may be nil.
func NewEngine(store database.Transactor, policy ledger.Policy, bus events.Publisher) *Engine {
	return &Engine{
		store:  store,
		policy: policy,
		bus:    bus,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the timestamp source
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// PositionUpdate is the outcome for one client position
type PositionUpdate struct {
	PositionID     int64           `json:"position_id"`
	InitialAmount  decimal.Decimal `json:"initial_amount"`
	PreviousAmount decimal.Decimal `json:"previous_amount"`
	NewAmount      decimal.Decimal `json:"new_amount"`
	Share          decimal.Decimal `json:"share"`
}

// Result summarizes a committed revaluation
type Result struct {
	Fund              *database.Fund        `json:"fund"`
	History           *database.FundHistory `json:"history"`
	TotalProfit       decimal.Decimal       `json:"total_profit"`
	CompanyProfit     decimal.Decimal       `json:"company_profit"`
	ClientsProfit     decimal.Decimal       `json:"clients_profit"`
	Clients           []PositionUpdate      `json:"clients"`
	CompanyPrevious   decimal.Decimal       `json:"company_previous"`
	CompanyAmount     decimal.Decimal       `json:"company_amount"`
	CompanyUpdated    bool                  `json:"company_updated"`
	CohortSkipped     bool                  `json:"cohort_skipped"`
	CompanyPositionID int64                 `json:"company_position_id,omitempty"`
}

// RevalueFund sets the fund's value to newAmount and redistributes the gain
// or loss over its positions in one transaction.
func (e *Engine) RevalueFund(ctx context.Context, fundID int64, newAmount decimal.Decimal, reason string) (*Result, error) {
	start := time.Now()
	logger := logging.FundContext(ctx, fundID)

	if newAmount.IsNegative() {
		return nil, fmt.Errorf("new fund value %s: %w", newAmount, ledger.ErrInvalidAmount)
	}
	if reason == "" {
		reason = DefaultReason
	}
	newAmount = ledger.Round(newAmount)

	logger.Info("Starting fund revaluation", "new_amount", newAmount, "reason", reason)

	var result *Result
	err := e.store.InTx(ctx, func(tx database.Store) error {
		r, err := e.revalue(ctx, tx, logger, fundID, newAmount, reason)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		err = fmt.Errorf("revalue fund %d: %w", fundID, err)
		logger.WithError(err).WithDuration(time.Since(start)).Error("Fund revaluation failed")
		if e.bus != nil {
			e.bus.PublishError("valuation", fundID, err)
		}
		return nil, err
	}

	logger.WithDuration(time.Since(start)).Info("Fund revaluation committed",
		"previous_amount", result.History.PreviousAmount,
		"new_amount", newAmount,
		"total_profit", result.TotalProfit,
		"company_profit", result.CompanyProfit,
		"clients_profit", result.ClientsProfit,
		"client_positions", len(result.Clients),
	)

	if e.bus != nil {
		e.bus.PublishFundRevalued(fundID, result.History.PreviousAmount, newAmount, result.History.FluctuationPercent, reason)
	}
	return result, nil
}

func (e *Engine) revalue(ctx context.Context, tx database.Store, logger *logging.Logger, fundID int64, newAmount decimal.Decimal, reason string) (*Result, error) {
	fund, err := tx.LockFund(ctx, fundID)
	if err != nil {
		return nil, err
	}
	if !fund.IsOpen() {
		return nil, ledger.NewFundStateError(fund.ID, string(fund.Status), "revalue")
	}

	now := e.now()
	previous := fund.CurrentAmount

	split := Split(fund.InitialAmount, newAmount, e.policy.CompanyShare)
	fluctuation := ledger.FluctuationPercent(previous, newAmount)

	result := &Result{
		TotalProfit:   split.TotalProfit,
		CompanyProfit: split.CompanyProfit,
		ClientsProfit: split.ClientsProfit,
	}

	if err := tx.UpdateFundValuation(ctx, fund, newAmount); err != nil {
		return nil, err
	}
	history := &database.FundHistory{
		FundID:             fund.ID,
		PreviousAmount:     previous,
		NewAmount:          newAmount,
		FluctuationPercent: fluctuation,
		Reason:             reason,
		RecordedAt:         now,
		Metadata: map[string]interface{}{
			"event":              "value_update",
			"fluctuation":        newAmount.Sub(previous).String(),
			"total_profit":       split.TotalProfit.String(),
			"company_profit":     split.CompanyProfit.String(),
			"clients_profit":     split.ClientsProfit.String(),
			"has_profit":         split.HasProfit,
			"company_profile_id": e.policy.CompanyProfileID,
		},
	}
	if err := tx.InsertFundHistory(ctx, history); err != nil {
		return nil, err
	}
	result.Fund = fund
	result.History = history

	list, err := tx.ListPositionsByFund(ctx, fund.ID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		logger.Warn("Fund has no earning positions, only the fund history was recorded")
		return result, nil
	}
	cohort, err := positions.Classify(list)
	if err != nil {
		return nil, err
	}

	distribution := e.policy.ClientShare().Shift(2).String() + "% of profit"
	if !split.HasProfit {
		distribution = "100% of loss"
	}

	basis := cohort.ClientBasis()
	if basis.IsZero() {
		result.CohortSkipped = true
		if !split.ClientsProfit.IsZero() {
			logger.WithError(ledger.ErrInconsistentCohort).Warn("Skipping client redistribution",
				"clients_profit", split.ClientsProfit)
		}
	}

	for _, client := range cohort.Clients {
		share := positions.ProportionalShare(client, basis)
		clientShare := split.ClientsProfit.Mul(share)
		target := client.InitialAmount.Add(clientShare)
		prev := client.CurrentAmount

		_, err := positions.SetAmount(ctx, tx, client.EarningPosition, target, positions.Change{
			Reason:     reason,
			RecordedAt: now,
			Metadata: map[string]interface{}{
				"event":                    "fund_value_update",
				"share":                    share.String(),
				"fund_fluctuation_percent": fluctuation.String(),
				"client_share":             ledger.Round(clientShare).String(),
				"roi_total":                ledger.FluctuationPercent(client.InitialAmount, target).String(),
				"distribution_type":        distribution,
			},
		})
		if err != nil {
			return nil, err
		}
		result.Clients = append(result.Clients, PositionUpdate{
			PositionID:     client.ID,
			InitialAmount:  client.InitialAmount,
			PreviousAmount: prev,
			NewAmount:      client.CurrentAmount,
			Share:          share,
		})
	}

	if cohort.Company == nil {
		logger.Warn("Fund has no company position, commission not recorded", "company_profit", split.CompanyProfit)
		return result, nil
	}
	company := cohort.Company
	result.CompanyPositionID = company.ID
	result.CompanyPrevious = company.CurrentAmount
	result.CompanyAmount = company.CurrentAmount

	// Losses leave the cumulative commission untouched.
	if !split.HasProfit {
		return result, nil
	}

	prev := company.CurrentAmount
	_, err = positions.SetAmount(ctx, tx, company.EarningPosition, split.CompanyProfit, positions.Change{
		Reason:     reason,
		RecordedAt: now,
		Metadata: map[string]interface{}{
			"event":                    "company_commission_update",
			"fund_fluctuation_percent": fluctuation.String(),
			"total_fund_profit":        split.TotalProfit.String(),
			"company_share":            e.policy.CompanyShare.String(),
			"commission_earned":        ledger.Round(split.CompanyProfit.Sub(prev)).String(),
		},
	})
	if err != nil {
		return nil, err
	}
	result.CompanyAmount = company.CurrentAmount
	result.CompanyUpdated = true
	return result, nil
}

// ProfitSplit is the company/clients division of a fund's gain since inception
type ProfitSplit struct {
	TotalProfit   decimal.Decimal
	CompanyProfit decimal.Decimal
	ClientsProfit decimal.Decimal
	HasProfit     bool
}

// Split divides newAmount - initial between company and clients. Losses go
// entirely to clients.
func Split(initial, newAmount, companyShare decimal.Decimal) ProfitSplit {
	total := newAmount.Sub(initial)
	if !total.IsPositive() {
		return ProfitSplit{TotalProfit: total, CompanyProfit: decimal.Zero, ClientsProfit: total}
	}
	company := ledger.Round(total.Mul(companyShare))
	return ProfitSplit{
		TotalProfit:   total,
		CompanyProfit: company,
		ClientsProfit: total.Sub(company),
		HasProfit:     true,
	}
}

// IsConflict reports whether err is a lock or version conflict the caller may retry
func IsConflict(err error) bool {
	return errors.Is(err, ledger.ErrConcurrentModification)
}
