package database

import (
	"context"
	"errors"
	"fmt"

	"fund-ledger/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ============================================================================
// FUNDS
// ============================================================================

const fundColumns = `id, category, name, initial_amount, current_amount, status, version, metadata, created_at, updated_at`

func scanFund(row pgx.Row) (*Fund, error) {
	f := &Fund{}
	err := row.Scan(
		&f.ID, &f.Category, &f.Name, &f.InitialAmount, &f.CurrentAmount,
		&f.Status, &f.Version, &f.Metadata, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return f, nil
}

// CreateFund inserts a new fund
func (r *Repository) CreateFund(ctx context.Context, fund *Fund) error {
	if fund.Status == "" {
		fund.Status = FundStatusOpen
	}
	query := `
		INSERT INTO funds (category, name, initial_amount, current_amount, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, version, created_at, updated_at
	`
	err := r.q.QueryRow(
		ctx, query,
		fund.Category, fund.Name, fund.InitialAmount, fund.CurrentAmount, fund.Status, metadataOrEmpty(fund.Metadata),
	).Scan(&fund.ID, &fund.Version, &fund.CreatedAt, &fund.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create fund %q: %w", fund.Name, mapError(err))
	}
	return nil
}

// GetFund retrieves a fund by ID
func (r *Repository) GetFund(ctx context.Context, id int64) (*Fund, error) {
	f, err := scanFund(r.q.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("fund %d: %w", id, err)
	}
	return f, nil
}

// LockFund retrieves a fund and locks its row for the rest of the transaction.
// NOWAIT turns a competing lock into lock_not_available instead of blocking.
func (r *Repository) LockFund(ctx context.Context, id int64) (*Fund, error) {
	if r.tx == nil {
		return nil, fmt.Errorf("LockFund requires a transaction")
	}
	f, err := scanFund(r.q.QueryRow(ctx, `SELECT `+fundColumns+` FROM funds WHERE id = $1 FOR UPDATE NOWAIT`, id))
	if err != nil {
		return nil, fmt.Errorf("lock fund %d: %w", id, err)
	}
	return f, nil
}

// ListFunds returns all funds, newest first
func (r *Repository) ListFunds(ctx context.Context) ([]*Fund, error) {
	rows, err := r.q.Query(ctx, `SELECT `+fundColumns+` FROM funds ORDER BY id DESC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var funds []*Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, err
		}
		funds = append(funds, f)
	}
	return funds, mapError(rows.Err())
}

// UpdateFundValuation sets the fund's mark-to-market value under a version check
func (r *Repository) UpdateFundValuation(ctx context.Context, fund *Fund, newAmount decimal.Decimal) error {
	query := `
		UPDATE funds
		SET current_amount = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2 AND status = 'open'
		RETURNING version, updated_at
	`
	err := r.q.QueryRow(ctx, query, fund.ID, fund.Version, newAmount).Scan(&fund.Version, &fund.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update fund %d valuation: %w", fund.ID, versionConflict(err))
	}
	fund.CurrentAmount = newAmount
	return nil
}

// UpdateFundStatus moves the fund to a new status under a version check
func (r *Repository) UpdateFundStatus(ctx context.Context, fund *Fund, status FundStatus) error {
	query := `
		UPDATE funds
		SET status = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, updated_at
	`
	err := r.q.QueryRow(ctx, query, fund.ID, fund.Version, status).Scan(&fund.Version, &fund.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update fund %d status: %w", fund.ID, versionConflict(err))
	}
	fund.Status = status
	return nil
}

// versionConflict reports a version-checked update that matched no row
func versionConflict(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrConcurrentModification
	}
	return mapError(err)
}

// ============================================================================
// FUND HISTORY
// ============================================================================

// InsertFundHistory appends a valuation event
func (r *Repository) InsertFundHistory(ctx context.Context, h *FundHistory) error {
	query := `
		INSERT INTO fund_history (fund_id, previous_amount, new_amount, fluctuation_percent, reason, recorded_at, metadata)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7)
		RETURNING id, recorded_at
	`
	err := r.q.QueryRow(
		ctx, query,
		h.FundID, h.PreviousAmount, h.NewAmount, h.FluctuationPercent, h.Reason, nullTime(h.RecordedAt), metadataOrEmpty(h.Metadata),
	).Scan(&h.ID, &h.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert fund %d history: %w", h.FundID, mapError(err))
	}
	return nil
}

// ListFundHistory returns the valuation events of a fund in recording order
func (r *Repository) ListFundHistory(ctx context.Context, fundID int64) ([]*FundHistory, error) {
	query := `
		SELECT id, fund_id, previous_amount, new_amount, fluctuation_percent, reason, recorded_at, metadata
		FROM fund_history
		WHERE fund_id = $1
		ORDER BY recorded_at, id
	`
	rows, err := r.q.Query(ctx, query, fundID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var history []*FundHistory
	for rows.Next() {
		h := &FundHistory{}
		if err := rows.Scan(
			&h.ID, &h.FundID, &h.PreviousAmount, &h.NewAmount, &h.FluctuationPercent,
			&h.Reason, &h.RecordedAt, &h.Metadata,
		); err != nil {
			return nil, mapError(err)
		}
		history = append(history, h)
	}
	return history, mapError(rows.Err())
}
