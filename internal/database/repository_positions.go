package database

import (
	"context"
	"fmt"

	"fund-ledger/internal/ledger"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ============================================================================
// EARNING POSITIONS
// ============================================================================

const positionColumns = `id, subscription_id, fund_id, kind, initial_amount, current_amount, metadata, created_at, updated_at`

func scanPosition(row pgx.Row) (*EarningPosition, error) {
	p := &EarningPosition{}
	err := row.Scan(
		&p.ID, &p.SubscriptionID, &p.FundID, &p.Kind, &p.InitialAmount, &p.CurrentAmount,
		&p.Metadata, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// CreatePosition inserts an earning position
func (r *Repository) CreatePosition(ctx context.Context, p *EarningPosition) error {
	query := `
		INSERT INTO earning_positions (subscription_id, fund_id, kind, initial_amount, current_amount, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := r.q.QueryRow(
		ctx, query,
		p.SubscriptionID, p.FundID, p.Kind, p.InitialAmount, p.CurrentAmount, metadataOrEmpty(p.Metadata),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s position: %w", p.Kind, mapError(err))
	}
	return nil
}

// GetPosition retrieves a position by ID
func (r *Repository) GetPosition(ctx context.Context, id int64) (*EarningPosition, error) {
	p, err := scanPosition(r.q.QueryRow(ctx, `SELECT `+positionColumns+` FROM earning_positions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("position %d: %w", id, err)
	}
	return p, nil
}

// ListPositionsByFund returns every position of a fund in creation order
func (r *Repository) ListPositionsByFund(ctx context.Context, fundID int64) ([]*EarningPosition, error) {
	rows, err := r.q.Query(ctx, `SELECT `+positionColumns+` FROM earning_positions WHERE fund_id = $1 ORDER BY id`, fundID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var positions []*EarningPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, mapError(rows.Err())
}

// UpdatePositionAmount sets a position's live value unless its fund is closed
func (r *Repository) UpdatePositionAmount(ctx context.Context, positionID int64, amount decimal.Decimal) error {
	query := `
		UPDATE earning_positions p
		SET current_amount = $2, updated_at = NOW()
		WHERE p.id = $1
		  AND NOT EXISTS (SELECT 1 FROM funds f WHERE f.id = p.fund_id AND f.status = 'closed')
	`
	tag, err := r.q.Exec(ctx, query, positionID, amount)
	if err != nil {
		return fmt.Errorf("update position %d: %w", positionID, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetPosition(ctx, positionID); err != nil {
			return err
		}
		return fmt.Errorf("position %d belongs to a closed fund: %w", positionID, ledger.ErrInvalidState)
	}
	return nil
}

// ============================================================================
// EARNING HISTORY
// ============================================================================

// InsertEarningHistory appends a position value change
func (r *Repository) InsertEarningHistory(ctx context.Context, h *EarningHistory) error {
	query := `
		INSERT INTO earning_history (position_id, previous_amount, new_amount, fluctuation_percent, reason, recorded_at, metadata)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()), $7)
		RETURNING id, recorded_at
	`
	err := r.q.QueryRow(
		ctx, query,
		h.PositionID, h.PreviousAmount, h.NewAmount, h.FluctuationPercent, h.Reason, nullTime(h.RecordedAt), metadataOrEmpty(h.Metadata),
	).Scan(&h.ID, &h.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert position %d history: %w", h.PositionID, mapError(err))
	}
	return nil
}

// ListEarningHistory returns the value changes of a position in recording order
func (r *Repository) ListEarningHistory(ctx context.Context, positionID int64) ([]*EarningHistory, error) {
	query := `
		SELECT id, position_id, previous_amount, new_amount, fluctuation_percent, reason, recorded_at, metadata
		FROM earning_history
		WHERE position_id = $1
		ORDER BY recorded_at, id
	`
	rows, err := r.q.Query(ctx, query, positionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var history []*EarningHistory
	for rows.Next() {
		h := &EarningHistory{}
		if err := rows.Scan(
			&h.ID, &h.PositionID, &h.PreviousAmount, &h.NewAmount, &h.FluctuationPercent,
			&h.Reason, &h.RecordedAt, &h.Metadata,
		); err != nil {
			return nil, mapError(err)
		}
		history = append(history, h)
	}
	return history, mapError(rows.Err())
}

// ============================================================================
// PARTICIPANTS
// ============================================================================

// CreateParticipant links a profile to a position
func (r *Repository) CreateParticipant(ctx context.Context, p *Participant) error {
	query := `
		INSERT INTO participants (subscription_id, profile_id, position_id, role, share_percent,
		                          final_investment_amount, is_primary_owner, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
		RETURNING id, started_at
	`
	err := r.q.QueryRow(
		ctx, query,
		p.SubscriptionID, p.ProfileID, p.PositionID, p.Role, p.SharePercent,
		p.FinalInvestmentAmount, p.IsPrimaryOwner, nullTime(p.StartedAt),
	).Scan(&p.ID, &p.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", mapError(err))
	}
	return nil
}

// ListParticipantsByPosition returns the participants of a position
func (r *Repository) ListParticipantsByPosition(ctx context.Context, positionID int64) ([]*Participant, error) {
	query := `
		SELECT id, subscription_id, profile_id, position_id, role, share_percent,
		       final_investment_amount, is_primary_owner, started_at
		FROM participants
		WHERE position_id = $1
		ORDER BY id
	`
	rows, err := r.q.Query(ctx, query, positionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var participants []*Participant
	for rows.Next() {
		p := &Participant{}
		if err := rows.Scan(
			&p.ID, &p.SubscriptionID, &p.ProfileID, &p.PositionID, &p.Role, &p.SharePercent,
			&p.FinalInvestmentAmount, &p.IsPrimaryOwner, &p.StartedAt,
		); err != nil {
			return nil, mapError(err)
		}
		participants = append(participants, p)
	}
	return participants, mapError(rows.Err())
}

// SyncParticipantAmounts mirrors a position's value onto its participants
func (r *Repository) SyncParticipantAmounts(ctx context.Context, positionID int64, amount decimal.Decimal) error {
	_, err := r.q.Exec(ctx, `UPDATE participants SET final_investment_amount = $2 WHERE position_id = $1`, positionID, amount)
	if err != nil {
		return fmt.Errorf("sync participants of position %d: %w", positionID, mapError(err))
	}
	return nil
}
