package database

import (
	"context"
	"fmt"

	"fund-ledger/internal/ledger"

	"github.com/jackc/pgx/v5"
)

// ============================================================================
// CLIENTS
// ============================================================================

// CreateClient upserts the client read model
func (r *Repository) CreateClient(ctx context.Context, c *Client) error {
	query := `
		INSERT INTO clients (user_id, profile_id, name, referred_by_user_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET profile_id = EXCLUDED.profile_id, name = EXCLUDED.name, referred_by_user_id = EXCLUDED.referred_by_user_id
		RETURNING created_at
	`
	err := r.q.QueryRow(ctx, query, c.UserID, c.ProfileID, c.Name, c.ReferredByUserID).Scan(&c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save client %d: %w", c.UserID, mapError(err))
	}
	return nil
}

// GetClient retrieves a client by user ID
func (r *Repository) GetClient(ctx context.Context, userID int64) (*Client, error) {
	c := &Client{}
	err := r.q.QueryRow(ctx, `
		SELECT user_id, profile_id, name, referred_by_user_id, created_at
		FROM clients WHERE user_id = $1
	`, userID).Scan(&c.UserID, &c.ProfileID, &c.Name, &c.ReferredByUserID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("client %d: %w", userID, mapError(err))
	}
	return c, nil
}

// ============================================================================
// PAYMENTS & SUBSCRIPTIONS
// ============================================================================

// CreatePayment stores a payment reported by the payment collaborator
func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	if p.Currency == "" {
		p.Currency = "USD"
	}
	query := `
		INSERT INTO payments (payer_user_id, payer_profile_id, amount, currency, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(
		ctx, query,
		p.PayerUserID, p.PayerProfileID, p.Amount, p.Currency, p.Status, metadataOrEmpty(p.Metadata),
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", mapError(err))
	}
	return nil
}

// GetPayment retrieves a payment by ID
func (r *Repository) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	p := &Payment{}
	err := r.q.QueryRow(ctx, `
		SELECT id, payer_user_id, payer_profile_id, amount, currency, status, metadata, created_at
		FROM payments WHERE id = $1
	`, id).Scan(&p.ID, &p.PayerUserID, &p.PayerProfileID, &p.Amount, &p.Currency, &p.Status, &p.Metadata, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("payment %d: %w", id, mapError(err))
	}
	return p, nil
}

// CountCompletedPayments counts the completed payments of a payer
func (r *Repository) CountCompletedPayments(ctx context.Context, payerUserID int64) (int, error) {
	var count int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE payer_user_id = $1 AND status = $2`,
		payerUserID, PaymentStatusCompleted,
	).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

// CreateSubscription inserts a subscription
func (r *Repository) CreateSubscription(ctx context.Context, s *Subscription) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO subscriptions (payment_id, profile_id, started_at)
		VALUES ($1, $2, COALESCE($3, NOW()))
		RETURNING id, started_at
	`, s.PaymentID, s.ProfileID, nullTime(s.StartedAt)).Scan(&s.ID, &s.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", mapError(err))
	}
	return nil
}

// GetSubscriptionByPayment retrieves the subscription opened for a payment
func (r *Repository) GetSubscriptionByPayment(ctx context.Context, paymentID int64) (*Subscription, error) {
	s := &Subscription{}
	err := r.q.QueryRow(ctx, `
		SELECT id, payment_id, profile_id, started_at
		FROM subscriptions WHERE payment_id = $1
		ORDER BY id LIMIT 1
	`, paymentID).Scan(&s.ID, &s.PaymentID, &s.ProfileID, &s.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("subscription of payment %d: %w", paymentID, mapError(err))
	}
	return s, nil
}

// ============================================================================
// ALLOCATIONS
// ============================================================================

const allocationColumns = `id, payment_id, subscription_id, fund_id, position_id, client_user_id, amount, percent, status, metadata, created_at`

func scanAllocation(row pgx.Row) (*Allocation, error) {
	a := &Allocation{}
	err := row.Scan(
		&a.ID, &a.PaymentID, &a.SubscriptionID, &a.FundID, &a.PositionID, &a.ClientUserID,
		&a.Amount, &a.Percent, &a.Status, &a.Metadata, &a.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *Repository) queryAllocations(ctx context.Context, query string, args ...any) ([]*Allocation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var allocations []*Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, mapError(rows.Err())
}

// CreateAllocation inserts an allocation
func (r *Repository) CreateAllocation(ctx context.Context, a *Allocation) error {
	if a.Status == "" {
		a.Status = AllocationStatusAccrued
	}
	query := `
		INSERT INTO allocations (payment_id, subscription_id, fund_id, position_id, client_user_id, amount, percent, status, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := r.q.QueryRow(
		ctx, query,
		a.PaymentID, a.SubscriptionID, a.FundID, a.PositionID, a.ClientUserID,
		a.Amount, a.Percent, a.Status, metadataOrEmpty(a.Metadata),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create allocation for payment %d: %w", a.PaymentID, mapError(err))
	}
	return nil
}

// GetAllocation retrieves an allocation by ID
func (r *Repository) GetAllocation(ctx context.Context, id int64) (*Allocation, error) {
	a, err := scanAllocation(r.q.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("allocation %d: %w", id, err)
	}
	return a, nil
}

// GetAllocationByPayment returns the allocation that pooled a payment
func (r *Repository) GetAllocationByPayment(ctx context.Context, paymentID int64) (*Allocation, error) {
	a, err := scanAllocation(r.q.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE payment_id = $1`, paymentID))
	if err != nil {
		return nil, fmt.Errorf("allocation of payment %d: %w", paymentID, err)
	}
	return a, nil
}

// ListAllocationsByFund returns every allocation of a fund in creation order
func (r *Repository) ListAllocationsByFund(ctx context.Context, fundID int64) ([]*Allocation, error) {
	return r.queryAllocations(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE fund_id = $1 ORDER BY id`, fundID)
}

// ListActiveAllocations returns the non-cancelled allocations of a fund in creation order
func (r *Repository) ListActiveAllocations(ctx context.Context, fundID int64) ([]*Allocation, error) {
	return r.queryAllocations(ctx,
		`SELECT `+allocationColumns+` FROM allocations WHERE fund_id = $1 AND status <> $2 ORDER BY id`,
		fundID, AllocationStatusCancelled,
	)
}

// EarliestAllocation returns the first allocation of a client within a fund
func (r *Repository) EarliestAllocation(ctx context.Context, fundID, clientUserID int64) (*Allocation, error) {
	a, err := scanAllocation(r.q.QueryRow(ctx, `
		SELECT `+allocationColumns+`
		FROM allocations
		WHERE fund_id = $1 AND client_user_id = $2
		ORDER BY created_at, id
		LIMIT 1
	`, fundID, clientUserID))
	if err != nil {
		return nil, fmt.Errorf("earliest allocation of client %d in fund %d: %w", clientUserID, fundID, err)
	}
	return a, nil
}

// UpdateAllocationStatus changes an allocation's status
func (r *Repository) UpdateAllocationStatus(ctx context.Context, id int64, status AllocationStatus) error {
	tag, err := r.q.Exec(ctx, `UPDATE allocations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update allocation %d: %w", id, mapError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("allocation %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}
