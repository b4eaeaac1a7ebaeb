package database

import (
	"context"
	"fmt"
	"time"

	"fund-ledger/internal/logging"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN renders the libpq connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	return NewDBFromDSN(cfg.DSN(), cfg.MaxConns, cfg.MinConns)
}

// NewDBFromDSN connects using a ready connection string
func NewDBFromDSN(dsn string, maxConns, minConns int32) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}
	if minConns > 0 && minConns <= poolConfig.MaxConns {
		poolConfig.MinConns = minConns
	}
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logging.DatabaseContext("connect", "").Info("Connected to PostgreSQL", "database", poolConfig.ConnConfig.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		logging.DatabaseContext("close", "").Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	logger := logging.DatabaseContext("migrate", "")
	logger.Info("Running database migrations", "count", len(migrations))

	start := time.Now()
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			logger.WithError(err).Error("Migration failed", "index", i)
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	logger.WithDuration(time.Since(start)).Info("Database migrations completed")
	return nil
}

var migrations = []string{
	// Clients (read model fed by the account collaborator)
	`CREATE TABLE IF NOT EXISTS clients (
		user_id BIGINT PRIMARY KEY,
		profile_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		referred_by_user_id BIGINT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_clients_referred_by ON clients(referred_by_user_id)`,

	// Funds
	`CREATE TABLE IF NOT EXISTS funds (
		id BIGSERIAL PRIMARY KEY,
		category VARCHAR(20) NOT NULL,
		name VARCHAR(255) NOT NULL,
		initial_amount NUMERIC(20, 8) NOT NULL CHECK (initial_amount >= 0),
		current_amount NUMERIC(20, 8) NOT NULL,
		status VARCHAR(10) NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'paused', 'closed')),
		version BIGINT NOT NULL DEFAULT 1,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (category, name)
	)`,

	// Fund history (append-only)
	`CREATE TABLE IF NOT EXISTS fund_history (
		id BIGSERIAL PRIMARY KEY,
		fund_id BIGINT NOT NULL REFERENCES funds(id),
		previous_amount NUMERIC(20, 8) NOT NULL,
		new_amount NUMERIC(20, 8) NOT NULL,
		fluctuation_percent NUMERIC(12, 4) NOT NULL DEFAULT 0,
		reason VARCHAR(100) NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_fund_history_fund ON fund_history(fund_id, recorded_at)`,

	// Payments and subscriptions
	`CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		payer_user_id BIGINT NOT NULL,
		payer_profile_id BIGINT NOT NULL,
		amount NUMERIC(20, 8) NOT NULL CHECK (amount > 0),
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		status VARCHAR(20) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_payer ON payments(payer_user_id, status)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id BIGSERIAL PRIMARY KEY,
		payment_id BIGINT REFERENCES payments(id),
		profile_id BIGINT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	// Earning positions: kind tags client stakes and the company commission
	`CREATE TABLE IF NOT EXISTS earning_positions (
		id BIGSERIAL PRIMARY KEY,
		subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
		fund_id BIGINT REFERENCES funds(id),
		kind VARCHAR(10) NOT NULL,
		initial_amount NUMERIC(20, 8) NOT NULL,
		current_amount NUMERIC(20, 8) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((kind = 'client' AND initial_amount > 0) OR (kind = 'company' AND initial_amount = 0))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_earning_positions_fund ON earning_positions(fund_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_earning_positions_company ON earning_positions(fund_id) WHERE kind = 'company'`,

	// Earning history (append-only)
	`CREATE TABLE IF NOT EXISTS earning_history (
		id BIGSERIAL PRIMARY KEY,
		position_id BIGINT NOT NULL REFERENCES earning_positions(id),
		previous_amount NUMERIC(20, 8) NOT NULL,
		new_amount NUMERIC(20, 8) NOT NULL,
		fluctuation_percent NUMERIC(12, 4) NOT NULL DEFAULT 0,
		reason VARCHAR(100) NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_earning_history_position ON earning_history(position_id, recorded_at)`,

	// Participants
	`CREATE TABLE IF NOT EXISTS participants (
		id BIGSERIAL PRIMARY KEY,
		subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
		profile_id BIGINT NOT NULL,
		position_id BIGINT REFERENCES earning_positions(id),
		role VARCHAR(20) NOT NULL CHECK (role IN ('owner', 'beneficiary', 'advisor')),
		share_percent NUMERIC(12, 4) NOT NULL DEFAULT 0,
		final_investment_amount NUMERIC(20, 8) NOT NULL DEFAULT 0,
		is_primary_owner BOOLEAN NOT NULL DEFAULT FALSE,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participants_position ON participants(position_id)`,

	// Allocations
	`CREATE TABLE IF NOT EXISTS allocations (
		id BIGSERIAL PRIMARY KEY,
		payment_id BIGINT NOT NULL REFERENCES payments(id),
		subscription_id BIGINT NOT NULL REFERENCES subscriptions(id),
		fund_id BIGINT NOT NULL REFERENCES funds(id),
		position_id BIGINT NOT NULL REFERENCES earning_positions(id),
		client_user_id BIGINT NOT NULL,
		amount NUMERIC(20, 8) NOT NULL CHECK (amount > 0),
		percent NUMERIC(12, 4) NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL DEFAULT 'accrued'
			CHECK (status IN ('accrued', 'pending_payment', 'paid', 'cancelled')),
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (payment_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_allocations_fund_client ON allocations(fund_id, client_user_id, id)`,

	// Referral links
	`CREATE TABLE IF NOT EXISTS referral_links (
		id BIGSERIAL PRIMARY KEY,
		referrer_user_id BIGINT NOT NULL,
		referred_user_id BIGINT NOT NULL,
		first_payment_id BIGINT REFERENCES payments(id),
		deposit_amount NUMERIC(20, 8) NOT NULL DEFAULT 0,
		is_first_deposit BOOLEAN NOT NULL DEFAULT FALSE,
		commission_percentage NUMERIC(12, 4) NOT NULL DEFAULT 0,
		commission_amount NUMERIC(20, 8) NOT NULL DEFAULT 0,
		reward_id BIGINT,
		status VARCHAR(20) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'calculated', 'paid')),
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_referral_links_first_deposit ON referral_links(referred_user_id) WHERE is_first_deposit`,
	`CREATE INDEX IF NOT EXISTS idx_referral_links_referrer ON referral_links(referrer_user_id)`,

	// Closure snapshots: one per fund, never updated
	`CREATE TABLE IF NOT EXISTS closure_snapshots (
		id BIGSERIAL PRIMARY KEY,
		reference VARCHAR(64) NOT NULL UNIQUE,
		fund_id BIGINT NOT NULL UNIQUE REFERENCES funds(id),
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		period_yield NUMERIC(12, 6) NOT NULL,
		total_investment NUMERIC(20, 8) NOT NULL,
		total_gross_earnings NUMERIC(20, 8) NOT NULL,
		company_total NUMERIC(20, 8) NOT NULL,
		referral_total NUMERIC(20, 8) NOT NULL,
		clients_net_total NUMERIC(20, 8) NOT NULL,
		participant_count INTEGER NOT NULL,
		first_deposits_referred INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'calculated', 'distributed', 'closed')),
		calculated_at TIMESTAMPTZ,
		distributed_at TIMESTAMPTZ,
		closed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (period_end >= period_start)
	)`,

	// Reward records
	`CREATE TABLE IF NOT EXISTS reward_records (
		id BIGSERIAL PRIMARY KEY,
		closure_id BIGINT NOT NULL REFERENCES closure_snapshots(id),
		client_user_id BIGINT NOT NULL,
		fund_id BIGINT NOT NULL REFERENCES funds(id),
		allocation_id BIGINT NOT NULL REFERENCES allocations(id),
		investment NUMERIC(20, 8) NOT NULL,
		gross_earnings NUMERIC(20, 8) NOT NULL,
		company_percentage NUMERIC(12, 4) NOT NULL,
		company_deduction NUMERIC(20, 8) NOT NULL,
		was_referred BOOLEAN NOT NULL DEFAULT FALSE,
		referrer_user_id BIGINT,
		referral_percentage NUMERIC(12, 4) NOT NULL DEFAULT 0,
		referral_deduction NUMERIC(20, 8) NOT NULL DEFAULT 0,
		net_earnings NUMERIC(20, 8) NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL CHECK (status IN ('pending', 'closed', 'paid')),
		closed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (closure_id, allocation_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reward_records_client ON reward_records(client_user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reward_records_fund ON reward_records(fund_id)`,
}
