package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fund-ledger/config"
	"fund-ledger/internal/cache"
	"fund-ledger/internal/closure"
	"fund-ledger/internal/database"
	"fund-ledger/internal/ledger"
	"fund-ledger/internal/logging"
	"fund-ledger/internal/valuation"
	"fund-ledger/internal/vault"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// env is what the commands run against
type env struct {
	store     database.Ledger
	closure   *closure.Engine
	valuation *valuation.Engine
	reporter  *closure.Reporter
	currency  string
	out       io.Writer
	errOut    io.Writer
}

type loader func(ctx context.Context) (*env, func(), error)

// loadEnv builds the engines from config.json and the environment, the same
// way the server does.
func loadEnv(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logging.SetDefault(logging.New(&logging.Config{
		Level:     cfg.LoggingConfig.Level,
		Output:    "stderr",
		Component: "fund-admin",
	}))

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return nil, nil, err
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.ApplyTo(ctx, cfg); err != nil {
			return nil, nil, err
		}
	}

	store, closeStore, err := database.Open(ctx, cfg.DatabaseConfig)
	if err != nil {
		return nil, nil, err
	}
	cacheService, summaries := cache.Open(cfg.RedisConfig, logging.WithComponent("cache"))

	policy := cfg.EngineConfig.Policy()
	e := &env{
		store:     store,
		closure:   closure.NewEngine(store, policy, nil, summaries),
		valuation: valuation.NewEngine(store, policy, nil),
		reporter:  closure.NewReporter(store, summaries),
		currency:  policy.Currency,
		out:       os.Stdout,
		errOut:    os.Stderr,
	}
	cleanup := func() {
		if cacheService != nil {
			cacheService.Close()
		}
		closeStore()
	}
	return e, cleanup, nil
}

// fail reports an engine error. Lock and version conflicts leave the fund
// untouched, so the operator is told the command can be run again.
func (e *env) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(e.errOut, err)
	if valuation.IsConflict(err) {
		fmt.Fprintln(e.errOut, "The fund was being changed by another operation; nothing was written, retry the command.")
	}
	return subcommands.ExitFailure
}

func (e *env) money(amount decimal.Decimal) string {
	return ledger.FormatMoney(amount, e.currency)
}

// fundID parses the single positional argument of the fund commands
func fundID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one <fund_id> argument, got %d", len(args))
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid fund id %q", args[0])
	}
	return id, nil
}

// parseTime accepts a date or an RFC 3339 timestamp, empty means unset
func parseTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q, want YYYY-MM-DD or RFC 3339: %w", s, ledger.ErrInvalidPeriod)
}
