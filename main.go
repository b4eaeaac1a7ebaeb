package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fund-ledger/config"
	"fund-ledger/internal/api"
	"fund-ledger/internal/auth"
	"fund-ledger/internal/cache"
	"fund-ledger/internal/closure"
	"fund-ledger/internal/database"
	"fund-ledger/internal/events"
	"fund-ledger/internal/funding"
	"fund-ledger/internal/logging"
	"fund-ledger/internal/valuation"
	"fund-ledger/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx := context.Background()

	// Pull credentials from Vault before anything connects
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Vault client")
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.ApplyTo(ctx, cfg); err != nil {
			logger.WithError(err).Fatal("Failed to load secrets from Vault")
		}
		logger.Info("Secrets loaded from Vault", "path", cfg.VaultConfig.SecretPath)
	}
	if cfg.AuthConfig.Enabled && cfg.AuthConfig.JWTSecret == "" {
		logger.Fatal("Authentication is enabled but no JWT secret is configured")
	}

	// Initialize the ledger store
	store, closeStore, err := database.Open(ctx, cfg.DatabaseConfig)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open ledger store", "driver", cfg.DatabaseConfig.Driver)
	}
	defer closeStore()
	logger.Info("Ledger store ready", "driver", cfg.DatabaseConfig.Driver)

	// Summary cache, degraded to pass-through without Redis
	cacheService, summaries := cache.Open(cfg.RedisConfig, logging.WithComponent("cache"))
	if cacheService != nil {
		defer cacheService.Close()
	}

	// Initialize event bus
	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.EventError, func(event events.Event) {
		logger.Warn("Engine error event", "data", event.Data)
	})
	logger.Info("Event bus initialized")

	policy := cfg.EngineConfig.Policy()
	deps := api.Dependencies{
		Store:     store,
		EventBus:  eventBus,
		Funding:   funding.NewService(store, policy, eventBus),
		Valuation: valuation.NewEngine(store, policy, eventBus),
		Closure:   closure.NewEngine(store, policy, eventBus, summaries),
		Reporter:  closure.NewReporter(store, summaries),
		Cache:     cacheService,
		Vault:     vaultClient,
		Currency:  policy.Currency,
	}
	if cfg.AuthConfig.Enabled {
		deps.JWT = auth.NewJWTManager(auth.Config{
			JWTSecret: cfg.AuthConfig.JWTSecret,
			Issuer:    cfg.AuthConfig.Issuer,
		})
	} else {
		logger.Warn("Authentication disabled, every caller acts as operator")
	}

	server := api.NewServer(cfg.ServerConfig, deps)

	// Start web server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start web server")
		}
	}()

	logger.Info("Fund ledger started",
		"host", cfg.ServerConfig.Host,
		"port", cfg.ServerConfig.Port,
		"currency", policy.Currency,
		"company_share", policy.CompanyShare,
		"referral_share", policy.ReferralShare,
	)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down web server")
	}

	logger.Info("Shutdown complete")
}
