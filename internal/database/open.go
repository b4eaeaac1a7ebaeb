package database

import (
	"context"
	"fmt"

	"fund-ledger/config"
)

// Open builds the ledger store selected by cfg.Driver. For postgres it
// connects, runs the migrations and returns a Repository; the returned
// close function releases the pool.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Ledger, func(), error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), func() {}, nil
	case "postgres", "":
		db, err := NewDB(Config{
			Host:     cfg.Host,
			Port:     cfg.Port,
			User:     cfg.User,
			Password: cfg.Password,
			Database: cfg.Name,
			SSLMode:  cfg.SSLMode,
			MaxConns: int32(cfg.MaxConns),
			MinConns: int32(cfg.MinConns),
		})
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return NewRepository(db), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
