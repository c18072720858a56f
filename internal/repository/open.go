package repository

import (
	"context"
	"fmt"

	"auction-engine/internal/config"
)

// Store is every collaborator the services need from one backing store
type Store interface {
	AuctionDB
	Directory
	TokenStore
	LeaseStore
}

var (
	_ Store = (*MemoryRepo)(nil)
	_ Store = (*MySQLRepo)(nil)
)

// Open returns the store selected by cfg.Driver along with a function that
// releases it. The MySQL schema is migrated before returning.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, func() error, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return NewMemoryRepo(WithMaxAttempts(cfg.MaxAttempts)), func() error { return nil }, nil
	case config.DriverMySQL:
		db, err := OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		repo := NewMySQLRepo(db, cfg.MaxAttempts)
		if err := repo.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("repository: unknown store driver %q", cfg.Driver)
	}
}
