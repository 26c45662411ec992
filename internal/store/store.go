// Package store opens the repository selected by STORE_DRIVER.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/conquest/internal/config"
	"example.com/conquest/internal/domain"
	"example.com/conquest/internal/persistence/postgres"
	"example.com/conquest/internal/persistence/sqlite"
)

// Store is an opened repository. Pool is nil unless the driver is postgres;
// only postgres feeds the outbox dispatcher.
type Store struct {
	Repository domain.Repository
	Pool       *pgxpool.Pool
	close      func() error
}

// Close releases the underlying connections.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the configured driver and applies migrations.
func Open(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &Store{
			Repository: postgres.NewRepository(pool),
			Pool:       pool,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil
	case config.StoreDriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return &Store{Repository: repo, close: repo.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
