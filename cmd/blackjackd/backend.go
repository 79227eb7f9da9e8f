package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/config"
	"github.com/cory-johannsen/blackjack/internal/server"
	"github.com/cory-johannsen/blackjack/internal/storage"
	"github.com/cory-johannsen/blackjack/internal/storage/memory"
	"github.com/cory-johannsen/blackjack/internal/storage/postgres"
	"github.com/cory-johannsen/blackjack/internal/storage/sqlite"
)

// sweepInterval is how often expired rows are purged from Postgres.
const sweepInterval = time.Minute

// backend bundles the three storage contracts of one configured store.
type backend struct {
	store    storage.Store
	accounts storage.AccountStore
	log      storage.EventLog
	// services run alongside the game, such as the Postgres sweeper.
	services map[string]server.Service
	close    func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		logger.Warn("memory backend: games and balances are lost on restart")
		return &backend{
			store:    memory.NewStore(time.Now),
			accounts: memory.NewAccounts(),
			log:      memory.NewEventLog(cfg.Events.LeaseTTL),
			close:    func() {},
		}, nil

	case config.BackendSQLite:
		st, err := sqlite.Open(cfg.Storage.SQLitePath, sqlite.Options{
			Consumer:     cfg.Events.Consumer,
			LeaseTTL:     cfg.Events.LeaseTTL,
			PollInterval: cfg.Events.PollInterval,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite backend opened", zap.String("path", cfg.Storage.SQLitePath))
		return &backend{
			store:    st,
			accounts: st,
			log:      st,
			close: func() {
				if err := st.Close(); err != nil {
					logger.Warn("closing sqlite", zap.Error(err))
				}
			},
		}, nil

	case config.BackendPostgres:
		if err := postgres.Migrate(cfg.Database.DSN()); err != nil {
			return nil, err
		}
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres backend connected",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.Name),
		)
		kv := postgres.NewKV(pool.DB())
		return &backend{
			store:    kv,
			accounts: postgres.NewAccountRepository(pool.DB()),
			log:      postgres.NewEventLog(pool.DB(), cfg.Events.Consumer, cfg.Events.LeaseTTL, cfg.Events.PollInterval),
			services: map[string]server.Service{"sweeper": newSweeper(kv, sweepInterval, logger)},
			close:    pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// newSweeper purges expired entries and leases on a fixed interval until stopped.
func newSweeper(kv *postgres.KV, every time.Duration, logger *zap.Logger) server.Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					n, err := kv.Sweep(ctx)
					if err != nil && ctx.Err() == nil {
						logger.Warn("sweeping expired rows", zap.Error(err))
						continue
					}
					if n > 0 {
						logger.Debug("swept expired rows", zap.Int64("rows", n))
					}
				}
			}
		},
		StopFn: cancel,
	}
}
