package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/upstac/upstac/internal/config"
	"github.com/upstac/upstac/internal/domain/consultation"
	"github.com/upstac/upstac/internal/domain/testrequest"
	"github.com/upstac/upstac/internal/platform/db"
)

// stores bundles the persistence the server runs on.
type stores struct {
	requests testrequest.Repository
	flows    testrequest.FlowRepository
	tx       consultation.Transactor
	health   db.Pinger
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := testrequest.NewMemoryStore()
		if cfg.SeedDemoData {
			seeded, err := testrequest.SeedDemo(ctx, mem, time.Now())
			if err != nil {
				return nil, fmt.Errorf("seed demo data: %w", err)
			}
			logger.Info().Int("requests", len(seeded)).Msg("seeded demo test requests")
		}
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return &stores{requests: mem, flows: mem, tx: mem, health: mem, close: func() {}}, nil

	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &stores{
			requests: testrequest.NewTestRequestRepoPG(pool),
			flows:    testrequest.NewFlowRepoPG(pool),
			tx:       db.NewTxManager(pool),
			health:   pool,
			close:    pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
