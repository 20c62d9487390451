package main

import (
	"context"
	"log/slog"

	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/store/postgres"
	"github.com/xraph/herald/store/redis"
	"github.com/xraph/herald/store/sqlite"
)

// openStore connects the configured backend. The caller closes it.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case storePostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	case storeSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath, sqlite.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	case storeRedis:
		s, err := redis.Open(cfg.RedisURL, redis.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return memory.New(), nil
}
