package app

import (
	"context"
	"fmt"

	"github.com/R3E-Network/bankline/internal/config"
	"github.com/R3E-Network/bankline/internal/storage"
	"github.com/R3E-Network/bankline/internal/storage/memory"
	"github.com/R3E-Network/bankline/internal/storage/postgres"
	redisstore "github.com/R3E-Network/bankline/internal/storage/redis"
)

// openCache opens the configured entity cache. The returned closer is nil for
// the in-memory backend.
func openCache(ctx context.Context, cfg config.StorageConfig) (storage.Cache, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memory.New(), nil, nil
	case config.BackendRedis:
		store, err := redisstore.Open(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
