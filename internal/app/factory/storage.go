package factory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ratelimitfilter/internal/circuitbreaker"
	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/storage"
	"ratelimitfilter/internal/storage/memory"
	"ratelimitfilter/internal/storage/redis"
)

// CreateStore creates the shared counter store named by cfg.Type
func CreateStore(ctx context.Context, cfg *config.Storage, logger *slog.Logger) (storage.SharedStore, error) {
	storeCfg := storage.DefaultConfig()
	if cfg.OperationTimeout > 0 {
		storeCfg.OperationTimeout = time.Duration(cfg.OperationTimeout) * time.Millisecond
	}
	if cfg.KeyPrefix != "" {
		storeCfg.KeyPrefix = cfg.KeyPrefix
	}

	var store storage.SharedStore
	switch cfg.Type {
	case "", "memory":
		logger.Info("Using in-memory counter store; counters are not shared between instances")
		store = memory.NewStore(storeCfg)
	case "redis":
		client, err := CreateRedisClient(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		store = redis.NewStore(redis.NewClientAdapter(client), storeCfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}

	if !cfg.Breaker.Enabled {
		return store, nil
	}
	breaker := circuitbreaker.New(circuitbreaker.Config{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: seconds(cfg.Breaker.OpenTimeout),
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("Storage circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})
	return circuitbreaker.NewStore(store, breaker), nil
}
