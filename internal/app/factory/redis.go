package factory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ratelimitfilter/internal/config"
	"ratelimitfilter/pkg/errors"
)

// CreateRedisClient creates a single-node, cluster or sentinel client from
// configuration and verifies it answers
func CreateRedisClient(ctx context.Context, cfg *config.Redis, logger *slog.Logger) (goredis.UniversalClient, error) {
	if cfg == nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "Redis configuration is nil")
	}

	var (
		client goredis.UniversalClient
		attrs  []any
	)
	switch {
	case cfg.Cluster:
		if len(cfg.ClusterNodes) == 0 {
			return nil, errors.NewError(errors.ErrorTypeBadRequest, "No cluster nodes specified")
		}
		client = goredis.NewClusterClient(&goredis.ClusterOptions{
			Addrs:        cfg.ClusterNodes,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  seconds(cfg.DialTimeout),
			ReadTimeout:  seconds(cfg.ReadTimeout),
			WriteTimeout: seconds(cfg.WriteTimeout),
		})
		attrs = []any{"mode", "cluster", "nodes", cfg.ClusterNodes}

	case cfg.Sentinel:
		if len(cfg.SentinelNodes) == 0 {
			return nil, errors.NewError(errors.ErrorTypeBadRequest, "No sentinel nodes specified")
		}
		if cfg.MasterName == "" {
			return nil, errors.NewError(errors.ErrorTypeBadRequest, "Sentinel master name not specified")
		}
		client = goredis.NewFailoverClient(&goredis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelNodes,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			DialTimeout:   seconds(cfg.DialTimeout),
			ReadTimeout:   seconds(cfg.ReadTimeout),
			WriteTimeout:  seconds(cfg.WriteTimeout),
		})
		attrs = []any{"mode", "sentinel", "master", cfg.MasterName, "sentinels", cfg.SentinelNodes}

	default:
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		client = goredis.NewClient(&goredis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  seconds(cfg.DialTimeout),
			ReadTimeout:  seconds(cfg.ReadTimeout),
			WriteTimeout: seconds(cfg.WriteTimeout),
		})
		attrs = []any{"mode", "single", "addr", addr, "db", cfg.DB}
	}

	pingTimeout := seconds(cfg.DialTimeout)
	if pingTimeout == 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.NewError(errors.ErrorTypeStorage, "failed to connect to Redis").WithCause(err)
	}

	logger.Info("Connected to Redis", append(attrs, "poolSize", cfg.PoolSize)...)
	return client, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
