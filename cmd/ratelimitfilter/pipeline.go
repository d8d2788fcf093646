package main

import (
	"context"
	"log/slog"

	"ratelimitfilter/internal/app/factory"
	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/internal/storage"
)

// openPipeline connects to the configured store and builds a pipeline
// without any frontend. The caller closes the returned store.
func openPipeline(ctx context.Context, cfg *config.Config) (*pipeline.Pipeline, storage.SharedStore, error) {
	logger := slog.Default()

	store, err := factory.CreateStore(ctx, &cfg.Storage, logger)
	if err != nil {
		return nil, nil, err
	}

	ll, err := factory.CreateLimitLoader(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	reg, err := factory.CreateRegistry(ctx, cfg, ll)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	p, err := factory.CreatePipeline(&cfg.Filter, cfg.Namespace(), store, reg, nil, nil, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return p, store, nil
}
