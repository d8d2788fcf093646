package factory

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"ratelimitfilter/internal/config"
	"ratelimitfilter/internal/limit"
	"ratelimitfilter/internal/pipeline"
	"ratelimitfilter/internal/retry"
	"ratelimitfilter/internal/storage"
)

// CreatePipeline creates the decision pipeline from the filter section
func CreatePipeline(
	cfg *config.Filter,
	namespace string,
	store storage.SharedStore,
	registry *limit.Registry,
	recorder pipeline.Recorder,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*pipeline.Pipeline, error) {
	var backoff retry.Backoff
	if cfg.ConflictBackoff > 0 {
		backoff = retry.DefaultBackoff()
		backoff.Initial = time.Duration(cfg.ConflictBackoff) * time.Millisecond
		if backoff.Max < backoff.Initial {
			backoff.Max = backoff.Initial
		}
	}

	return pipeline.New(pipeline.Config{
		Store:              store,
		Registry:           registry,
		Namespace:          namespace,
		SnapshotKey:        cfg.SnapshotKey,
		Consistency:        pipeline.Consistency(cfg.Consistency),
		MaxConflictRetries: cfg.MaxConflictRetries,
		ConflictBackoff:    backoff,
		Logger:             logger,
		Recorder:           recorder,
		Tracer:             tracer,
	})
}
