package loader

import (
	"context"
	"io"
	"log/slog"

	"ratelimitfilter/internal/limit"
	"ratelimitfilter/pkg/errors"
)

// maxDocumentSize bounds a limit document read from any source.
const maxDocumentSize = 1 << 20

// LimitLoader builds limit registries from a document held by a Source
type LimitLoader struct {
	source    Source
	path      string
	namespace string
	logger    *slog.Logger
}

// NewLimitLoader creates a loader. Definitions without a namespace are
// placed in namespace.
func NewLimitLoader(source Source, path, namespace string, logger *slog.Logger) *LimitLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &LimitLoader{
		source:    source,
		path:      path,
		namespace: namespace,
		logger:    logger.With("component", "limit-loader", "source", source.Type()),
	}
}

// Load fetches and parses the document into a new registry
func (l *LimitLoader) Load(ctx context.Context) (*limit.Registry, error) {
	rc, err := l.source.Load(ctx, l.path)
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to load limit document").
			WithCause(err).
			WithDetail("path", l.path)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentSize+1))
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read limit document").WithCause(err)
	}
	if len(data) > maxDocumentSize {
		return nil, errors.NewError(errors.ErrorTypeBadRequest, "limit document too large").
			WithDetail("max", maxDocumentSize)
	}

	defs, err := limit.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	reg, err := limit.BuildRegistry(defs, l.namespace)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loaded limits", "path", l.path, "limits", reg.Len())
	return reg, nil
}

// Watch reloads the registry on every change the source reports and hands
// each outcome to apply. A failed reload passes a nil registry with the
// error. Sources that cannot watch return immediately with a nil error.
func (l *LimitLoader) Watch(ctx context.Context, apply func(*limit.Registry, error)) error {
	ws, ok := l.source.(WatchableSource)
	if !ok {
		return nil
	}
	return ws.Watch(ctx, l.path, func() {
		reg, err := l.Load(ctx)
		if err != nil {
			l.logger.Warn("Failed to reload limits", "error", err)
		}
		apply(reg, err)
	})
}
