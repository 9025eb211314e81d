package vectorstore

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/resilience"
	"cvmatcher/internal/types"
)

// Observer receives one callback per store operation.
type Observer interface {
	ObserveStoreOperation(ctx context.Context, operation string, err error)
}

// Guarded decorates a Store with a circuit breaker, tracing and error
// classification. Every error it returns is an *errors.AppError.
type Guarded struct {
	store    Store
	cfg      config.VectorStoreConfig
	breaker  *resilience.Breaker[any]
	observer Observer
	logger   *errors.Logger
}

var _ Store = (*Guarded)(nil)

// NewGuarded wraps store according to cfg.
func NewGuarded(store Store, cfg config.VectorStoreConfig, logger *errors.Logger) *Guarded {
	return &Guarded{
		store:   store,
		cfg:     cfg,
		breaker: resilience.NewBreaker[any]("vectorstore-"+cfg.Backend, cfg.CircuitBreaker, logger, isUnavailable),
		logger:  logger,
	}
}

// SetObserver registers a metrics observer.
func (g *Guarded) SetObserver(o Observer) { g.observer = o }

// EnsureWithRetry creates the collection, waiting for the database to come
// up for cfg.StartupAttempts attempts spaced cfg.StartupDelay apart.
func (g *Guarded) EnsureWithRetry(ctx context.Context) error {
	err := resilience.Poll(ctx, g.cfg.StartupAttempts, g.cfg.StartupDelay, func(attempt int) error {
		err := g.store.EnsureCollection(ctx)
		if err != nil {
			g.logger.Warn("Vector database not ready",
				"backend", g.cfg.Backend,
				"attempt", attempt,
				"max_attempts", g.cfg.StartupAttempts,
				"error", err.Error())
			return err
		}
		g.logger.Info("Vector database ready",
			"backend", g.cfg.Backend,
			"collection", g.cfg.Collection,
			"attempt", attempt)
		return nil
	})
	if err != nil {
		return errors.NewDependencyError(errors.ErrCodeDependencyUnavailable,
			"Vector database unavailable", err).WithContext("backend", g.cfg.Backend)
	}
	return nil
}

// run executes fn under the breaker inside a span named after operation.
func run[T any](ctx context.Context, g *Guarded, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := otel.Tracer("cvmatcher.vectorstore").Start(ctx, "vectorstore."+operation,
		trace.WithAttributes(
			attribute.String("db.system", g.cfg.Backend),
			attribute.String("db.collection", g.cfg.Collection),
		))
	defer span.End()

	v, err := g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
	if g.observer != nil {
		g.observer.ObserveStoreOperation(ctx, operation, err)
	}

	var zero T
	if err != nil {
		span.RecordError(err)
		return zero, g.classify(operation, err)
	}
	result, _ := v.(T)
	return result, nil
}

// isUnavailable reports errors that say the database is unreachable, as
// opposed to one request being rejected.
func isUnavailable(err error) bool {
	return stderrors.Is(err, ErrUnavailable) || stderrors.Is(err, context.DeadlineExceeded)
}

func (g *Guarded) classify(operation string, err error) error {
	if appErr, ok := errors.As(err); ok {
		return appErr
	}
	if resilience.IsOpen(err) || stderrors.Is(err, ErrUnavailable) {
		return errors.NewDependencyError(errors.ErrCodeDependencyUnavailable,
			"Vector database unavailable", err).
			WithContext("backend", g.cfg.Backend).
			WithContext("operation", operation)
	}
	return errors.NewInternalError(errors.ErrCodeStoreFailed,
		"Vector database operation failed", err).
		WithContext("backend", g.cfg.Backend).
		WithContext("operation", operation)
}

func (g *Guarded) EnsureCollection(ctx context.Context) error {
	_, err := run(ctx, g, "ensure_collection", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.EnsureCollection(ctx)
	})
	return err
}

func (g *Guarded) Upsert(ctx context.Context, record types.CandidateRecord, vector []float32) error {
	_, err := run(ctx, g, "upsert", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.Upsert(ctx, record, vector)
	})
	return err
}

func (g *Guarded) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	return run(ctx, g, "search", func(ctx context.Context) ([]Hit, error) {
		return g.store.Search(ctx, vector, limit)
	})
}

func (g *Guarded) List(ctx context.Context, limit int) ([]types.CandidateRecord, error) {
	return run(ctx, g, "list", func(ctx context.Context) ([]types.CandidateRecord, error) {
		return g.store.List(ctx, limit)
	})
}

func (g *Guarded) Delete(ctx context.Context, id string) error {
	_, err := run(ctx, g, "delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.Delete(ctx, id)
	})
	return err
}

func (g *Guarded) DeleteAll(ctx context.Context) error {
	_, err := run(ctx, g, "delete_all", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.DeleteAll(ctx)
	})
	return err
}

func (g *Guarded) Count(ctx context.Context) (int, error) {
	return run(ctx, g, "count", func(ctx context.Context) (int, error) {
		return g.store.Count(ctx)
	})
}

// Health bypasses the breaker so a recovered database is seen at once.
func (g *Guarded) Health(ctx context.Context) error {
	if err := g.store.Health(ctx); err != nil {
		return g.classify("health", err)
	}
	return nil
}

// Stats returns circuit breaker statistics.
func (g *Guarded) Stats() map[string]any {
	return g.breaker.Stats()
}

func (g *Guarded) Close() error {
	return g.store.Close()
}
