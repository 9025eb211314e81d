package embedding

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
	"cvmatcher/internal/resilience"
)

// Observer receives one callback per embedding request.
type Observer interface {
	ObserveEmbedding(ctx context.Context, provider string, duration time.Duration, err error)
}

// Service guards an Embedder with a per-call timeout, retries on transient
// failures, a circuit breaker and dimension checking. It classifies
// failures so callers can tell an unreachable provider from bad input.
type Service struct {
	provider Embedder
	name     string
	dims     int
	timeout  time.Duration
	retry    resilience.RetryPolicy
	breaker  *resilience.Breaker[[]float32]
	observer Observer
	logger   *errors.Logger
}

var _ Embedder = (*Service)(nil)

// NewService wraps provider according to cfg.
func NewService(provider Embedder, cfg config.EmbeddingConfig, logger *errors.Logger) *Service {
	dims := cfg.Dimensions
	if dims == 0 {
		dims = provider.Dimensions()
	}
	return &Service{
		provider: provider,
		name:     cfg.Provider,
		dims:     dims,
		timeout:  cfg.Timeout,
		retry: resilience.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   10 * time.Second,
			Retryable:  isTransient,
		},
		breaker: resilience.NewBreaker[[]float32]("embedding-"+cfg.Provider, cfg.CircuitBreaker, logger, isTransient),
		logger:  logger,
	}
}

// SetObserver registers a metrics observer.
func (s *Service) SetObserver(o Observer) { s.observer = o }

// Embed returns the vector for a document.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, "embedding.embed", text, s.provider.Embed)
}

// EmbedQuery returns the vector for a search query.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, "embedding.embed_query", text, s.provider.EmbedQuery)
}

func (s *Service) embed(ctx context.Context, spanName, text string, call func(context.Context, string) ([]float32, error)) ([]float32, error) {
	ctx, span := otel.Tracer("cvmatcher.embedding").Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(
		attribute.String("embedding.provider", s.name),
		attribute.Int("embedding.dimensions", s.dims),
		attribute.Int("input.text_length", len(text)),
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	vector, err := s.breaker.Execute(func() ([]float32, error) {
		return resilience.Retry(ctx, s.retry, "embed", s.logger, func() ([]float32, error) {
			return call(ctx, text)
		})
	})
	if err == nil && len(vector) != s.dims {
		err = errors.NewInternalError(errors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), s.dims), nil)
	}
	if s.observer != nil {
		s.observer.ObserveEmbedding(ctx, s.name, time.Since(start), err)
	}

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("success", false))
		return nil, s.classify(err)
	}
	span.SetAttributes(attribute.Bool("success", true))
	return vector, nil
}

func (s *Service) classify(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	if resilience.IsOpen(err) || isTransient(err) {
		return errors.NewDependencyError(errors.ErrCodeDependencyUnavailable,
			"Embedding service unavailable", err).WithContext("provider", s.name)
	}
	return errors.NewInternalError(errors.ErrCodeEmbeddingFailed,
		"Failed to embed text", err).WithContext("provider", s.name)
}

// Dimensions returns the vector size every successful Embed call yields.
func (s *Service) Dimensions() int { return s.dims }

// ModelInfo queries the underlying provider.
func (s *Service) ModelInfo(ctx context.Context) *ModelInfo {
	info := s.provider.ModelInfo(ctx)
	if info != nil && !s.breaker.IsHealthy() {
		info.Available = false
		info.Error = "circuit breaker open"
	}
	return info
}

// Stats returns circuit breaker statistics.
func (s *Service) Stats() map[string]any {
	return s.breaker.Stats()
}

func (s *Service) Close() error { return s.provider.Close() }

// isTransient reports errors that indicate the provider is unreachable or
// overloaded rather than rejecting the input.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}
	var genaiErr genai.APIError
	if stderrors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}
	var statusErr *StatusError
	if stderrors.As(err, &statusErr) {
		return retryableStatus(statusErr.Code)
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// StatusError carries an HTTP status from providers whose client libraries
// only report it in text.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return fmt.Sprintf("status %d: %v", e.Code, e.Err) }
func (e *StatusError) Unwrap() error { return e.Err }
