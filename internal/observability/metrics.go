package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the custom instruments. The zero value records nothing.
type Metrics struct {
	DocumentsProcessed metric.Int64Counter
	EmbeddingDuration  metric.Float64Histogram
	EmbeddingRequests  metric.Int64Counter
	EmbeddingErrors    metric.Int64Counter
	StoreOperations    metric.Int64Counter
	Searches           metric.Int64Counter
	RateLimitHits      metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.DocumentsProcessed, err = meter.Int64Counter(
		"cvmatcher_documents_processed_total",
		metric.WithDescription("Uploaded résumé files processed, by outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create documents processed metric: %w", err)
	}

	if m.EmbeddingDuration, err = meter.Float64Histogram(
		"cvmatcher_embedding_duration_seconds",
		metric.WithDescription("Time spent computing embeddings"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create embedding duration metric: %w", err)
	}

	if m.EmbeddingRequests, err = meter.Int64Counter(
		"cvmatcher_embedding_requests_total",
		metric.WithDescription("Total number of embedding requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create embedding request metric: %w", err)
	}

	if m.EmbeddingErrors, err = meter.Int64Counter(
		"cvmatcher_embedding_errors_total",
		metric.WithDescription("Total number of failed embedding requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create embedding error metric: %w", err)
	}

	if m.StoreOperations, err = meter.Int64Counter(
		"cvmatcher_vector_store_operations_total",
		metric.WithDescription("Vector store operations, by operation and outcome"),
	); err != nil {
		return nil, fmt.Errorf("failed to create vector store metric: %w", err)
	}

	if m.Searches, err = meter.Int64Counter(
		"cvmatcher_searches_total",
		metric.WithDescription("Total number of candidate searches"),
	); err != nil {
		return nil, fmt.Errorf("failed to create search metric: %w", err)
	}

	if m.RateLimitHits, err = meter.Int64Counter(
		"cvmatcher_rate_limit_hits_total",
		metric.WithDescription("Total number of rate limit hits"),
	); err != nil {
		return nil, fmt.Errorf("failed to create rate limit hits metric: %w", err)
	}

	return m, nil
}

// ObserveEmbedding records one embedding call.
func (m *Metrics) ObserveEmbedding(ctx context.Context, provider string, duration time.Duration, err error) {
	if m.EmbeddingRequests == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", err == nil),
	)
	m.EmbeddingRequests.Add(ctx, 1, attrs)
	m.EmbeddingDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.EmbeddingErrors.Add(ctx, 1, attrs)
	}
}

// ObserveStoreOperation records one vector store call.
func (m *Metrics) ObserveStoreOperation(ctx context.Context, operation string, err error) {
	if m.StoreOperations == nil {
		return
	}
	m.StoreOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	))
}

// ObserveDocument records one processed upload file.
func (m *Metrics) ObserveDocument(ctx context.Context, status string) {
	if m.DocumentsProcessed == nil {
		return
	}
	m.DocumentsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// ObserveSearch records one search and its result count.
func (m *Metrics) ObserveSearch(ctx context.Context, results int) {
	if m.Searches == nil {
		return
	}
	m.Searches.Add(ctx, 1, metric.WithAttributes(attribute.Bool("empty", results == 0)))
}

// RecordRateLimitHit counts a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimitHit(ctx context.Context, path string) {
	if m.RateLimitHits == nil {
		return
	}
	m.RateLimitHits.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}
