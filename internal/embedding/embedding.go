// Package embedding converts document text into fixed-size vectors using a
// pretrained sentence-embedding model behind a provider API.
package embedding

import (
	"context"
	"fmt"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
)

// Embedder maps text to a vector of Dimensions() floats. Embed is for
// stored documents, EmbedQuery for search queries; asymmetric models
// encode the two differently. Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	ModelInfo(ctx context.Context) *ModelInfo
	Close() error
}

// ModelInfo reports which model serves embeddings and whether it answers.
type ModelInfo struct {
	Provider   string `json:"provider"`
	Name       string `json:"name"`
	Dimensions int    `json:"dimensions"`
	Available  bool   `json:"available"`
	Error      string `json:"error,omitempty"`
}

// New builds the configured provider wrapped with tracing, retries and a
// circuit breaker.
func New(cfg config.EmbeddingConfig, logger *errors.Logger) (*Service, error) {
	logger.Debug("Initializing embedding provider",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"dimensions", cfg.Dimensions,
		"timeout", cfg.Timeout,
		"max_retries", cfg.MaxRetries)

	var (
		provider Embedder
		err      error
	)
	switch cfg.Provider {
	case config.ProviderGemini:
		provider, err = NewGeminiProvider(cfg, logger)
	case config.ProviderOpenAI:
		provider, err = NewOpenAIProvider(cfg, logger)
	case config.ProviderMock:
		provider = NewMock(cfg.Dimensions)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("Unsupported embedding provider: %s", cfg.Provider), nil)
	}
	if err != nil {
		return nil, errors.NewDependencyError(errors.ErrCodeEmbeddingFailed,
			"Failed to create embedding provider", err)
	}

	return NewService(provider, cfg, logger), nil
}
