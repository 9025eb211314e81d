package embedding

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
)

// GeminiProvider embeds text with the Gemini embedding API.
type GeminiProvider struct {
	client *genai.Client
	model  string
	dims   int
	logger *errors.Logger
}

var _ Embedder = (*GeminiProvider)(nil)

// NewGeminiProvider creates a client for cfg.Model.
func NewGeminiProvider(cfg config.EmbeddingConfig, logger *errors.Logger) (*GeminiProvider, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.Host != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.Host
	}
	client, err := genai.NewClient(context.Background(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		model:  cfg.Model,
		dims:   cfg.Dimensions,
		logger: logger,
	}, nil
}

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embed embeds a document for storage.
func (g *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskRetrievalDocument)
}

// EmbedQuery embeds a search query.
func (g *GeminiProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, taskRetrievalQuery)
}

// embed requests a single embedding truncated to the configured size.
func (g *GeminiProvider) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	embedConfig := &genai.EmbedContentConfig{TaskType: taskType}
	if g.dims > 0 {
		dims := int32(g.dims)
		embedConfig.OutputDimensionality = &dims
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, genai.Text(text), embedConfig)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini returned no embeddings")
	}
	return resp.Embeddings[0].Values, nil
}

func (g *GeminiProvider) Dimensions() int { return g.dims }

// ModelInfo checks that the configured model is reachable.
func (g *GeminiProvider) ModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Provider: config.ProviderGemini, Name: g.model, Dimensions: g.dims}

	model, err := g.client.Models.Get(ctx, g.model, &genai.GetModelConfig{})
	if err != nil {
		info.Error = fmt.Sprintf("Failed to get model info: %v", err)
		g.logger.Warn("Model availability check failed", "model", g.model, "error", err.Error())
		return info
	}
	info.Available = true
	if model.DisplayName != "" {
		info.Name = model.DisplayName
	}
	return info
}

func (g *GeminiProvider) Close() error {
	return nil
}
