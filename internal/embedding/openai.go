package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"cvmatcher/internal/config"
	"cvmatcher/internal/errors"
)

// OpenAIProvider embeds text through any OpenAI-compatible embeddings API,
// such as a local Ollama serving all-minilm.
type OpenAIProvider struct {
	embedder embeddings.Embedder
	model    string
	host     string
	dims     int
	logger   *errors.Logger
}

var _ Embedder = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a langchaingo embedder against cfg.Host.
func NewOpenAIProvider(cfg config.EmbeddingConfig, logger *errors.Logger) (*OpenAIProvider, error) {
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers ignore the token but the client requires one.
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	return &OpenAIProvider{
		embedder: embedder,
		model:    cfg.Model,
		host:     cfg.Host,
		dims:     cfg.Dimensions,
		logger:   logger,
	}, nil
}

// Embed requests a single document embedding.
func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, withStatus(err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned empty result")
	}
	return vectors[0], nil
}

// EmbedQuery requests a query embedding.
func (o *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vector, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, withStatus(err)
	}
	return vector, nil
}

func withStatus(err error) error {
	if code := statusFromMessage(err.Error()); code != 0 {
		return &StatusError{Code: code, Err: err}
	}
	return err
}

func (o *OpenAIProvider) Dimensions() int { return o.dims }

// ModelInfo embeds a short test string to confirm the model answers.
func (o *OpenAIProvider) ModelInfo(ctx context.Context) *ModelInfo {
	info := &ModelInfo{Provider: config.ProviderOpenAI, Name: o.model, Dimensions: o.dims}
	if _, err := o.embedder.EmbedQuery(ctx, "health check"); err != nil {
		info.Error = fmt.Sprintf("Embedding check failed: %v", err)
		o.logger.Warn("Model availability check failed", "model", o.model, "host", o.host, "error", err.Error())
		return info
	}
	info.Available = true
	return info
}

func (o *OpenAIProvider) Close() error { return nil }

// statusFromMessage finds "status code: NNN" in a client error message.
func statusFromMessage(msg string) int {
	const marker = "status code: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return 0
	}
	rest := msg[i+len(marker):]
	end := 0
	for end < len(rest) && end < 3 && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	code, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0
	}
	return code
}
