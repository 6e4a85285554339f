package embed

import (
	"context"
	"errors"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string // empty = api.openai.com
	Model    string // default text-embedding-3-small
	MaxChars int
}

// OpenAI embeds text with the OpenAI embeddings API.
type OpenAI struct {
	client   *openai.Client
	model    string
	maxChars int
	logger   *slog.Logger
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(cfg OpenAIConfig, logger *slog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("embed: OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		logger:   logger,
	}, nil
}

// Embed implements Embedder. Vectors are L2-normalized.
func (e *OpenAI) Embed(ctx context.Context, text string) []float32 {
	if text == "" {
		return nil
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{Truncate(text, e.maxChars)},
	})
	if err != nil {
		logFailure(ctx, e.logger, "openai", err)
		return nil
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		logFailure(ctx, e.logger, "openai", errors.New("no embedding data returned"))
		return nil
	}
	raw := resp.Data[0].Embedding
	v := make([]float32, len(raw))
	for i := range raw {
		v[i] = float32(raw[i])
	}
	Normalize(v)
	return v
}
