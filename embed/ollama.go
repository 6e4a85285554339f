package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// OllamaConfig holds the configuration for an Ollama embed endpoint.
type OllamaConfig struct {
	BaseURL  string // e.g. http://localhost:11434
	Model    string // e.g. bge-m3, nomic-embed-text
	Token    string // Bearer token for hosted Ollama (empty = no auth)
	MaxChars int    // input truncation, 0 = none
}

// Ollama embeds text through the Ollama REST API (/api/embed).
type Ollama struct {
	cfg        OllamaConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllama creates an Ollama-backed embedder.
func NewOllama(cfg OllamaConfig, httpClient *http.Client, logger *slog.Logger) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Ollama{cfg: cfg, httpClient: httpClient, logger: logger}
}

// Embed implements Embedder.
func (o *Ollama) Embed(ctx context.Context, text string) []float32 {
	vec, err := o.embed(ctx, Truncate(text, o.cfg.MaxChars))
	if err != nil {
		logFailure(ctx, o.logger, "ollama", err)
		return nil
	}
	return vec
}

func (o *Ollama) embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"model": o.cfg.Model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	url := strings.TrimRight(o.cfg.BaseURL, "/") + "/api/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: read body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama embed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("ollama embed decode: %w", err)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response")
	}
	return out.Embeddings[0], nil
}
