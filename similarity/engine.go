// Package similarity ranks catalog files against a query vector.
//
// Search reads the whole corpus from the catalog and ranks it with an
// index.Index built fresh for every query. Snapshot and Rank are pure and
// usable without a catalog.
package similarity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viant/filesearch/catalog"
	"github.com/viant/filesearch/index"
	"github.com/viant/filesearch/index/bruteforce"
)

// Source supplies the corpus. *catalog.Catalog satisfies it.
type Source interface {
	ListAll(ctx context.Context) ([]catalog.Entry, error)
}

// Result is one ranked file.
type Result struct {
	FileID    int64   `json:"fileId"`
	Path      string  `json:"path"`
	Name      string  `json:"name"`
	Extension string  `json:"extension"`
	Score     float64 `json:"score"`
}

// Engine is the similarity search engine.
type Engine struct {
	source   Source
	newIndex func() index.Index
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithIndex replaces the brute-force cosine index with another implementation.
func WithIndex(newIndex func() index.Index) Option {
	return func(e *Engine) {
		if newIndex != nil {
			e.newIndex = newIndex
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an Engine reading from source.
func New(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		newIndex: func() index.Index { return bruteforce.New() },
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns up to topK files ordered by descending score, ties by
// ascending path. An empty corpus or topK <= 0 yields an empty result.
func (e *Engine) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK <= 0 || len(query) == 0 {
		return nil, nil
	}
	entries, err := e.source.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("similarity: load corpus: %w", err)
	}
	results, err := Rank(Snapshot(entries), query, topK, e.newIndex())
	if err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "search completed", "k", topK, "corpus", len(entries), "results", len(results))
	return results, nil
}

// Snapshot keeps the entries that carry a vector.
func Snapshot(entries []catalog.Entry) []index.Item {
	items := make([]index.Item, 0, len(entries))
	for _, en := range entries {
		if !en.HasVector || len(en.Vector) == 0 {
			continue
		}
		items = append(items, index.Item{
			ID:        en.File.ID,
			Path:      en.File.Path,
			Name:      en.File.Name,
			Extension: en.File.Extension,
			Vector:    en.Vector,
		})
	}
	return items
}

// Rank builds idx over items and returns the top-k results for query.
func Rank(items []index.Item, query []float32, topK int, idx index.Index) ([]Result, error) {
	if topK <= 0 || len(items) == 0 {
		return nil, nil
	}
	if err := idx.Build(items); err != nil {
		return nil, fmt.Errorf("similarity: build index: %w", err)
	}
	hits, err := idx.Query(query, topK)
	if err != nil {
		return nil, fmt.Errorf("similarity: query index: %w", err)
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			FileID:    h.ID,
			Path:      h.Path,
			Name:      h.Name,
			Extension: h.Extension,
			Score:     h.Score,
		}
	}
	return results, nil
}
