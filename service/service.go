// Package service is the command surface shared by the CLI and the HTTP
// server. It turns free-form query text into a vector and forwards work to
// the ingestion controller, the similarity engine and the catalog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/viant/filesearch/catalog"
	"github.com/viant/filesearch/embed"
	"github.com/viant/filesearch/ingest"
	"github.com/viant/filesearch/similarity"
)

// ErrInvalidArgument marks caller mistakes such as a blank directory.
var ErrInvalidArgument = errors.New("invalid argument")

// Catalog is the read/remove side of the catalog used by the service.
type Catalog interface {
	ListMeta(ctx context.Context, limit int) ([]catalog.FileRecord, error)
	Stats(ctx context.Context) (catalog.Stats, error)
	Remove(ctx context.Context, path string) (bool, error)
	Get(ctx context.Context, path string) (catalog.FileRecord, bool, error)
}

// Ingester ingests a directory tree.
type Ingester interface {
	IngestDirectory(ctx context.Context, root string) (ingest.Report, error)
}

// Searcher ranks the corpus against a query vector.
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]similarity.Result, error)
}

// Service wires the components together.
type Service struct {
	catalog  Catalog
	embedder embed.Embedder
	ingester Ingester
	searcher Searcher
	logger   *slog.Logger
}

// New creates a Service. A nil logger discards output.
func New(cat Catalog, embedder embed.Embedder, ingester Ingester, searcher Searcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		catalog:  cat,
		embedder: embedder,
		ingester: ingester,
		searcher: searcher,
		logger:   logger,
	}
}

// Index ingests dir recursively.
func (s *Service) Index(ctx context.Context, dir string) (ingest.Report, error) {
	if strings.TrimSpace(dir) == "" {
		return ingest.Report{}, fmt.Errorf("%w: directory is empty", ErrInvalidArgument)
	}
	return s.ingester.IngestDirectory(ctx, dir)
}

// Search embeds query and returns the topK most similar files. Blank text or
// a query the embedder cannot handle yields an empty, non-nil result.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]similarity.Result, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return []similarity.Result{}, nil
	}
	vec := s.embedder.Embed(ctx, query)
	if len(vec) == 0 {
		s.logger.WarnContext(ctx, "query produced no embedding", "query", query)
		return []similarity.Result{}, nil
	}
	results, err := s.searcher.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []similarity.Result{}
	}
	return results, nil
}

// Recent lists catalog files, most recently modified first. limit <= 0
// lists everything.
func (s *Service) Recent(ctx context.Context, limit int) ([]catalog.FileRecord, error) {
	records, err := s.catalog.ListMeta(ctx, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []catalog.FileRecord{}
	}
	return records, nil
}

// Stats reports catalog totals.
func (s *Service) Stats(ctx context.Context) (catalog.Stats, error) {
	return s.catalog.Stats(ctx)
}

// Lookup returns the catalog record for path, if any.
func (s *Service) Lookup(ctx context.Context, path string) (catalog.FileRecord, bool, error) {
	abs, err := canonical(path)
	if err != nil {
		return catalog.FileRecord{}, false, err
	}
	return s.catalog.Get(ctx, abs)
}

// Forget drops path and its embedding from the catalog.
func (s *Service) Forget(ctx context.Context, path string) (bool, error) {
	abs, err := canonical(path)
	if err != nil {
		return false, err
	}
	removed, err := s.catalog.Remove(ctx, abs)
	if err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "file forgotten", "path", abs, "removed", removed)
	return removed, nil
}

// canonical makes path absolute and resolves symlinks when the file still
// exists, so that it matches what ingestion stored.
func canonical(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is empty", ErrInvalidArgument)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}
