package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/viant/filesearch/catalog"
	"github.com/viant/filesearch/embed"
	"github.com/viant/filesearch/extract"
	"golang.org/x/sync/errgroup"
)

// DefaultExtensions are the file types ingested when no filter is configured.
var DefaultExtensions = []string{".txt", ".md", ".pdf", ".png", ".jpg", ".jpeg"}

// Store is the part of the catalog the controller writes through.
type Store interface {
	IsStale(ctx context.Context, path string, modified int64) (bool, error)
	Put(ctx context.Context, info catalog.FileInfo, vec []float32) (catalog.PutResult, error)
	Dimension() int
}

// FileError records why a single file was skipped.
type FileError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Report summarises one ingestion run. Every discovered file lands in exactly
// one of Embedded, SkippedUnchanged, SkippedEmpty or SkippedFailed unless the
// run was cancelled before reaching it. Updated is a subset of Embedded.
type Report struct {
	Discovered       int         `json:"discovered"`
	Embedded         int         `json:"embedded"`
	Updated          int         `json:"updated"`
	SkippedUnchanged int         `json:"skippedUnchanged"`
	SkippedEmpty     int         `json:"skippedEmpty"`
	SkippedFailed    int         `json:"skippedFailed"`
	Errors           []FileError `json:"errors,omitempty"`
}

type outcome int

const (
	outcomeEmbedded outcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeEmpty
	outcomeFailed
)

// Controller walks directories and keeps the catalog in sync with them.
type Controller struct {
	store      Store
	extractor  extract.Extractor
	embedder   embed.Embedder
	extensions map[string]bool
	workers    int
	logger     *slog.Logger
}

type options struct {
	extensions []string
	workers    int
	rate       float64
	burst      int
	logger     *slog.Logger
}

// Option configures a Controller.
type Option func(*options)

// WithExtensions restricts ingestion to the given extensions (case-insensitive,
// with or without the leading dot). An empty list admits every regular file.
func WithExtensions(exts ...string) Option {
	return func(o *options) { o.extensions = exts }
}

// WithWorkers sets how many files are processed concurrently.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRateLimit caps embedder calls to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		o.rate = perSecond
		o.burst = burst
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a Controller.
func New(store Store, extractor extract.Extractor, embedder embed.Embedder, opts ...Option) *Controller {
	o := &options{
		extensions: DefaultExtensions,
		workers:    1,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.workers < 1 {
		o.workers = 1
	}
	if o.rate > 0 {
		embedder = embed.NewRateLimited(embedder, o.rate, o.burst, o.logger)
	}
	var exts map[string]bool
	if len(o.extensions) > 0 {
		exts = make(map[string]bool, len(o.extensions))
		for _, e := range o.extensions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts[e] = true
		}
	}
	return &Controller{
		store:      store,
		extractor:  extractor,
		embedder:   embedder,
		extensions: exts,
		workers:    o.workers,
		logger:     o.logger,
	}
}

// IngestDirectory scans root recursively and ingests every admitted file
// whose on-disk modification time is newer than the catalog's.
//
// Per-file failures are counted and recorded in the report; they never
// abort the run. Cancellation is observed between files: the partial report
// is returned together with ctx.Err().
func (c *Controller) IngestDirectory(ctx context.Context, root string) (Report, error) {
	var report Report
	files, err := c.discover(ctx, root)
	if err != nil {
		return report, err
	}
	report.Discovered = len(files)
	c.logger.InfoContext(ctx, "ingest started", "root", root, "files", len(files), "workers", c.workers)

	var mu sync.Mutex
	record := func(path string, out outcome, cause error) {
		mu.Lock()
		defer mu.Unlock()
		switch out {
		case outcomeEmbedded:
			report.Embedded++
		case outcomeUpdated:
			report.Embedded++
			report.Updated++
		case outcomeUnchanged:
			report.SkippedUnchanged++
		case outcomeEmpty:
			report.SkippedEmpty++
		case outcomeFailed:
			report.SkippedFailed++
		}
		if cause != nil {
			report.Errors = append(report.Errors, FileError{Path: path, Err: cause.Error()})
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			// A started file runs to completion even if the run is cancelled.
			out, cause := c.ingestFile(context.WithoutCancel(ctx), path)
			record(path, out, cause)
			return nil
		})
	}
	_ = g.Wait()

	c.logger.InfoContext(ctx, "ingest finished", "root", root,
		"discovered", report.Discovered, "embedded", report.Embedded, "updated", report.Updated,
		"unchanged", report.SkippedUnchanged, "empty", report.SkippedEmpty, "failed", report.SkippedFailed)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// discover lists admitted regular files under root in lexical order.
func (c *Controller) discover(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is not a directory", root)
	}
	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			c.logger.WarnContext(ctx, "ingest: skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !c.admits(path) {
			return nil
		}
		if d.Type().IsRegular() || d.Type()&fs.ModeSymlink != 0 {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", root, err)
	}
	return files, nil
}

func (c *Controller) admits(path string) bool {
	if c.extensions == nil {
		return true
	}
	return c.extensions[strings.ToLower(filepath.Ext(path))]
}

func (c *Controller) ingestFile(ctx context.Context, path string) (out outcome, cause error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "ingest: panic while processing file", "path", path, "panic", r)
			out, cause = outcomeFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	canonical, modified, err := resolve(path)
	if err != nil {
		c.logger.WarnContext(ctx, "ingest: cannot resolve file", "path", path, "error", err)
		return outcomeFailed, err
	}
	stale, err := c.store.IsStale(ctx, canonical, modified)
	if err != nil {
		c.logger.WarnContext(ctx, "ingest: staleness check failed", "path", canonical, "error", err)
		return outcomeFailed, err
	}
	if !stale {
		return outcomeUnchanged, nil
	}

	text := c.extractor.Extract(ctx, canonical)
	if text == "" {
		c.logger.DebugContext(ctx, "ingest: no text extracted", "path", canonical)
		return outcomeEmpty, nil
	}
	vec := c.embedder.Embed(ctx, text)
	if len(vec) == 0 {
		return outcomeFailed, errors.New("embedding is empty")
	}
	if dim := c.store.Dimension(); dim > 0 && len(vec) != dim {
		return outcomeFailed, &catalog.DimensionMismatchError{Expected: dim, Actual: len(vec)}
	}

	res, err := c.store.Put(ctx, catalog.FileInfo{
		Path:         canonical,
		Name:         filepath.Base(canonical),
		Extension:    strings.ToLower(filepath.Ext(canonical)),
		LastModified: modified,
	}, vec)
	if err != nil {
		c.logger.WarnContext(ctx, "ingest: store failed", "path", canonical, "error", err)
		return outcomeFailed, err
	}
	switch {
	case res.Skipped:
		return outcomeUnchanged, nil
	case res.Updated:
		c.logger.DebugContext(ctx, "ingest: updated", "path", canonical, "id", res.ID)
		return outcomeUpdated, nil
	default:
		c.logger.DebugContext(ctx, "ingest: embedded", "path", canonical, "id", res.ID)
		return outcomeEmbedded, nil
	}
}

// resolve returns the absolute, symlink-free path and its modification time
// in Unix seconds.
func resolve(path string) (string, int64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", 0, err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", 0, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return "", 0, err
	}
	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("%s is not a regular file", canonical)
	}
	return canonical, info.ModTime().Unix(), nil
}
