// Package extract turns files into plain text for embedding.
//
// Extractors never fail: unsupported, unreadable or empty content yields the
// empty string, which the ingestion controller counts as a skip.
package extract

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultMaxBytes caps how much of a text file is read.
const DefaultMaxBytes = 4 << 20

// Extractor extracts text from the file at path.
type Extractor interface {
	Extract(ctx context.Context, path string) string
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, path string) string

// Extract calls f.
func (f Func) Extract(ctx context.Context, path string) string { return f(ctx, path) }

// Plain reads UTF-8 text files. Invalid byte sequences are dropped.
type Plain struct {
	MaxBytes int64
}

// Extract implements Extractor.
func (p Plain) Extract(_ context.Context, path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	limit := p.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(f, limit))
	if err != nil {
		return ""
	}
	return clean(data)
}

// Command runs an external converter that writes the extracted text to
// stdout, e.g. pdftotext or tesseract.
type Command struct {
	Name   string
	Args   func(path string) []string
	Logger *slog.Logger
}

// Extract implements Extractor.
func (c Command) Extract(ctx context.Context, path string) string {
	cmd := exec.CommandContext(ctx, c.Name, c.Args(path)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if c.Logger != nil {
			c.Logger.DebugContext(ctx, "extractor command failed", "command", c.Name, "path", path,
				"error", err, "stderr", strings.TrimSpace(stderr.String()))
		}
		return ""
	}
	return clean(out)
}

// PDF extracts text with `pdftotext <file> -`.
func PDF(logger *slog.Logger) Command {
	return Command{
		Name:   "pdftotext",
		Args:   func(path string) []string { return []string{path, "-"} },
		Logger: logger,
	}
}

// Image runs OCR with `tesseract <file> stdout`.
func Image(logger *slog.Logger) Command {
	return Command{
		Name:   "tesseract",
		Args:   func(path string) []string { return []string{path, "stdout"} },
		Logger: logger,
	}
}

// ByExtension dispatches on the lower-cased file extension (with the dot).
type ByExtension map[string]Extractor

// Extract implements Extractor.
func (b ByExtension) Extract(ctx context.Context, path string) string {
	ext, ok := b[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return ""
	}
	return ext.Extract(ctx, path)
}

// Extensions lists the registered extensions, sorted.
func (b ByExtension) Extensions() []string {
	out := make([]string, 0, len(b))
	for ext := range b {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// Default returns the stock registry: text and markdown read directly, PDFs
// through pdftotext, images through tesseract.
func Default(logger *slog.Logger) ByExtension {
	plain := Plain{}
	pdf := PDF(logger)
	img := Image(logger)
	return ByExtension{
		".txt":  plain,
		".md":   plain,
		".pdf":  pdf,
		".png":  img,
		".jpg":  img,
		".jpeg": img,
	}
}

func clean(data []byte) string {
	text := strings.ToValidUTF8(string(data), "")
	if strings.TrimSpace(text) == "" {
		return ""
	}
	return text
}
