// Package embed provides text embedders.
//
// An Embedder never returns an error: any failure (transport, tokenization,
// oversize input, empty response) is logged and reported as an empty vector,
// which callers treat as "no usable embedding".
package embed

import (
	"context"
	"log/slog"
	"math"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Func adapts a function to Embedder.
type Func func(ctx context.Context, text string) []float32

// Embed calls f.
func (f Func) Embed(ctx context.Context, text string) []float32 { return f(ctx, text) }

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Truncate cuts text to at most maxRunes runes. maxRunes <= 0 disables it.
func Truncate(text string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(text) <= maxRunes {
		return text
	}
	n := 0
	for i := range text {
		if n == maxRunes {
			return text[:i]
		}
		n++
	}
	return text
}

// RateLimited throttles calls to an Embedder, typically a remote API.
type RateLimited struct {
	Embedder Embedder
	Limiter  *rate.Limiter
	Logger   *slog.Logger
}

// NewRateLimited allows perSecond calls with the given burst.
func NewRateLimited(e Embedder, perSecond float64, burst int, logger *slog.Logger) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{Embedder: e, Limiter: rate.NewLimiter(rate.Limit(perSecond), burst), Logger: logger}
}

// Embed waits for a token, then delegates.
func (r *RateLimited) Embed(ctx context.Context, text string) []float32 {
	if err := r.Limiter.Wait(ctx); err != nil {
		if r.Logger != nil {
			r.Logger.DebugContext(ctx, "embed rate limiter wait aborted", "error", err)
		}
		return nil
	}
	return r.Embedder.Embed(ctx, text)
}

func logFailure(ctx context.Context, logger *slog.Logger, provider string, err error) {
	if logger == nil {
		return
	}
	logger.WarnContext(ctx, "embedding failed", "provider", provider, "error", err)
}
