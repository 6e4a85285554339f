package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Hash is a deterministic, offline embedder based on feature hashing of
// lower-cased word tokens. It has no notion of meaning beyond shared words
// but needs no model, which makes it handy for tests and air-gapped use.
type Hash struct {
	Dim int
}

// NewHash returns a Hash embedder producing dim-dimensional vectors.
func NewHash(dim int) Hash { return Hash{Dim: dim} }

// Embed implements Embedder. Text without any word token yields nil.
func (h Hash) Embed(_ context.Context, text string) []float32 {
	if h.Dim <= 0 {
		return nil
	}
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil
	}
	vec := make([]float32, h.Dim)
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.Dim))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	Normalize(vec)
	return vec
}
