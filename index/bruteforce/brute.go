package bruteforce

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/viant/filesearch/index"
	"github.com/viant/filesearch/vector"
)

// Metric selects how a query is scored against an item.
type Metric string

const (
	// Cosine scores by cosine similarity in [-1, 1].
	Cosine Metric = "cosine"
	// Euclidean scores by 1/(1+d) where d is the L2 distance, in (0, 1].
	Euclidean Metric = "euclidean"
)

// ParseMetric maps a configuration string to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cos", "cosine":
		return Cosine, nil
	case "l2", "euclidean":
		return Euclidean, nil
	}
	return "", fmt.Errorf("bruteforce: unknown metric %q", s)
}

// Index is a brute-force vector index. Magnitudes are precomputed at Build
// time; everything else is recomputed per query.
type Index struct {
	metric Metric
	items  []index.Item
	mags   []float64
}

// Option configures an Index.
type Option func(*Index)

// WithMetric selects the scoring metric. The default is Cosine.
func WithMetric(m Metric) Option {
	return func(i *Index) { i.metric = m }
}

// New returns an empty index.
func New(opts ...Option) *Index {
	i := &Index{metric: Cosine}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Build loads items and precomputes magnitudes.
func (i *Index) Build(items []index.Item) error {
	mags := make([]float64, len(items))
	for j := range items {
		if len(items[j].Vector) == 0 {
			return fmt.Errorf("bruteforce: item %d (%s) has no vector", items[j].ID, items[j].Path)
		}
		mags[j] = vector.Magnitude(items[j].Vector)
	}
	i.items = append([]index.Item(nil), items...)
	i.mags = mags
	return nil
}

// Query returns the top-k items. Items whose dimension differs from the
// query are skipped.
func (i *Index) Query(query []float32, k int) ([]index.Hit, error) {
	if k <= 0 || len(i.items) == 0 || len(query) == 0 {
		return nil, nil
	}
	qm := vector.Magnitude(query)
	hits := make([]index.Hit, 0, len(i.items))
	for j, item := range i.items {
		if len(item.Vector) != len(query) {
			continue
		}
		s, err := i.score(query, qm, item.Vector, i.mags[j])
		if err != nil {
			return nil, err
		}
		if math.IsNaN(s) {
			s = 0
		}
		hits = append(hits, index.Hit{Item: item, Score: s})
	}
	slices.SortFunc(hits, compareHits)
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func (i *Index) score(query []float32, qm float64, v []float32, vm float64) (float64, error) {
	switch i.metric {
	case Euclidean:
		d, err := vector.L2Distance(query, v)
		if err != nil {
			return 0, err
		}
		return 1 / (1 + d), nil
	default:
		return vector.CosineWithNorms(query, v, qm, vm), nil
	}
}

// compareHits orders by descending score, then ascending path, then id.
func compareHits(a, b index.Hit) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	if c := strings.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

var _ index.Index = (*Index)(nil)
