package index

// Item is a single indexed file: its catalog id, the presentation fields
// carried into results, and its embedding.
type Item struct {
	ID        int64
	Path      string
	Name      string
	Extension string
	Vector    []float32
}

// Hit is a ranked Item. Higher Score means more similar.
type Hit struct {
	Item
	Score float64
}

// Index defines a vector index over an immutable set of items.
type Index interface {
	// Build replaces the indexed items. Items must not be modified afterwards.
	Build(items []Item) error

	// Query returns up to k hits ordered by descending score, ties broken by
	// ascending path. k <= 0 returns no hits.
	Query(query []float32, k int) ([]Hit, error)
}
