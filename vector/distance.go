package vector

import (
	"fmt"
	"math"

	"github.com/viant/vec/search"
)

// CosineSimilarity computes the cosine similarity between two vectors in
// float64. It is 0 when the vectors have different lengths, are empty, or
// either has zero magnitude, so degenerate rows rank last instead of failing
// a whole query.
func CosineSimilarity(a, b []float32) float64 {
	return CosineWithNorms(a, b, Magnitude(a), Magnitude(b))
}

// CosineWithNorms is CosineSimilarity with the magnitudes of a and b
// supplied by the caller, so a scan can compute each norm once.
func CosineWithNorms(a, b []float32, na, nb float64) float64 {
	if len(a) != len(b) || len(a) == 0 || na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}

// Magnitude returns the Euclidean norm of v.
func Magnitude(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// L2Distance computes the Euclidean (L2) distance between two vectors. It
// returns an error if the vectors have different lengths.
func L2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector: L2 distance dimension mismatch: %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	return float64(search.Float32s(a).EuclideanDistance(b)), nil
}
