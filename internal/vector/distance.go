package vector

import (
	"math"
	"sort"

	"forumrag/internal/domain"
)

// Norm returns the Euclidean length of v, accumulated in float64.
func Norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// CosineSimilarity returns dot(a,b)/(|a||b|). A zero-norm operand yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// CosineDistance is 1 - CosineSimilarity. Zero-norm vectors sit at distance 1.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// SortNeighbors orders ns by ascending distance, breaking ties by ascending id.
func SortNeighbors(ns []domain.Neighbor) {
	sort.Slice(ns, func(i, j int) bool { return Less(ns[i], ns[j]) })
}

// Less is the canonical neighbour ordering.
func Less(a, b domain.Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}

// TopK sorts ns and truncates it to at most k entries.
func TopK(ns []domain.Neighbor, k int) []domain.Neighbor {
	if k <= 0 {
		return nil
	}
	SortNeighbors(ns)
	if k < len(ns) {
		ns = ns[:k]
	}
	return ns
}
