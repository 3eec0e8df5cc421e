package embedding

import (
	"fmt"
	"math"
)

// CosineSimilarity is dot(a,b)/(|a||b|). A zero vector on either side gives
// 0; vectors of different length are an error.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Rounding can push identical vectors just past 1.
	return math.Max(-1, math.Min(1, sim)), nil
}

type weighted struct {
	vec    []float32
	weight float64
}

// combine returns sum(weight*vec)/n over the non-empty inputs.
func combine(parts ...weighted) ([]float32, error) {
	var out []float64
	n := 0
	for _, p := range parts {
		if len(p.vec) == 0 {
			continue
		}
		if out == nil {
			out = make([]float64, len(p.vec))
		}
		if len(p.vec) != len(out) {
			return nil, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(p.vec), len(out))
		}
		for i, v := range p.vec {
			out[i] += float64(v) * p.weight
		}
		n++
	}
	if n == 0 {
		return nil, nil
	}
	res := make([]float32, len(out))
	for i, v := range out {
		res[i] = float32(v / float64(n))
	}
	return res, nil
}
