package event

import "math"

// UnitNormTolerance bounds |‖e‖₂ − 1| for embeddings accepted on the wire.
const UnitNormTolerance = 1e-5

// Norm returns the L2 norm of vec.
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales vec in place to unit L2 norm. Zero vectors are left
// untouched.
func Normalize(vec []float32) {
	n := Norm(vec)
	if n == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / n)
	}
}

// IsUnitNorm reports whether vec satisfies the embedding invariant.
func IsUnitNorm(vec []float32) bool {
	return math.Abs(Norm(vec)-1) < UnitNormTolerance
}

// Cosine returns the cosine similarity of two vectors. Inputs are
// expected to be unit-normalized, making this a plain dot product.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
