package vector

import "math"

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cos(a, b), in [0, 2]. Lower is closer.
// A zero vector is treated as orthogonal to everything.
func CosineDistance(a, b []float32) float64 {
	return cosineDistance(a, b, L2Norm(a), L2Norm(b))
}

// cosineDistance is CosineDistance with precomputed norms.
func cosineDistance(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 1
	}
	cos := InnerProduct(a, b) / (na * nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return 1 - cos
}
