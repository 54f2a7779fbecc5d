package biometric

import (
	"fmt"
	"math"

	"github.com/dmitrijs2005/voicemfa/internal/common"
)

// Cosine returns the cosine similarity of a and b, or 0 when either is
// empty, zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Mean averages vectors component-wise. All vectors must share a length.
func Mean(vectors ...[]float32) ([]float32, error) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, common.Validationf("no vectors to average")
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d", common.ErrProcessing, i+1, len(v), dim)
		}
		for j, x := range v {
			sum[j] += float64(x)
		}
	}
	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / float64(len(vectors)))
	}
	return out, nil
}
