package optim

import (
	"math"

	"github.com/hinagiku/glowflow/tensor"
)

// ClipGradNorm rescales all gradients in place so their global L2 norm does
// not exceed maxNorm, and returns the norm before clipping.
func ClipGradNorm(params []*tensor.Tensor, maxNorm float64) float64 {
	if maxNorm <= 0 {
		return 0
	}
	total := 0.0
	for _, p := range params {
		total += p.GradSquaredSum()
	}
	norm := math.Sqrt(total)
	if norm > maxNorm {
		scale := maxNorm / norm
		for _, p := range params {
			p.ScaleGrad(scale)
		}
	}
	return norm
}
