// Package loss provides the flow training objective and the latent base
// distribution it is measured against.
package loss

import (
	"fmt"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/hinagiku/glowflow/tensor"
)

// BaseDistribution is any latent distribution with a log-density and a
// sampler. gonum's distmv.Normal satisfies it directly.
type BaseDistribution interface {
	Dim() int
	LogProb(x []float64) float64
	Rand(x []float64) []float64
}

// NewStandardNormal returns the dim-dimensional standard multivariate normal.
// A nil src falls back to the global RNG.
func NewStandardNormal(dim int, src rand.Source) (BaseDistribution, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("loss: invalid base dimension %d", dim)
	}
	mu := make([]float64, dim)
	identity := make([]float64, dim*dim)
	for i := 0; i < dim; i++ {
		identity[i*dim+i] = 1
	}
	normal, ok := distmv.NewNormal(mu, mat.NewSymDense(dim, identity), src)
	if !ok {
		return nil, fmt.Errorf("loss: failed to construct %d-dimensional standard normal", dim)
	}
	return normal, nil
}

// SampleBase draws n samples from base as an (n, dim) tensor.
func SampleBase(base BaseDistribution, n int) (*tensor.Tensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("loss: invalid sample count %d", n)
	}
	dim := base.Dim()
	data := make([]float64, n*dim)
	buf := make([]float64, dim)
	for i := 0; i < n; i++ {
		base.Rand(buf)
		copy(data[i*dim:(i+1)*dim], buf)
	}
	return tensor.New(data, n, dim)
}
