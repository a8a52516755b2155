// Package data provides the toy 2D target distributions the flows are
// trained on.
package data

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/hinagiku/glowflow/tensor"
)

// Moons samples n points from the two-moons distribution: two interleaving
// half circles, centered on the origin, with isotropic Gaussian noise of the
// given standard deviation. Points alternate between the two arcs so any
// prefix of the batch stays balanced.
func Moons(n int, noise float64, rng *rand.Rand) (*tensor.Tensor, error) {
	if n <= 0 {
		return nil, fmt.Errorf("data: invalid sample count %d", n)
	}
	if noise < 0 {
		return nil, fmt.Errorf("data: negative noise %v", noise)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Uint64()))
	}
	points := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		theta := rng.Float64() * math.Pi
		var x, y float64
		if i%2 == 0 {
			// upper arc
			x = math.Cos(theta)
			y = math.Sin(theta)
		} else {
			// lower arc, shifted to interleave
			x = 1 - math.Cos(theta)
			y = 0.5 - math.Sin(theta)
		}
		// center the joint distribution on the origin
		x -= 0.5
		y -= 0.25
		if noise > 0 {
			x += rng.NormFloat64() * noise
			y += rng.NormFloat64() * noise
		}
		points[2*i] = x
		points[2*i+1] = y
	}
	return tensor.New(points, n, 2)
}
