package tensor

import (
	"sync"

	"golang.org/x/exp/rand"
)

var (
	rngLock sync.Mutex
	rng     = rand.New(rand.NewSource(1))
)

// Seed reseeds the package RNG. Deterministic runs (tests, reproducible
// training) should call this once up front.
func Seed(seed uint64) {
	rngLock.Lock()
	rng = rand.New(rand.NewSource(seed))
	rngLock.Unlock()
}

// Randn returns a tensor filled with standard normal draws.
func Randn(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	data := make([]float64, size)
	rngLock.Lock()
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	rngLock.Unlock()
	return MustNew(data, shape...)
}
