// Package flows implements invertible transforms for exact-likelihood
// generative modeling. Every layer is a bijection over (batch, channels)
// tensors that threads a per-sample log-determinant accumulator through both
// directions: Forward adds each layer's log|det J| contribution, Inverse
// subtracts it, so a forward/inverse round trip returns both the input batch
// and a zero accumulator up to floating-point error.
package flows

import (
	"fmt"

	"github.com/hinagiku/glowflow/tensor"
)

// Bijector is an invertible transform. Inverse must be the exact mathematical
// inverse of Forward, and for any contribution c added to the accumulator by
// Forward, Inverse must subtract the same c when fed Forward's output.
// The inverse path is evaluation-only and never tracks gradients.
type Bijector interface {
	Forward(x, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error)
	Inverse(y, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	ZeroGrad()
}

// Stateful is a Bijector whose tensors round-trip through a flat state map,
// mirroring nn.StatefulModule.
type Stateful interface {
	Bijector
	StateDict(prefix string, state map[string]*tensor.Tensor)
	LoadState(prefix string, state map[string]*tensor.Tensor) error
}

func checkBatch(x, logdet *tensor.Tensor, channels int) (int, error) {
	shape := x.Shape()
	if len(shape) != 2 {
		return 0, fmt.Errorf("flows: expected (batch, channels) input, got shape %v", shape)
	}
	if shape[1] != channels {
		return 0, fmt.Errorf("flows: expected %d channels, got %d", channels, shape[1])
	}
	ldShape := logdet.Shape()
	if len(ldShape) != 1 || ldShape[0] != shape[0] {
		return 0, fmt.Errorf("flows: logdet accumulator shape %v does not match batch %d", ldShape, shape[0])
	}
	return shape[0], nil
}
