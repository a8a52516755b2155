// Package nn provides the small feed-forward building blocks used by the
// coupling-layer conditioner networks.
package nn

import (
	"github.com/hinagiku/glowflow/tensor"
)

type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor
	ZeroGrad()
}

// StatefulModule is a Module whose tensors can be captured into and restored
// from a flat name-to-tensor map.
type StatefulModule interface {
	Module
	StateDict(prefix string, state map[string]*tensor.Tensor)
	LoadState(prefix string, state map[string]*tensor.Tensor) error
}

func JoinPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}
