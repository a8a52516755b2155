package nn

import (
	"fmt"
	"math"

	"github.com/hinagiku/glowflow/tensor"
)

// Linear is a fully connected layer over (batch, features) inputs.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *tensor.Tensor
	bias        *tensor.Tensor
}

func NewLinear(inFeatures, outFeatures int) *Linear {
	w := tensor.Randn(outFeatures, inFeatures)
	w.Scale(math.Sqrt(2.0 / float64(inFeatures+outFeatures)))
	w.SetRequiresGrad(true)
	b := tensor.Zeros(outFeatures)
	b.SetRequiresGrad(true)
	return &Linear{inFeatures: inFeatures, outFeatures: outFeatures, weight: w, bias: b}
}

func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		return nil, fmt.Errorf("nn: Linear expects (batch, %d) input, got %v", l.inFeatures, shape)
	}
	wt, err := tensor.Transpose(l.weight)
	if err != nil {
		return nil, err
	}
	out, err := tensor.MatMul(input, wt)
	if err != nil {
		return nil, err
	}
	return tensor.AddRows(out, l.bias)
}

func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.weight, l.bias}
}

func (l *Linear) ZeroGrad() {
	l.weight.ZeroGrad()
	l.bias.ZeroGrad()
}

func (l *Linear) Weight() *tensor.Tensor { return l.weight }

func (l *Linear) Bias() *tensor.Tensor { return l.bias }

func (l *Linear) StateDict(prefix string, state map[string]*tensor.Tensor) {
	if state == nil {
		return
	}
	state[JoinPrefix(prefix, "weight")] = l.weight.Clone()
	state[JoinPrefix(prefix, "bias")] = l.bias.Clone()
}

func (l *Linear) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	for _, item := range []struct {
		name string
		dst  *tensor.Tensor
	}{
		{"weight", l.weight},
		{"bias", l.bias},
	} {
		key := JoinPrefix(prefix, item.name)
		src, ok := state[key]
		if !ok {
			return fmt.Errorf("nn: Linear missing %s", key)
		}
		if err := tensor.CopyInto(item.dst, src); err != nil {
			return fmt.Errorf("nn: load %s: %w", key, err)
		}
	}
	return nil
}
