package flows

import (
	"fmt"

	"github.com/hinagiku/glowflow/nn"
	"github.com/hinagiku/glowflow/tensor"
)

// AffineCoupling transforms one half of the channels with a scale and shift
// predicted from the other half, which passes through untouched. Because only
// half the channels change per layer, consecutive layers must flip which half
// is conditioned on (the odd flag); a pipeline that never alternates would
// leave half its channels untransformed everywhere.
//
// The partition interleaves channel indices (even positions vs odd positions)
// rather than splitting contiguously, so neighbouring channels land in
// different halves.
type AffineCoupling struct {
	channels  int
	odd       bool
	keepIdx   []int // conditioning half, passes through unchanged
	changeIdx []int // transformed half
	net       *nn.Sequential
}

// NewAffineCoupling builds a coupling layer whose conditioner is a small
// tanh MLP mapping the kept half to a scale/shift pair for the other half.
// When odd is true the odd-position channels are the kept half.
func NewAffineCoupling(channels, hidden int, odd bool) *AffineCoupling {
	if channels < 2 {
		panic(fmt.Sprintf("flows: coupling requires at least 2 channels, got %d", channels))
	}
	if hidden <= 0 {
		panic(fmt.Sprintf("flows: invalid hidden width %d", hidden))
	}
	var even, oddIdx []int
	for j := 0; j < channels; j++ {
		if j%2 == 0 {
			even = append(even, j)
		} else {
			oddIdx = append(oddIdx, j)
		}
	}
	keep, change := even, oddIdx
	if odd {
		keep, change = oddIdx, even
	}
	net := nn.NewSequential(
		nn.NewLinear(len(keep), hidden),
		nn.Tanh(),
		nn.NewLinear(hidden, hidden),
		nn.Tanh(),
		nn.NewLinear(hidden, 2*len(change)),
	)
	return &AffineCoupling{
		channels:  channels,
		odd:       odd,
		keepIdx:   keep,
		changeIdx: change,
		net:       net,
	}
}

// condition runs the conditioner on the kept half and returns the
// tanh-squashed log-scale and the shift for the transformed half.
func (c *AffineCoupling) condition(kept *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	h, err := c.net.Forward(kept)
	if err != nil {
		return nil, nil, err
	}
	parts, err := tensor.Chunk(h, 2)
	if err != nil {
		return nil, nil, err
	}
	// squashing keeps exp(s) within [e⁻¹, e], which stops the scale from
	// blowing up early in training
	return tensor.Tanh(parts[0]), parts[1], nil
}

func (c *AffineCoupling) Forward(x, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	if _, err := checkBatch(x, logdet, c.channels); err != nil {
		return nil, nil, err
	}
	kept, err := tensor.SelectChannels(x, c.keepIdx)
	if err != nil {
		return nil, nil, err
	}
	rest, err := tensor.SelectChannels(x, c.changeIdx)
	if err != nil {
		return nil, nil, err
	}
	scale, shift, err := c.condition(kept)
	if err != nil {
		return nil, nil, err
	}
	scaled, err := tensor.Mul(rest, tensor.Exp(scale))
	if err != nil {
		return nil, nil, err
	}
	transformed, err := tensor.Add(scaled, shift)
	if err != nil {
		return nil, nil, err
	}
	y, err := tensor.MergeChannels(c.channels, c.keepIdx, kept, c.changeIdx, transformed)
	if err != nil {
		return nil, nil, err
	}
	contrib, err := tensor.SumRows(scale)
	if err != nil {
		return nil, nil, err
	}
	outDet, err := tensor.Add(logdet, contrib)
	if err != nil {
		return nil, nil, err
	}
	return y, outDet, nil
}

// Inverse recovers x from y using the same conditioner output (the kept half
// is unchanged, so the scale and shift are recomputable). Runs on detached
// tensors; no gradients flow.
func (c *AffineCoupling) Inverse(y, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, err := checkBatch(y, logdet, c.channels)
	if err != nil {
		return nil, nil, err
	}
	kept, err := tensor.SelectChannels(y.Detach(), c.keepIdx)
	if err != nil {
		return nil, nil, err
	}
	transformed, err := tensor.SelectChannels(y.Detach(), c.changeIdx)
	if err != nil {
		return nil, nil, err
	}
	scale, shift, err := c.condition(kept)
	if err != nil {
		return nil, nil, err
	}
	unshifted, err := tensor.Sub(transformed, shift)
	if err != nil {
		return nil, nil, err
	}
	rest, err := tensor.Mul(unshifted, tensor.Exp(tensor.MulScalar(scale, -1)))
	if err != nil {
		return nil, nil, err
	}
	x, err := tensor.MergeChannels(c.channels, c.keepIdx, kept, c.changeIdx, rest)
	if err != nil {
		return nil, nil, err
	}
	scaleData := scale.Data()
	width := len(c.changeIdx)
	detData := logdet.Data()
	for b := 0; b < batch; b++ {
		sum := 0.0
		for k := 0; k < width; k++ {
			sum += scaleData[b*width+k]
		}
		detData[b] -= sum
	}
	return x.Detach(), tensor.MustNew(detData, batch), nil
}

func (c *AffineCoupling) Parameters() []*tensor.Tensor {
	return c.net.Parameters()
}

func (c *AffineCoupling) ZeroGrad() {
	c.net.ZeroGrad()
}

// KeepIndices returns a copy of the conditioning-half channel indices.
func (c *AffineCoupling) KeepIndices() []int {
	return append([]int(nil), c.keepIdx...)
}

func (c *AffineCoupling) StateDict(prefix string, state map[string]*tensor.Tensor) {
	c.net.StateDict(join(prefix, "net"), state)
}

func (c *AffineCoupling) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	return c.net.LoadState(join(prefix, "net"), state)
}
