package flows

import (
	"errors"
	"fmt"

	"github.com/hinagiku/glowflow/tensor"
)

// Pipeline composes bijective layers. Forward applies them in declared order,
// Inverse in exact reverse order, since (f∘g)⁻¹ = g⁻¹∘f⁻¹. Both directions
// start from a zero per-sample accumulator, so a round trip yields
// accumulators that cancel.
type Pipeline struct {
	layers []Bijector
}

func NewPipeline(layers ...Bijector) *Pipeline {
	copied := make([]Bijector, len(layers))
	copy(copied, layers)
	return &Pipeline{layers: copied}
}

// NewGlow builds the Glow arrangement: stages of (ActNorm, InvConv,
// AffineCoupling), with the coupling partition alternating by stage parity so
// every channel is transformed somewhere in the pipeline.
func NewGlow(channels, stages, hidden int) *Pipeline {
	if stages <= 0 {
		panic(fmt.Sprintf("flows: invalid stage count %d", stages))
	}
	layers := make([]Bijector, 0, 3*stages)
	for i := 0; i < stages; i++ {
		layers = append(layers,
			NewActNorm(channels),
			NewInvConv(channels),
			NewAffineCoupling(channels, hidden, i%2 != 0),
		)
	}
	return NewPipeline(layers...)
}

// Forward maps a data-space batch to latent space, returning the latent batch
// and the accumulated per-sample log|det J| of the whole composition.
func (p *Pipeline) Forward(x *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, err := pipelineBatch(x)
	if err != nil {
		return nil, nil, err
	}
	state := x
	logdet := tensor.Zeros(batch)
	for i, layer := range p.layers {
		state, logdet, err = layer.Forward(state, logdet)
		if err != nil {
			return nil, nil, fmt.Errorf("flows: layer %d forward: %w", i, err)
		}
	}
	return state, logdet, nil
}

// Inverse maps a latent batch back to data space, traversing the layers in
// reverse and returning the negated log-determinant of the forward pass.
func (p *Pipeline) Inverse(z *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, err := pipelineBatch(z)
	if err != nil {
		return nil, nil, err
	}
	state := z
	logdet := tensor.Zeros(batch)
	for i := len(p.layers) - 1; i >= 0; i-- {
		state, logdet, err = p.layers[i].Inverse(state, logdet)
		if err != nil {
			return nil, nil, fmt.Errorf("flows: layer %d inverse: %w", i, err)
		}
	}
	return state, logdet, nil
}

func (p *Pipeline) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, layer := range p.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

func (p *Pipeline) ZeroGrad() {
	for _, layer := range p.layers {
		layer.ZeroGrad()
	}
}

// Layers returns the composed bijectors in forward order.
func (p *Pipeline) Layers() []Bijector {
	return append([]Bijector(nil), p.layers...)
}

func (p *Pipeline) StateDict(prefix string, state map[string]*tensor.Tensor) {
	for i, layer := range p.layers {
		if s, ok := layer.(Stateful); ok {
			s.StateDict(join(prefix, fmt.Sprintf("%d", i)), state)
		}
	}
}

func (p *Pipeline) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	for i, layer := range p.layers {
		if s, ok := layer.(Stateful); ok {
			if err := s.LoadState(join(prefix, fmt.Sprintf("%d", i)), state); err != nil {
				return err
			}
		}
	}
	return nil
}

// Save writes every stateful layer's tensors to path.
func (p *Pipeline) Save(path string) error {
	state := map[string]*tensor.Tensor{}
	p.StateDict("flow", state)
	if len(state) == 0 {
		return errors.New("flows: pipeline has no state to save")
	}
	return tensor.SaveTensors(path, state)
}

// Load restores a pipeline saved with Save. The receiver must have been
// constructed with the same architecture.
func (p *Pipeline) Load(path string) error {
	state, err := tensor.LoadTensors(path)
	if err != nil {
		return err
	}
	return p.LoadState("flow", state)
}

func pipelineBatch(x *tensor.Tensor) (int, error) {
	shape := x.Shape()
	if len(shape) != 2 {
		return 0, fmt.Errorf("flows: pipeline expects (batch, channels) input, got shape %v", shape)
	}
	return shape[0], nil
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "." + name
}
