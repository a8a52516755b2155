package flows

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/hinagiku/glowflow/tensor"
)

// ActNorm is a per-channel affine bijection y = (x + bias) · exp(logScale).
// Both parameters are data-dependently initialized from the first batch seen
// so that its output has zero mean and unit variance per channel; after that
// they are ordinary trainable parameters. The Jacobian is diagonal, so the
// log-determinant contribution is sum(logScale) per sample.
type ActNorm struct {
	channels    int
	bias        *tensor.Tensor
	logScale    *tensor.Tensor
	initialized bool
}

func NewActNorm(channels int) *ActNorm {
	if channels <= 0 {
		panic(fmt.Sprintf("flows: invalid channel count %d", channels))
	}
	bias := tensor.Zeros(channels)
	bias.SetRequiresGrad(true)
	logScale := tensor.Zeros(channels)
	logScale.SetRequiresGrad(true)
	return &ActNorm{channels: channels, bias: bias, logScale: logScale}
}

func (a *ActNorm) Forward(x, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, err := checkBatch(x, logdet, a.channels)
	if err != nil {
		return nil, nil, err
	}
	if !a.initialized {
		a.initFrom(x)
	}
	shifted, err := tensor.AddRows(x, a.bias)
	if err != nil {
		return nil, nil, err
	}
	y, err := tensor.MulRows(shifted, tensor.Exp(a.logScale))
	if err != nil {
		return nil, nil, err
	}
	contrib, err := tensor.BroadcastTo(tensor.Sum(a.logScale), batch)
	if err != nil {
		return nil, nil, err
	}
	outDet, err := tensor.Add(logdet, contrib)
	if err != nil {
		return nil, nil, err
	}
	return y, outDet, nil
}

func (a *ActNorm) Inverse(y, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, err := checkBatch(y, logdet, a.channels)
	if err != nil {
		return nil, nil, err
	}
	bias := a.bias.Data()
	logScale := a.logScale.Data()
	yData := y.Data()
	out := make([]float64, batch*a.channels)
	sum := 0.0
	for j := 0; j < a.channels; j++ {
		sum += logScale[j]
	}
	for b := 0; b < batch; b++ {
		row := b * a.channels
		for j := 0; j < a.channels; j++ {
			out[row+j] = yData[row+j]*math.Exp(-logScale[j]) - bias[j]
		}
	}
	detData := logdet.Data()
	for i := range detData {
		detData[i] -= sum
	}
	return tensor.MustNew(out, batch, a.channels), tensor.MustNew(detData, batch), nil
}

// initFrom sets bias and logScale from the per-channel statistics of the
// first batch: bias = -mean, logScale = -log(std).
func (a *ActNorm) initFrom(x *tensor.Tensor) {
	shape := x.Shape()
	batch := shape[0]
	data := x.Data()
	bias := make([]float64, a.channels)
	logScale := make([]float64, a.channels)
	column := make([]float64, batch)
	for j := 0; j < a.channels; j++ {
		for b := 0; b < batch; b++ {
			column[b] = data[b*a.channels+j]
		}
		mean := stat.Mean(column, nil)
		std := stat.StdDev(column, nil)
		if math.IsNaN(std) || std <= 0 {
			std = 1
		}
		bias[j] = -mean
		logScale[j] = -math.Log(std + 1e-6)
	}
	// SetData cannot fail here: lengths match by construction
	_ = a.bias.SetData(bias)
	_ = a.logScale.SetData(logScale)
	a.initialized = true
}

func (a *ActNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{a.bias, a.logScale}
}

func (a *ActNorm) ZeroGrad() {
	a.bias.ZeroGrad()
	a.logScale.ZeroGrad()
}

func (a *ActNorm) Initialized() bool { return a.initialized }

func (a *ActNorm) StateDict(prefix string, state map[string]*tensor.Tensor) {
	if state == nil {
		return
	}
	state[join(prefix, "bias")] = a.bias.Clone()
	state[join(prefix, "log_scale")] = a.logScale.Clone()
	flag := 0.0
	if a.initialized {
		flag = 1
	}
	state[join(prefix, "initialized")] = tensor.MustNew([]float64{flag}, 1)
}

func (a *ActNorm) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	for _, item := range []struct {
		name string
		dst  *tensor.Tensor
	}{
		{"bias", a.bias},
		{"log_scale", a.logScale},
	} {
		key := join(prefix, item.name)
		src, ok := state[key]
		if !ok {
			return fmt.Errorf("flows: ActNorm missing %s", key)
		}
		if err := tensor.CopyInto(item.dst, src); err != nil {
			return fmt.Errorf("flows: load %s: %w", key, err)
		}
	}
	flag, ok := state[join(prefix, "initialized")]
	if !ok {
		return fmt.Errorf("flows: ActNorm missing %s", join(prefix, "initialized"))
	}
	a.initialized = flag.Data()[0] != 0
	return nil
}
