// Package optim provides the gradient-based updates used to train flow
// parameters.
package optim

import (
	"math"

	"github.com/hinagiku/glowflow/tensor"
)

type adamState struct {
	m *tensor.Tensor
	v *tensor.Tensor
}

// Adam implements the Adam update rule with bias correction.
type Adam struct {
	params []*tensor.Tensor
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	state  map[*tensor.Tensor]*adamState
	step   int
}

// NewAdam uses the conventional defaults for any non-positive hyperparameter
// (lr 1e-3, betas 0.9/0.999, eps 1e-8).
func NewAdam(params []*tensor.Tensor, lr, beta1, beta2, eps float64) *Adam {
	if lr <= 0 {
		lr = 1e-3
	}
	if beta1 <= 0 {
		beta1 = 0.9
	}
	if beta2 <= 0 {
		beta2 = 0.999
	}
	if eps <= 0 {
		eps = 1e-8
	}
	return &Adam{
		params: params,
		lr:     lr,
		beta1:  beta1,
		beta2:  beta2,
		eps:    eps,
		state:  map[*tensor.Tensor]*adamState{},
	}
}

func (o *Adam) Step() error {
	o.step++
	corr1 := 1 - math.Pow(o.beta1, float64(o.step))
	corr2 := 1 - math.Pow(o.beta2, float64(o.step))
	for _, p := range o.params {
		if p == nil {
			continue
		}
		grad := p.Grad()
		if grad == nil {
			continue
		}
		st := o.state[p]
		if st == nil {
			st = &adamState{m: tensor.Zeros(grad.Shape()...), v: tensor.Zeros(grad.Shape()...)}
			o.state[p] = st
		}
		st.m.Scale(o.beta1)
		if err := st.m.AddScaled(grad, 1-o.beta1); err != nil {
			return err
		}
		gradSq := grad.Clone()
		if err := gradSq.MulInPlace(grad); err != nil {
			return err
		}
		st.v.Scale(o.beta2)
		if err := st.v.AddScaled(gradSq, 1-o.beta2); err != nil {
			return err
		}

		mData := st.m.Data()
		vData := st.v.Data()
		update := make([]float64, len(mData))
		for i := range update {
			mHat := mData[i] / corr1
			vHat := vData[i] / corr2
			update[i] = mHat / (math.Sqrt(vHat) + o.eps)
		}
		delta := tensor.MustNew(update, grad.Shape()...)
		if err := p.AddScaled(delta, -o.lr); err != nil {
			return err
		}
	}
	return nil
}

func (o *Adam) ZeroGrad() {
	for _, p := range o.params {
		if p != nil {
			p.ZeroGrad()
		}
	}
}
