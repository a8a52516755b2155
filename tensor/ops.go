package tensor

import (
	"math"

	"github.com/hinagiku/glowflow/internal/parallel"
)

func Add(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] + b.data[i]
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			accumulate(grads, a, grad)
		}
		if b.requiresGrad {
			accumulate(grads, b, grad)
		}
	})
	return out, nil
}

func Sub(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] - b.data[i]
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			accumulate(grads, a, grad)
		}
		if b.requiresGrad {
			neg := grad.Clone()
			neg.Scale(-1)
			accumulate(grads, b, neg)
		}
	})
	return out, nil
}

func Mul(a, b *Tensor) (*Tensor, error) {
	if err := ensureSameShape(a, b); err != nil {
		return nil, err
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] * b.data[i]
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			accumulate(grads, a, hadamard(grad, b))
		}
		if b.requiresGrad {
			accumulate(grads, b, hadamard(grad, a))
		}
	})
	return out, nil
}

func Exp(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = math.Exp(a.data[i])
		}
	})
	if a.requiresGrad {
		attachUnaryGrad(out, a, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			accumulate(grads, a, hadamard(grad, out))
		})
	}
	return out
}

func Log(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = math.Log(a.data[i])
		}
	})
	if a.requiresGrad {
		attachUnaryGrad(out, a, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			inv := Zeros(a.shape...)
			for i := range inv.data {
				inv.data[i] = 1 / a.data[i]
			}
			accumulate(grads, a, hadamard(grad, inv))
		})
	}
	return out
}

func Tanh(a *Tensor) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = math.Tanh(a.data[i])
		}
	})
	if a.requiresGrad {
		attachUnaryGrad(out, a, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			deriv := Zeros(out.shape...)
			for i := range deriv.data {
				deriv.data[i] = 1 - out.data[i]*out.data[i]
			}
			accumulate(grads, a, hadamard(grad, deriv))
		})
	}
	return out
}

func AddScalar(a *Tensor, value float64) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] + value
		}
	})
	if a.requiresGrad {
		attachUnaryGrad(out, a, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			accumulate(grads, a, grad)
		})
	}
	return out
}

func MulScalar(a *Tensor, value float64) *Tensor {
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] * value
		}
	})
	if a.requiresGrad {
		attachUnaryGrad(out, a, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			scaled := grad.Clone()
			scaled.Scale(value)
			accumulate(grads, a, scaled)
		})
	}
	return out
}

// Sum reduces the whole tensor to a single-element tensor.
func Sum(a *Tensor) *Tensor {
	total := 0.0
	for _, v := range a.data {
		total += v
	}
	out := MustNew([]float64{total}, 1)
	if a.requiresGrad {
		attachUnaryGrad(out, a, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			accumulate(grads, a, Full(grad.data[0], a.shape...))
		})
	}
	return out
}

func Mean(a *Tensor) *Tensor {
	scale := 1.0 / float64(a.Numel())
	total := 0.0
	for _, v := range a.data {
		total += v
	}
	out := MustNew([]float64{total * scale}, 1)
	if a.requiresGrad {
		attachUnaryGrad(out, a, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			accumulate(grads, a, Full(grad.data[0]*scale, a.shape...))
		})
	}
	return out
}

func hadamard(a, b *Tensor) *Tensor {
	if err := ensureSameShape(a, b); err != nil {
		panic(err)
	}
	out := Zeros(a.shape...)
	parallel.For(len(out.data), func(start, end int) {
		for i := start; i < end; i++ {
			out.data[i] = a.data[i] * b.data[i]
		}
	})
	return out
}

func attachUnaryGrad(out, a *Tensor, backward func(grad *Tensor, grads map[*Tensor]*Tensor)) {
	out.requiresGrad = true
	out.parents = []*Tensor{a}
	out.node = &node{backward: backward}
}

func attachBinaryGrad(out, a, b *Tensor, backward func(grad *Tensor, grads map[*Tensor]*Tensor)) {
	if !(a.requiresGrad || b.requiresGrad) {
		return
	}
	out.requiresGrad = true
	parents := make([]*Tensor, 0, 2)
	if a.requiresGrad {
		parents = append(parents, a)
	}
	if b.requiresGrad {
		parents = append(parents, b)
	}
	out.parents = parents
	out.node = &node{backward: backward}
}
