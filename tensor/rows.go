package tensor

import (
	"errors"
	"fmt"

	"github.com/hinagiku/glowflow/internal/parallel"
)

// Row-wise broadcast operations over (batch, channels) tensors. The vector
// operand has shape (channels,) and is applied to every row; its gradient is
// the per-channel sum over the batch.

func AddRows(x, v *Tensor) (*Tensor, error) {
	batch, channels, err := rowsShape(x, v)
	if err != nil {
		return nil, err
	}
	out := Zeros(batch, channels)
	parallel.For(batch, func(start, end int) {
		for i := start; i < end; i++ {
			row := i * channels
			for j := 0; j < channels; j++ {
				out.data[row+j] = x.data[row+j] + v.data[j]
			}
		}
	})
	attachBinaryGrad(out, x, v, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if x.requiresGrad {
			accumulate(grads, x, grad)
		}
		if v.requiresGrad {
			accumulate(grads, v, sumOverRows(grad, batch, channels))
		}
	})
	return out, nil
}

func MulRows(x, v *Tensor) (*Tensor, error) {
	batch, channels, err := rowsShape(x, v)
	if err != nil {
		return nil, err
	}
	out := Zeros(batch, channels)
	parallel.For(batch, func(start, end int) {
		for i := start; i < end; i++ {
			row := i * channels
			for j := 0; j < channels; j++ {
				out.data[row+j] = x.data[row+j] * v.data[j]
			}
		}
	})
	attachBinaryGrad(out, x, v, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if x.requiresGrad {
			gx := Zeros(batch, channels)
			for i := 0; i < batch; i++ {
				row := i * channels
				for j := 0; j < channels; j++ {
					gx.data[row+j] = grad.data[row+j] * v.data[j]
				}
			}
			accumulate(grads, x, gx)
		}
		if v.requiresGrad {
			accumulate(grads, v, sumOverRows(hadamard(grad, x), batch, channels))
		}
	})
	return out, nil
}

// SumRows reduces a (batch, channels) tensor to a per-sample (batch,) vector.
func SumRows(x *Tensor) (*Tensor, error) {
	if len(x.shape) != 2 {
		return nil, errors.New("tensor: SumRows expects rank 2 tensor")
	}
	batch, channels := x.shape[0], x.shape[1]
	out := Zeros(batch)
	parallel.For(batch, func(start, end int) {
		for i := start; i < end; i++ {
			row := i * channels
			total := 0.0
			for j := 0; j < channels; j++ {
				total += x.data[row+j]
			}
			out.data[i] = total
		}
	})
	if x.requiresGrad {
		attachUnaryGrad(out, x, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			gx := Zeros(batch, channels)
			for i := 0; i < batch; i++ {
				row := i * channels
				for j := 0; j < channels; j++ {
					gx.data[row+j] = grad.data[i]
				}
			}
			accumulate(grads, x, gx)
		})
	}
	return out, nil
}

// BroadcastTo expands a single-element tensor to the given shape; the
// gradient is the sum over all broadcast positions.
func BroadcastTo(s *Tensor, shape ...int) (*Tensor, error) {
	if s.Numel() != 1 {
		return nil, fmt.Errorf("tensor: BroadcastTo expects a single-element tensor, got %v", s.shape)
	}
	out := Full(s.data[0], shape...)
	if s.requiresGrad {
		attachUnaryGrad(out, s, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			total := 0.0
			for _, v := range grad.data {
				total += v
			}
			accumulate(grads, s, MustNew([]float64{total}, 1))
		})
	}
	return out, nil
}

// Diag builds a square matrix with v on the diagonal.
func Diag(v *Tensor) (*Tensor, error) {
	if len(v.shape) != 1 {
		return nil, errors.New("tensor: Diag expects rank 1 tensor")
	}
	n := v.shape[0]
	out := Zeros(n, n)
	for i := 0; i < n; i++ {
		out.data[i*n+i] = v.data[i]
	}
	if v.requiresGrad {
		attachUnaryGrad(out, v, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			gv := Zeros(n)
			for i := 0; i < n; i++ {
				gv.data[i] = grad.data[i*n+i]
			}
			accumulate(grads, v, gv)
		})
	}
	return out, nil
}

func rowsShape(x, v *Tensor) (int, int, error) {
	if len(x.shape) != 2 {
		return 0, 0, errors.New("tensor: row-wise op expects rank 2 tensor")
	}
	if len(v.shape) != 1 || v.shape[0] != x.shape[1] {
		return 0, 0, fmt.Errorf("tensor: vector shape %v does not match channels of %v", v.shape, x.shape)
	}
	return x.shape[0], x.shape[1], nil
}

func sumOverRows(g *Tensor, batch, channels int) *Tensor {
	out := Zeros(channels)
	for i := 0; i < batch; i++ {
		row := i * channels
		for j := 0; j < channels; j++ {
			out.data[j] += g.data[row+j]
		}
	}
	return out
}
