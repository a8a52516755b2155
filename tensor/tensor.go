// Package tensor implements the dense float64 tensors and the reverse-mode
// autograd graph that the flow layers are built on. Tensors are contiguous
// row-major arrays; gradients are tracked only for tensors explicitly marked
// with SetRequiresGrad.
package tensor

import (
	"errors"
	"fmt"
)

type Tensor struct {
	data         []float64
	shape        []int
	grad         *Tensor
	requiresGrad bool
	node         *node
	parents      []*Tensor
}

// node carries the backward closure attached to a tensor produced by a
// differentiable operation.
type node struct {
	backward func(grad *Tensor, grads map[*Tensor]*Tensor)
}

func New(data []float64, shape ...int) (*Tensor, error) {
	if len(shape) == 0 {
		return nil, errors.New("tensor: shape is required")
	}
	total := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("tensor: invalid dimension %d", dim)
		}
		total *= dim
	}
	if total != len(data) {
		return nil, fmt.Errorf("tensor: %d values do not fill shape %v", len(data), shape)
	}
	return &Tensor{
		data:  append([]float64(nil), data...),
		shape: append([]int(nil), shape...),
	}, nil
}

func MustNew(data []float64, shape ...int) *Tensor {
	t, err := New(data, shape...)
	if err != nil {
		panic(err)
	}
	return t
}

func Zeros(shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return MustNew(make([]float64, size), shape...)
}

func Full(value float64, shape ...int) *Tensor {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	data := make([]float64, size)
	for i := range data {
		data[i] = value
	}
	return MustNew(data, shape...)
}

func Ones(shape ...int) *Tensor {
	return Full(1, shape...)
}

// Eye returns the n-by-n identity matrix.
func Eye(n int) *Tensor {
	t := Zeros(n, n)
	for i := 0; i < n; i++ {
		t.data[i*n+i] = 1
	}
	return t
}

func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	return &Tensor{
		data:  append([]float64(nil), t.data...),
		shape: append([]int(nil), t.shape...),
	}
}

// Detach returns a copy that is cut off from the autograd graph.
func (t *Tensor) Detach() *Tensor {
	return t.Clone()
}

func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

func (t *Tensor) Numel() int {
	return len(t.data)
}

func (t *Tensor) Data() []float64 {
	return append([]float64(nil), t.data...)
}

// SetData overwrites the tensor's values in place. The slice length must
// match Numel.
func (t *Tensor) SetData(values []float64) error {
	if len(values) != len(t.data) {
		return fmt.Errorf("tensor: SetData expects %d values, got %d", len(t.data), len(values))
	}
	copy(t.data, values)
	return nil
}

// At reads a single element of a rank-2 tensor.
func (t *Tensor) At(row, col int) float64 {
	if len(t.shape) != 2 {
		panic("tensor: At expects a rank 2 tensor")
	}
	return t.data[row*t.shape[1]+col]
}

func (t *Tensor) SetRequiresGrad(v bool) {
	t.requiresGrad = v
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) Grad() *Tensor {
	if t.grad == nil {
		return nil
	}
	return t.grad.Clone()
}

func (t *Tensor) ZeroGrad() {
	t.grad = nil
}

// CopyInto copies src's values into dst. Shapes must match exactly.
func CopyInto(dst, src *Tensor) error {
	if dst == nil || src == nil {
		return errors.New("tensor: CopyInto requires non-nil tensors")
	}
	if err := ensureSameShape(dst, src); err != nil {
		return err
	}
	copy(dst.data, src.data)
	return nil
}

func ensureSameShape(a, b *Tensor) error {
	if len(a.shape) != len(b.shape) {
		return fmt.Errorf("tensor: shape mismatch %v vs %v", a.shape, b.shape)
	}
	for i, dim := range a.shape {
		if dim != b.shape[i] {
			return fmt.Errorf("tensor: shape mismatch %v vs %v", a.shape, b.shape)
		}
	}
	return nil
}
