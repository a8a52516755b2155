package nn

import "github.com/hinagiku/glowflow/tensor"

// FuncModule wraps a parameter-free function into a Module.
type FuncModule struct {
	fn func(*tensor.Tensor) (*tensor.Tensor, error)
}

func NewFuncModule(fn func(*tensor.Tensor) (*tensor.Tensor, error)) *FuncModule {
	return &FuncModule{fn: fn}
}

func (f *FuncModule) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return f.fn(input)
}

func (f *FuncModule) Parameters() []*tensor.Tensor { return nil }

func (f *FuncModule) ZeroGrad() {}

func Tanh() *FuncModule {
	return NewFuncModule(func(t *tensor.Tensor) (*tensor.Tensor, error) {
		return tensor.Tanh(t), nil
	})
}
