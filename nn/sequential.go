package nn

import (
	"fmt"

	"github.com/hinagiku/glowflow/tensor"
)

type Sequential struct {
	modules []Module
}

func NewSequential(mods ...Module) *Sequential {
	copied := make([]Module, len(mods))
	copy(copied, mods)
	return &Sequential{modules: copied}
}

func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for _, m := range s.modules {
		out, err = m.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

func (s *Sequential) ZeroGrad() {
	for _, m := range s.modules {
		m.ZeroGrad()
	}
}

func (s *Sequential) StateDict(prefix string, state map[string]*tensor.Tensor) {
	for idx, mod := range s.modules {
		if sm, ok := mod.(StatefulModule); ok {
			sm.StateDict(JoinPrefix(prefix, fmt.Sprintf("%d", idx)), state)
		}
	}
}

func (s *Sequential) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	for idx, mod := range s.modules {
		if sm, ok := mod.(StatefulModule); ok {
			if err := sm.LoadState(JoinPrefix(prefix, fmt.Sprintf("%d", idx)), state); err != nil {
				return err
			}
		}
	}
	return nil
}
