package tensor

import (
	"errors"

	"github.com/hinagiku/glowflow/internal/parallel"
)

// Backward seeds the receiver with a gradient of ones and propagates
// gradients to every reachable parent in reverse topological order.
func (t *Tensor) Backward() error {
	if t == nil {
		return errors.New("tensor: Backward on nil tensor")
	}
	if !t.requiresGrad {
		return errors.New("tensor: Backward on tensor that does not require grad")
	}
	order := topoSort(t)
	grads := map[*Tensor]*Tensor{t: Ones(t.shape...)}
	for i := len(order) - 1; i >= 0; i-- {
		cur := order[i]
		grad := grads[cur]
		if grad == nil {
			continue
		}
		if cur.grad == nil {
			cur.grad = grad.Clone()
		} else {
			addInPlace(cur.grad, grad)
		}
		if cur.node != nil {
			cur.node.backward(grad, grads)
		}
	}
	return nil
}

func topoSort(root *Tensor) []*Tensor {
	visited := map[*Tensor]bool{}
	var order []*Tensor
	var visit func(*Tensor)
	visit = func(t *Tensor) {
		if t == nil || visited[t] {
			return
		}
		visited[t] = true
		for _, p := range t.parents {
			visit(p)
		}
		order = append(order, t)
	}
	visit(root)
	return order
}

func accumulate(grads map[*Tensor]*Tensor, target, value *Tensor) {
	if target == nil || value == nil {
		return
	}
	if existing, ok := grads[target]; ok {
		addInPlace(existing, value)
	} else {
		grads[target] = value.Clone()
	}
}

func addInPlace(dst, src *Tensor) {
	if err := ensureSameShape(dst, src); err != nil {
		panic(err)
	}
	parallel.For(len(dst.data), func(start, end int) {
		for i := start; i < end; i++ {
			dst.data[i] += src.data[i]
		}
	})
}
