package tensor

import (
	"errors"
	"fmt"

	"github.com/hinagiku/glowflow/internal/parallel"
)

// SelectChannels gathers the given channel indices out of a (batch, channels)
// tensor, preserving their order. Gradients scatter back to the selected
// positions.
func SelectChannels(x *Tensor, idx []int) (*Tensor, error) {
	if len(x.shape) != 2 {
		return nil, errors.New("tensor: SelectChannels expects rank 2 tensor")
	}
	batch, channels := x.shape[0], x.shape[1]
	if len(idx) == 0 {
		return nil, errors.New("tensor: SelectChannels requires at least one index")
	}
	for _, j := range idx {
		if j < 0 || j >= channels {
			return nil, fmt.Errorf("tensor: channel index %d out of range [0,%d)", j, channels)
		}
	}
	picked := append([]int(nil), idx...)
	out := Zeros(batch, len(picked))
	parallel.For(batch, func(start, end int) {
		for i := start; i < end; i++ {
			src := i * channels
			dst := i * len(picked)
			for k, j := range picked {
				out.data[dst+k] = x.data[src+j]
			}
		}
	})
	if x.requiresGrad {
		attachUnaryGrad(out, x, func(grad *Tensor, grads map[*Tensor]*Tensor) {
			gx := Zeros(batch, channels)
			for i := 0; i < batch; i++ {
				src := i * len(picked)
				dst := i * channels
				for k, j := range picked {
					gx.data[dst+j] = grad.data[src+k]
				}
			}
			accumulate(grads, x, gx)
		})
	}
	return out, nil
}

// MergeChannels is the inverse of two SelectChannels calls: it scatters the
// columns of a and b back into a (batch, channels) tensor at the positions
// named by idxA and idxB. The two index sets must partition [0, channels).
func MergeChannels(channels int, idxA []int, a *Tensor, idxB []int, b *Tensor) (*Tensor, error) {
	if len(a.shape) != 2 || len(b.shape) != 2 {
		return nil, errors.New("tensor: MergeChannels expects rank 2 tensors")
	}
	if a.shape[0] != b.shape[0] {
		return nil, errors.New("tensor: MergeChannels batch size mismatch")
	}
	if len(idxA) != a.shape[1] || len(idxB) != b.shape[1] {
		return nil, errors.New("tensor: MergeChannels index count mismatch")
	}
	if len(idxA)+len(idxB) != channels {
		return nil, fmt.Errorf("tensor: MergeChannels indices do not cover %d channels", channels)
	}
	seen := make([]bool, channels)
	for _, j := range append(append([]int(nil), idxA...), idxB...) {
		if j < 0 || j >= channels || seen[j] {
			return nil, fmt.Errorf("tensor: MergeChannels invalid partition at index %d", j)
		}
		seen[j] = true
	}
	batch := a.shape[0]
	pickedA := append([]int(nil), idxA...)
	pickedB := append([]int(nil), idxB...)
	out := Zeros(batch, channels)
	parallel.For(batch, func(start, end int) {
		for i := start; i < end; i++ {
			dst := i * channels
			for k, j := range pickedA {
				out.data[dst+j] = a.data[i*len(pickedA)+k]
			}
			for k, j := range pickedB {
				out.data[dst+j] = b.data[i*len(pickedB)+k]
			}
		}
	})
	attachBinaryGrad(out, a, b, func(grad *Tensor, grads map[*Tensor]*Tensor) {
		if a.requiresGrad {
			ga := Zeros(batch, len(pickedA))
			for i := 0; i < batch; i++ {
				src := i * channels
				for k, j := range pickedA {
					ga.data[i*len(pickedA)+k] = grad.data[src+j]
				}
			}
			accumulate(grads, a, ga)
		}
		if b.requiresGrad {
			gb := Zeros(batch, len(pickedB))
			for i := 0; i < batch; i++ {
				src := i * channels
				for k, j := range pickedB {
					gb.data[i*len(pickedB)+k] = grad.data[src+j]
				}
			}
			accumulate(grads, b, gb)
		}
	})
	return out, nil
}

// Chunk splits a (batch, channels) tensor into parts equal contiguous column
// blocks.
func Chunk(x *Tensor, parts int) ([]*Tensor, error) {
	if len(x.shape) != 2 {
		return nil, errors.New("tensor: Chunk expects rank 2 tensor")
	}
	if parts <= 0 || x.shape[1]%parts != 0 {
		return nil, fmt.Errorf("tensor: cannot chunk %d channels into %d parts", x.shape[1], parts)
	}
	width := x.shape[1] / parts
	out := make([]*Tensor, parts)
	for p := 0; p < parts; p++ {
		idx := make([]int, width)
		for k := range idx {
			idx[k] = p*width + k
		}
		part, err := SelectChannels(x, idx)
		if err != nil {
			return nil, err
		}
		out[p] = part
	}
	return out, nil
}
