package flows

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/hinagiku/glowflow/internal/parallel"
	"github.com/hinagiku/glowflow/tensor"
)

// InvConv is the invertible 1x1 convolution of Glow: a learnable linear map
// over the channel axis that stays invertible under arbitrary gradient
// updates. The weight is never stored directly; it is rebuilt on every call
// from a PLU parameterization
//
//	W = P · (L ⊙ maskL + I) · (U ⊙ maskU + diag(signS · exp(logS)))
//
// where P and signS are frozen at construction and only the strictly
// triangular entries of L and U plus logS are trained. The diagonal
// signS·exp(logS) cannot reach zero, so det W never vanishes, and
// log|det W| = sum(logS) with no determinant computation.
type InvConv struct {
	channels int

	perm  []int          // row permutation, P[i][perm[i]] = 1, frozen
	p     *tensor.Tensor // dense permutation matrix, frozen
	signS *tensor.Tensor // diagonal signs, frozen
	maskL *tensor.Tensor // strictly-lower selector, frozen
	maskU *tensor.Tensor // strictly-upper selector, frozen
	eye   *tensor.Tensor

	l    *tensor.Tensor // trainable strictly-lower factor storage
	u    *tensor.Tensor // trainable strictly-upper factor storage
	logS *tensor.Tensor // trainable diagonal log-magnitudes
}

// NewInvConv builds the transform for the given channel count. The starting
// weight is a random matrix with orthonormal columns (QR of a Gaussian
// matrix), factorized once with partial pivoting; the pivot order is frozen
// for the lifetime of the layer.
func NewInvConv(channels int) *InvConv {
	if channels <= 0 {
		panic(fmt.Sprintf("flows: invalid channel count %d", channels))
	}
	raw := mat.NewDense(channels, channels, tensor.Randn(channels, channels).Data())
	var qr mat.QR
	qr.Factorize(raw)
	var q mat.Dense
	qr.QTo(&q)

	var lu mat.LU
	lu.Factorize(&q)
	perm := lu.RowPivots(nil)
	var lower, upper mat.TriDense
	lu.LTo(&lower)
	lu.UTo(&upper)

	lData := make([]float64, channels*channels)
	uData := make([]float64, channels*channels)
	maskL := make([]float64, channels*channels)
	maskU := make([]float64, channels*channels)
	signS := make([]float64, channels)
	logS := make([]float64, channels)
	pData := make([]float64, channels*channels)
	for i := 0; i < channels; i++ {
		pData[i*channels+perm[i]] = 1
		for j := 0; j < i; j++ {
			lData[i*channels+j] = lower.At(i, j)
			maskL[i*channels+j] = 1
		}
		for j := i + 1; j < channels; j++ {
			uData[i*channels+j] = upper.At(i, j)
			maskU[i*channels+j] = 1
		}
		s := upper.At(i, i)
		if s >= 0 {
			signS[i] = 1
		} else {
			signS[i] = -1
		}
		logS[i] = math.Log(math.Abs(s))
	}

	c := &InvConv{
		channels: channels,
		perm:     perm,
		p:        tensor.MustNew(pData, channels, channels),
		signS:    tensor.MustNew(signS, channels),
		maskL:    tensor.MustNew(maskL, channels, channels),
		maskU:    tensor.MustNew(maskU, channels, channels),
		eye:      tensor.Eye(channels),
		l:        tensor.MustNew(lData, channels, channels),
		u:        tensor.MustNew(uData, channels, channels),
		logS:     tensor.MustNew(logS, channels),
	}
	c.l.SetRequiresGrad(true)
	c.u.SetRequiresGrad(true)
	c.logS.SetRequiresGrad(true)
	return c
}

// Weight reconstructs the effective dense weight W = P·L·U from the current
// parameters, detached from the autograd graph.
func (c *InvConv) Weight() (*tensor.Tensor, error) {
	w, err := c.buildWeight(true)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (c *InvConv) buildWeight(detach bool) (*tensor.Tensor, error) {
	l := c.l
	u := c.u
	logS := c.logS
	if detach {
		l = l.Detach()
		u = u.Detach()
		logS = logS.Detach()
	}
	lowerFree, err := tensor.Mul(l, c.maskL)
	if err != nil {
		return nil, err
	}
	lower, err := tensor.Add(lowerFree, c.eye)
	if err != nil {
		return nil, err
	}
	diagVec, err := tensor.Mul(c.signS, tensor.Exp(logS))
	if err != nil {
		return nil, err
	}
	diag, err := tensor.Diag(diagVec)
	if err != nil {
		return nil, err
	}
	upperFree, err := tensor.Mul(u, c.maskU)
	if err != nil {
		return nil, err
	}
	upper, err := tensor.Add(upperFree, diag)
	if err != nil {
		return nil, err
	}
	luProd, err := tensor.MatMul(lower, upper)
	if err != nil {
		return nil, err
	}
	return tensor.MatMul(c.p, luProd)
}

// Forward applies W across the channel axis of every sample and adds
// sum(logS) to each accumulator entry.
func (c *InvConv) Forward(x, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, err := checkBatch(x, logdet, c.channels)
	if err != nil {
		return nil, nil, err
	}
	w, err := c.buildWeight(false)
	if err != nil {
		return nil, nil, err
	}
	wt, err := tensor.Transpose(w)
	if err != nil {
		return nil, nil, err
	}
	y, err := tensor.MatMul(x, wt)
	if err != nil {
		return nil, nil, err
	}
	contrib, err := tensor.BroadcastTo(tensor.Sum(c.logS), batch)
	if err != nil {
		return nil, nil, err
	}
	outDet, err := tensor.Add(logdet, contrib)
	if err != nil {
		return nil, nil, err
	}
	return y, outDet, nil
}

// Inverse solves W·x = y per sample with the stored pivot order and the
// triangular factors, never forming W⁻¹: undo the permutation, then forward
// substitution against unit-lower L, then back substitution against U.
// It runs on raw values with no gradient tracking and subtracts sum(logS)
// from the accumulator.
func (c *InvConv) Inverse(y, logdet *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	batch, err := checkBatch(y, logdet, c.channels)
	if err != nil {
		return nil, nil, err
	}
	n := c.channels
	lData := c.l.Data()
	uData := c.u.Data()
	signS := c.signS.Data()
	logS := c.logS.Data()

	// combined factor: strictly-lower from L storage, strictly-upper from U
	// storage, diagonal signS·exp(logS)
	comb := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			comb[i*n+j] = lData[i*n+j]
		}
		for j := i + 1; j < n; j++ {
			comb[i*n+j] = uData[i*n+j]
		}
		comb[i*n+i] = signS[i] * math.Exp(logS[i])
	}

	yData := y.Data()
	out := make([]float64, batch*n)
	parallel.For(batch, func(start, end int) {
		scratch := make([]float64, n)
		for b := start; b < end; b++ {
			row := yData[b*n : (b+1)*n]
			// z = Pᵀ y
			for i := 0; i < n; i++ {
				scratch[c.perm[i]] = row[i]
			}
			// L t = z, unit diagonal
			for i := 1; i < n; i++ {
				acc := scratch[i]
				for j := 0; j < i; j++ {
					acc -= comb[i*n+j] * scratch[j]
				}
				scratch[i] = acc
			}
			// U x = t
			for i := n - 1; i >= 0; i-- {
				acc := scratch[i]
				for j := i + 1; j < n; j++ {
					acc -= comb[i*n+j] * scratch[j]
				}
				scratch[i] = acc / comb[i*n+i]
			}
			copy(out[b*n:(b+1)*n], scratch)
		}
	})

	sum := 0.0
	for _, v := range logS {
		sum += v
	}
	detData := logdet.Data()
	for i := range detData {
		detData[i] -= sum
	}
	return tensor.MustNew(out, batch, n), tensor.MustNew(detData, batch), nil
}

func (c *InvConv) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{c.l, c.u, c.logS}
}

func (c *InvConv) ZeroGrad() {
	for _, p := range c.Parameters() {
		p.ZeroGrad()
	}
}

// Permutation returns a copy of the frozen pivot order.
func (c *InvConv) Permutation() []int {
	return append([]int(nil), c.perm...)
}

// SignS returns a copy of the frozen diagonal signs.
func (c *InvConv) SignS() *tensor.Tensor { return c.signS.Clone() }

func (c *InvConv) LogS() *tensor.Tensor { return c.logS }

func (c *InvConv) StateDict(prefix string, state map[string]*tensor.Tensor) {
	if state == nil {
		return
	}
	permData := make([]float64, len(c.perm))
	for i, v := range c.perm {
		permData[i] = float64(v)
	}
	state[join(prefix, "perm")] = tensor.MustNew(permData, len(permData))
	state[join(prefix, "lower")] = c.l.Clone()
	state[join(prefix, "upper")] = c.u.Clone()
	state[join(prefix, "log_s")] = c.logS.Clone()
	state[join(prefix, "sign_s")] = c.signS.Clone()
}

func (c *InvConv) LoadState(prefix string, state map[string]*tensor.Tensor) error {
	permT, ok := state[join(prefix, "perm")]
	if !ok {
		return fmt.Errorf("flows: InvConv missing %s", join(prefix, "perm"))
	}
	permData := permT.Data()
	if len(permData) != c.channels {
		return fmt.Errorf("flows: InvConv permutation length %d, want %d", len(permData), c.channels)
	}
	perm := make([]int, c.channels)
	pData := make([]float64, c.channels*c.channels)
	for i, v := range permData {
		perm[i] = int(v)
		if perm[i] < 0 || perm[i] >= c.channels {
			return fmt.Errorf("flows: InvConv pivot %d out of range", perm[i])
		}
		pData[i*c.channels+perm[i]] = 1
	}
	for _, item := range []struct {
		name string
		dst  *tensor.Tensor
	}{
		{"lower", c.l},
		{"upper", c.u},
		{"log_s", c.logS},
		{"sign_s", c.signS},
	} {
		key := join(prefix, item.name)
		src, ok := state[key]
		if !ok {
			return fmt.Errorf("flows: InvConv missing %s", key)
		}
		if err := tensor.CopyInto(item.dst, src); err != nil {
			return fmt.Errorf("flows: load %s: %w", key, err)
		}
	}
	c.perm = perm
	c.p = tensor.MustNew(pData, c.channels, c.channels)
	return nil
}
