package loss

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"github.com/hinagiku/glowflow/tensor"
)

func TestFlowNLLMatchesBaseLogProb(t *testing.T) {
	tensor.Seed(61)
	z := tensor.Randn(32, 2)
	logdet := tensor.Randn(32)

	got, err := FlowNLL(z, logdet)
	require.NoError(t, err)

	// reference value straight from the multivariate normal density
	base, err := NewStandardNormal(2, nil)
	require.NoError(t, err)
	zData := z.Data()
	detData := logdet.Data()
	want := 0.0
	for i := 0; i < 32; i++ {
		want -= base.LogProb(zData[i*2:(i+1)*2]) + detData[i]
	}
	want /= 32

	require.InDelta(t, want, got.Data()[0], 1e-10)
}

func TestFlowNLLGradientIsMeanScaledLatent(t *testing.T) {
	z := tensor.MustNew([]float64{
		1, -2,
		0.5, 3,
	}, 2, 2)
	z.SetRequiresGrad(true)
	logdet := tensor.Zeros(2)

	nll, err := FlowNLL(z, logdet)
	require.NoError(t, err)
	require.NoError(t, nll.Backward())

	// d loss / dz = z / batch
	grad := z.Grad().Data()
	want := []float64{0.5, -1, 0.25, 1.5}
	for i := range want {
		require.InDelta(t, want[i], grad[i], 1e-12)
	}
}

func TestFlowNLLRewardsLargerLogDet(t *testing.T) {
	tensor.Seed(62)
	z := tensor.Randn(8, 2)
	low, err := FlowNLL(z, tensor.Full(1, 8))
	require.NoError(t, err)
	high, err := FlowNLL(z, tensor.Full(2, 8))
	require.NoError(t, err)
	require.Less(t, high.Data()[0], low.Data()[0])
}

func TestFlowNLLShapeErrors(t *testing.T) {
	_, err := FlowNLL(tensor.Zeros(4), tensor.Zeros(4))
	require.Error(t, err)
	_, err = FlowNLL(tensor.Zeros(4, 2), tensor.Zeros(3))
	require.Error(t, err)
}

func TestSampleBaseShapeAndDeterminism(t *testing.T) {
	base, err := NewStandardNormal(3, rand.NewSource(9))
	require.NoError(t, err)
	samples, err := SampleBase(base, 10)
	require.NoError(t, err)
	require.Equal(t, []int{10, 3}, samples.Shape())

	again, err := NewStandardNormal(3, rand.NewSource(9))
	require.NoError(t, err)
	resampled, err := SampleBase(again, 10)
	require.NoError(t, err)
	require.Equal(t, samples.Data(), resampled.Data())
}

func TestBitsPerDim(t *testing.T) {
	require.InDelta(t, 1.0, BitsPerDim(2*0.6931471805599453, 2), 1e-12)
}
