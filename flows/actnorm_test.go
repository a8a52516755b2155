package flows_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/hinagiku/glowflow/flows"
	"github.com/hinagiku/glowflow/tensor"
)

func TestActNormDataDependentInit(t *testing.T) {
	tensor.Seed(31)
	norm := flows.NewActNorm(2)
	require.False(t, norm.Initialized())

	// a deliberately shifted, stretched batch
	x := tensor.Randn(256, 2)
	x.Scale(3)
	shift := tensor.Full(5, 256, 2)
	shifted, err := tensor.Add(x, shift)
	require.NoError(t, err)

	y, _, err := norm.Forward(shifted, tensor.Zeros(256))
	require.NoError(t, err)
	require.True(t, norm.Initialized())

	// per channel the first output batch should be near zero mean, unit std
	data := y.Data()
	column := make([]float64, 256)
	for j := 0; j < 2; j++ {
		for b := 0; b < 256; b++ {
			column[b] = data[b*2+j]
		}
		require.InDelta(t, 0, stat.Mean(column, nil), 1e-6)
		require.InDelta(t, 1, stat.StdDev(column, nil), 1e-3)
	}
}

func TestActNormRoundTrip(t *testing.T) {
	tensor.Seed(32)
	norm := flows.NewActNorm(3)
	x := tensor.Randn(16, 3)
	y, det, err := norm.Forward(x, tensor.Zeros(16))
	require.NoError(t, err)
	back, invDet, err := norm.Inverse(y, det)
	require.NoError(t, err)
	requireAllClose(t, x.Data(), back.Data(), 1e-9)
	for _, v := range invDet.Data() {
		require.InDelta(t, 0, v, 1e-9)
	}
}

func TestActNormInitHappensOnlyOnce(t *testing.T) {
	tensor.Seed(33)
	norm := flows.NewActNorm(2)
	first := tensor.Randn(64, 2)
	_, _, err := norm.Forward(first, tensor.Zeros(64))
	require.NoError(t, err)
	biasAfterInit := norm.Parameters()[0].Data()

	second := tensor.Randn(64, 2)
	second.Scale(10)
	_, _, err = norm.Forward(second, tensor.Zeros(64))
	require.NoError(t, err)
	require.Equal(t, biasAfterInit, norm.Parameters()[0].Data())
}
