package data

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestMoonsShapeAndBounds(t *testing.T) {
	samples, err := Moons(200, 0.05, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.Equal(t, []int{200, 2}, samples.Shape())
	for _, v := range samples.Data() {
		require.Less(t, math.Abs(v), 3.0)
	}
}

func TestMoonsDeterministicWithSeed(t *testing.T) {
	a, err := Moons(50, 0.1, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	b, err := Moons(50, 0.1, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.Equal(t, a.Data(), b.Data())
}

func TestMoonsArcsAreSeparated(t *testing.T) {
	samples, err := Moons(400, 0, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	data := samples.Data()
	// noiseless even-index points sit on the upper arc, odd on the lower
	for i := 0; i < 400; i += 2 {
		require.GreaterOrEqual(t, data[2*i+1], -0.25-1e-12)
	}
	for i := 1; i < 400; i += 2 {
		require.LessOrEqual(t, data[2*i+1], 0.25+1e-12)
	}
}

func TestMoonsRejectsBadArguments(t *testing.T) {
	_, err := Moons(0, 0.1, nil)
	require.Error(t, err)
	_, err = Moons(10, -1, nil)
	require.Error(t, err)
}
