package tensor

import (
	"math"
	"testing"
)

func almostEqual(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("index %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestNewRejectsBadShape(t *testing.T) {
	if _, err := New([]float64{1, 2, 3}, 2, 2); err == nil {
		t.Fatal("expected size mismatch error")
	}
	if _, err := New(nil); err == nil {
		t.Fatal("expected missing shape error")
	}
	if _, err := New([]float64{1}, -1); err == nil {
		t.Fatal("expected invalid dimension error")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	a := MustNew([]float64{1, 2, 3, 4}, 2, 2)
	b := a.Clone()
	if err := b.SetData([]float64{5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}
	almostEqual(t, a.Data(), []float64{1, 2, 3, 4}, 0)
}

func TestExpLogChainGradient(t *testing.T) {
	// f(x) = sum(exp(x) * x), df/dx = exp(x) * (x + 1)
	x := MustNew([]float64{0.5, -1.0, 2.0}, 3)
	x.SetRequiresGrad(true)
	prod, err := Mul(Exp(x), x)
	if err != nil {
		t.Fatal(err)
	}
	if err := Sum(prod).Backward(); err != nil {
		t.Fatal(err)
	}
	want := make([]float64, 3)
	for i, v := range []float64{0.5, -1.0, 2.0} {
		want[i] = math.Exp(v) * (v + 1)
	}
	almostEqual(t, x.Grad().Data(), want, 1e-12)
}

func TestTanhGradient(t *testing.T) {
	x := MustNew([]float64{0.3, -0.7}, 2)
	x.SetRequiresGrad(true)
	if err := Sum(Tanh(x)).Backward(); err != nil {
		t.Fatal(err)
	}
	want := make([]float64, 2)
	for i, v := range []float64{0.3, -0.7} {
		th := math.Tanh(v)
		want[i] = 1 - th*th
	}
	almostEqual(t, x.Grad().Data(), want, 1e-12)
}

func TestSumRowsForwardAndGradient(t *testing.T) {
	x := MustNew([]float64{
		1, 2, 3,
		4, 5, 6,
	}, 2, 3)
	x.SetRequiresGrad(true)
	rows, err := SumRows(x)
	if err != nil {
		t.Fatal(err)
	}
	almostEqual(t, rows.Data(), []float64{6, 15}, 0)
	weighted, err := Mul(rows, MustNew([]float64{1, 10}, 2))
	if err != nil {
		t.Fatal(err)
	}
	if err := Sum(weighted).Backward(); err != nil {
		t.Fatal(err)
	}
	almostEqual(t, x.Grad().Data(), []float64{1, 1, 1, 10, 10, 10}, 0)
}

func TestRowwiseOpsGradient(t *testing.T) {
	x := MustNew([]float64{
		1, 2,
		3, 4,
	}, 2, 2)
	v := MustNew([]float64{0.5, -2}, 2)
	x.SetRequiresGrad(true)
	v.SetRequiresGrad(true)
	scaled, err := MulRows(x, v)
	if err != nil {
		t.Fatal(err)
	}
	almostEqual(t, scaled.Data(), []float64{0.5, -4, 1.5, -8}, 1e-12)
	if err := Sum(scaled).Backward(); err != nil {
		t.Fatal(err)
	}
	almostEqual(t, x.Grad().Data(), []float64{0.5, -2, 0.5, -2}, 1e-12)
	// dv accumulates the per-channel column sums of x
	almostEqual(t, v.Grad().Data(), []float64{4, 6}, 1e-12)
}

func TestBroadcastToGradientSums(t *testing.T) {
	s := MustNew([]float64{2.5}, 1)
	s.SetRequiresGrad(true)
	spread, err := BroadcastTo(s, 4)
	if err != nil {
		t.Fatal(err)
	}
	almostEqual(t, spread.Data(), []float64{2.5, 2.5, 2.5, 2.5}, 0)
	if err := Sum(spread).Backward(); err != nil {
		t.Fatal(err)
	}
	almostEqual(t, s.Grad().Data(), []float64{4}, 0)
}

func TestDiagRoundTrip(t *testing.T) {
	v := MustNew([]float64{1, -2, 3}, 3)
	v.SetRequiresGrad(true)
	d, err := Diag(v)
	if err != nil {
		t.Fatal(err)
	}
	if d.At(1, 1) != -2 || d.At(0, 1) != 0 {
		t.Fatalf("unexpected diagonal matrix %v", d.Data())
	}
	if err := Sum(d).Backward(); err != nil {
		t.Fatal(err)
	}
	almostEqual(t, v.Grad().Data(), []float64{1, 1, 1}, 0)
}

func TestMatMulForwardAndGradient(t *testing.T) {
	a := MustNew([]float64{
		1, 2,
		3, 4,
	}, 2, 2)
	b := MustNew([]float64{
		0, 1,
		1, 0,
	}, 2, 2)
	a.SetRequiresGrad(true)
	out, err := MatMul(a, b)
	if err != nil {
		t.Fatal(err)
	}
	almostEqual(t, out.Data(), []float64{2, 1, 4, 3}, 0)
	if err := Sum(out).Backward(); err != nil {
		t.Fatal(err)
	}
	// dA = ones @ B^T
	almostEqual(t, a.Grad().Data(), []float64{1, 1, 1, 1}, 0)
}

func TestSelectMergeChannels(t *testing.T) {
	x := MustNew([]float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
	}, 2, 4)
	x.SetRequiresGrad(true)
	even, err := SelectChannels(x, []int{0, 2})
	if err != nil {
		t.Fatal(err)
	}
	odd, err := SelectChannels(x, []int{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	almostEqual(t, even.Data(), []float64{1, 3, 5, 7}, 0)
	almostEqual(t, odd.Data(), []float64{2, 4, 6, 8}, 0)
	merged, err := MergeChannels(4, []int{0, 2}, even, []int{1, 3}, odd)
	if err != nil {
		t.Fatal(err)
	}
	almostEqual(t, merged.Data(), x.Data(), 0)
	scaled := MulScalar(merged, 3)
	if err := Sum(scaled).Backward(); err != nil {
		t.Fatal(err)
	}
	almostEqual(t, x.Grad().Data(), []float64{3, 3, 3, 3, 3, 3, 3, 3}, 0)
}

func TestMergeChannelsRejectsBadPartition(t *testing.T) {
	a := Zeros(1, 1)
	b := Zeros(1, 1)
	if _, err := MergeChannels(2, []int{0}, a, []int{0}, b); err == nil {
		t.Fatal("expected overlap error")
	}
}

func TestChunkSplitsColumns(t *testing.T) {
	x := MustNew([]float64{1, 2, 3, 4, 5, 6}, 1, 6)
	parts, err := Chunk(x, 2)
	if err != nil {
		t.Fatal(err)
	}
	almostEqual(t, parts[0].Data(), []float64{1, 2, 3}, 0)
	almostEqual(t, parts[1].Data(), []float64{4, 5, 6}, 0)
	if _, err := Chunk(x, 4); err == nil {
		t.Fatal("expected indivisible chunk error")
	}
}

func TestRandnIsDeterministicWithSeed(t *testing.T) {
	Seed(7)
	a := Randn(3, 3)
	Seed(7)
	b := Randn(3, 3)
	almostEqual(t, a.Data(), b.Data(), 0)
}
