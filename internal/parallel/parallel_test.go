package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForCoversRangeExactlyOnce(t *testing.T) {
	n := 53
	counts := make([]int32, n)
	For(n, func(start, end int) {
		for i := start; i < end; i++ {
			atomic.AddInt32(&counts[i], 1)
		}
	})
	for i, c := range counts {
		if c != 1 {
			t.Fatalf("index %d visited %d times", i, c)
		}
	}
}

func TestForSkipsEmptyRange(t *testing.T) {
	called := false
	For(0, func(start, end int) { called = true })
	For(-3, func(start, end int) { called = true })
	if called {
		t.Fatal("callback invoked for empty range")
	}
}
