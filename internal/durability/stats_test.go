package durability_test

import (
	"math"
	"testing"

	"github.com/calvinalkan/pmat/internal/durability"
)

func TestWelfordMatchesDirectComputation(t *testing.T) {
	samples := []float64{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0}

	var w durability.Welford
	for _, s := range samples {
		w.Add(s)
	}

	wantMean := 0.0
	for _, s := range samples {
		wantMean += s
	}

	wantMean /= float64(len(samples))

	wantVariance := 0.0
	for _, s := range samples {
		d := s - wantMean
		wantVariance += d * d
	}

	wantVariance /= float64(len(samples))

	const tol = 1e-9

	if math.Abs(w.Mean()-wantMean) > tol {
		t.Errorf("Mean() = %v, want %v", w.Mean(), wantMean)
	}

	if math.Abs(w.Variance()-wantVariance) > tol {
		t.Errorf("Variance() = %v, want %v", w.Variance(), wantVariance)
	}

	if w.Min() != 2.0 {
		t.Errorf("Min() = %v, want 2.0", w.Min())
	}

	if w.Max() != 9.0 {
		t.Errorf("Max() = %v, want 9.0", w.Max())
	}

	if w.N() != uint64(len(samples)) {
		t.Errorf("N() = %d, want %d", w.N(), len(samples))
	}
}

func TestWelfordSingleSample(t *testing.T) {
	var w durability.Welford

	w.Add(42.0)

	if w.Mean() != 42.0 {
		t.Errorf("Mean() = %v, want 42.0", w.Mean())
	}

	if w.Variance() != 0 {
		t.Errorf("Variance() = %v, want 0", w.Variance())
	}

	if w.Min() != 42.0 || w.Max() != 42.0 {
		t.Errorf("Min/Max = %v/%v, want 42.0/42.0", w.Min(), w.Max())
	}
}

func TestWelfordEmpty(t *testing.T) {
	var w durability.Welford

	if w.N() != 0 {
		t.Errorf("N() = %d, want 0", w.N())
	}

	if w.Variance() != 0 {
		t.Errorf("Variance() = %v, want 0", w.Variance())
	}
}
