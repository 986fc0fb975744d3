package durability

// Welford accumulates running min/max/mean/variance of a float64 sample
// stream in a single pass, using Welford's online algorithm so that the
// crash simulator can report verifier wall-clock statistics without storing
// every sample.
type Welford struct {
	n    uint64
	mean float64
	ssd  float64 // sum of squared differences from the running mean
	min  float64
	max  float64
}

// Add folds x into the running statistics.
func (w *Welford) Add(x float64) {
	w.n++

	if w.n == 1 {
		w.min, w.max = x, x
	} else {
		if x < w.min {
			w.min = x
		}

		if x > w.max {
			w.max = x
		}
	}

	delta := x - w.mean
	w.mean += delta / float64(w.n)
	w.ssd += delta * (x - w.mean)
}

// N returns the number of samples folded in so far.
func (w *Welford) N() uint64 { return w.n }

// Mean returns the running arithmetic mean, or 0 if N() == 0.
func (w *Welford) Mean() float64 { return w.mean }

// Variance returns the population variance (SSD/n), or 0 if N() == 0.
func (w *Welford) Variance() float64 {
	if w.n == 0 {
		return 0
	}

	return w.ssd / float64(w.n)
}

// Min returns the smallest sample seen, or 0 if N() == 0.
func (w *Welford) Min() float64 { return w.min }

// Max returns the largest sample seen, or 0 if N() == 0.
func (w *Welford) Max() float64 { return w.max }
