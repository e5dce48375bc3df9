package indicators

import "math"

// Window keeps a rolling window of the last N values. It is the shared
// price-history primitive for the channel indicators and the Trend-Quality
// noise buffer.
type Window struct {
	size int
	vals []float64
}

// NewWindow creates a rolling window of the given size.
func NewWindow(size int) *Window {
	return &Window{
		size: size,
		vals: make([]float64, 0, size),
	}
}

// Push appends a value, dropping the oldest once the window is full.
func (w *Window) Push(v float64) {
	w.vals = append(w.vals, v)
	if len(w.vals) > w.size {
		w.vals = w.vals[len(w.vals)-w.size:]
	}
}

// Full reports whether the window holds its configured number of values.
func (w *Window) Full() bool {
	return len(w.vals) == w.size
}

// Len returns the current number of values held.
func (w *Window) Len() int {
	return len(w.vals)
}

// Last returns the most recent value, or 0 when empty.
func (w *Window) Last() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	return w.vals[len(w.vals)-1]
}

// Values returns a copy of the window contents, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, len(w.vals))
	copy(out, w.vals)
	return out
}

// Mean returns the arithmetic mean of the window contents.
func (w *Window) Mean() float64 {
	if len(w.vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.vals {
		sum += v
	}
	return sum / float64(len(w.vals))
}

// SampleStdDev returns the sample standard deviation (N-1 denominator)
// of the window contents.
func (w *Window) SampleStdDev() float64 {
	n := len(w.vals)
	if n < 2 {
		return 0
	}
	m := w.Mean()
	var sum float64
	for _, v := range w.vals {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(n-1))
}
