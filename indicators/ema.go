package indicators

// EMA is an incremental exponential moving average. It is seeded with the
// simple average of the first `length` values and reports not-ready until
// that many values have been seen.
type EMA struct {
	length int
	mult   float64
	sum    float64
	count  int
	value  float64
	ready  bool
}

// NewEMA creates an EMA with the standard 2/(length+1) multiplier.
func NewEMA(length int) *EMA {
	return &EMA{
		length: length,
		mult:   2.0 / float64(length+1),
	}
}

// Update feeds one value and returns the current average and readiness.
func (e *EMA) Update(v float64) (float64, bool) {
	if !e.ready {
		e.sum += v
		e.count++
		if e.count < e.length {
			return 0, false
		}
		e.value = e.sum / float64(e.length)
		e.ready = true
		return e.value, true
	}
	e.value = v*e.mult + e.value*(1-e.mult)
	return e.value, true
}

// Ready reports whether the seed period has completed.
func (e *EMA) Ready() bool {
	return e.ready
}
