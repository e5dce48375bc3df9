package indicators

import "math"

// noiseEpsilon is the smallest noise value usable as a divisor; anything at
// or below it (a flat tape) makes the indicator report not-ready instead of
// producing an unbounded ratio.
const noiseEpsilon = 1e-12

// TrendQuality measures trend strength as the ratio of smoothed cumulative
// price change to recent noise. High positive values mean a strong clean
// uptrend, high negative values a strong downtrend, values near zero a
// choppy, ranging market.
//
// The cumulative price change (CPC) resets whenever the fast/slow EMA
// relation flips sign, so the score only accumulates within one EMA regime.
type TrendQuality struct {
	fast       *EMA
	slow       *EMA
	smf        float64
	correction float64

	cpc       float64
	trend     float64
	prevClose float64
	hasPrev   bool
	lastSign  int // +1 fast above slow, -1 otherwise, 0 before first reading
	noise     *Window
}

// NewTrendQuality creates a Trend-Quality indicator.
func NewTrendQuality(fastLength, slowLength, trendLength, noiseLength int, correctionFactor float64) *TrendQuality {
	return &TrendQuality{
		fast:       NewEMA(fastLength),
		slow:       NewEMA(slowLength),
		smf:        2.0 / float64(1+trendLength),
		correction: correctionFactor,
		noise:      NewWindow(noiseLength),
	}
}

// Update feeds one close and returns the TQ score and readiness. The score
// is a pure function of the close history fed so far; the same prefix always
// yields the same output.
func (t *TrendQuality) Update(close float64) (float64, bool) {
	fastV, fastOK := t.fast.Update(close)
	slowV, slowOK := t.slow.Update(close)
	if !fastOK || !slowOK {
		t.prevClose = close
		t.hasPrev = true
		return 0, false
	}

	sign := -1
	if fastV > slowV {
		sign = 1
	}

	if t.hasPrev {
		if t.lastSign != sign {
			// EMA cross: the regime flipped, start accumulating afresh.
			t.cpc = 0
			t.trend = 0
		} else {
			t.cpc += close - t.prevClose
			t.trend = t.trend*(1-t.smf) + t.cpc*t.smf
		}
	}

	t.noise.Push(math.Abs(t.cpc - t.trend))
	t.prevClose = close
	t.hasPrev = true
	t.lastSign = sign

	if !t.noise.Full() {
		return 0, false
	}
	noise := t.noise.Mean() * t.correction
	if noise <= noiseEpsilon {
		return 0, false
	}
	return t.trend / noise, true
}
