package indicators

import (
	"fmt"
	"math"
)

// Bands are the channel values at the current bar.
type Bands struct {
	Upper float64
	Mid   float64
	Lower float64
}

// Channel is a price band indicator updated bar by bar. Update returns the
// bands and readiness; the bands are only valid once the lookback window
// holds a full period of closes.
type Channel interface {
	Update(close float64) (Bands, bool)
}

// NewChannel builds a channel indicator of the given variant
// ("BOLLINGER" or "LINEAR_REGRESSION").
func NewChannel(variant string, period int, upperDeviation, lowerDeviation float64) (Channel, error) {
	switch variant {
	case "BOLLINGER":
		return NewBollingerChannel(period, upperDeviation, lowerDeviation), nil
	case "LINEAR_REGRESSION":
		return NewRegressionChannel(period, upperDeviation, lowerDeviation), nil
	default:
		return nil, fmt.Errorf("unknown channel variant %q", variant)
	}
}

// BollingerChannel is a moving-average channel: mid is the SMA of the window
// and the bands sit a configurable number of sample standard deviations away.
type BollingerChannel struct {
	win       *Window
	upperMult float64
	lowerMult float64
}

// NewBollingerChannel creates a Bollinger-style channel.
func NewBollingerChannel(period int, upperDeviation, lowerDeviation float64) *BollingerChannel {
	return &BollingerChannel{
		win:       NewWindow(period),
		upperMult: upperDeviation,
		lowerMult: lowerDeviation,
	}
}

// Update feeds one close and returns the current bands.
func (c *BollingerChannel) Update(close float64) (Bands, bool) {
	c.win.Push(close)
	if !c.win.Full() {
		return Bands{}, false
	}
	mid := c.win.Mean()
	sd := c.win.SampleStdDev()
	return Bands{
		Upper: mid + c.upperMult*sd,
		Mid:   mid,
		Lower: mid - c.lowerMult*sd,
	}, true
}

// RegressionChannel fits a least-squares line over the window and places the
// bands a configurable number of residual standard deviations away from the
// regression value at the most recent bar. Unlike the Bollinger variant the
// mid line follows the trend direction, so the bands adapt to drift.
type RegressionChannel struct {
	win       *Window
	upperMult float64
	lowerMult float64
}

// NewRegressionChannel creates a linear-regression channel.
func NewRegressionChannel(period int, upperDeviation, lowerDeviation float64) *RegressionChannel {
	return &RegressionChannel{
		win:       NewWindow(period),
		upperMult: upperDeviation,
		lowerMult: lowerDeviation,
	}
}

// Update feeds one close and returns the current bands.
func (c *RegressionChannel) Update(close float64) (Bands, bool) {
	c.win.Push(close)
	if !c.win.Full() {
		return Bands{}, false
	}

	prices := c.win.Values()
	n := len(prices)
	fn := float64(n)

	// x values are the bar indices 0..n-1; their sums have closed forms.
	sumX := fn * (fn - 1) / 2
	sumX2 := (fn - 1) * fn * (2*fn - 1) / 6
	sumY := 0.0
	sumXY := 0.0
	for i, p := range prices {
		sumY += p
		sumXY += float64(i) * p
	}

	denom := fn*sumX2 - sumX*sumX
	if denom == 0 {
		return Bands{}, false
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn

	// Regression value at the current bar (x = n-1).
	mid := slope*(fn-1) + intercept

	// Sample standard deviation of the residuals.
	meanResid := 0.0
	resids := make([]float64, n)
	for i, p := range prices {
		resids[i] = p - (slope*float64(i) + intercept)
		meanResid += resids[i]
	}
	meanResid /= fn
	variance := 0.0
	for _, r := range resids {
		d := r - meanResid
		variance += d * d
	}
	variance /= fn - 1
	sd := 0.0
	if variance > 0 {
		sd = math.Sqrt(variance)
	}

	return Bands{
		Upper: mid + c.upperMult*sd,
		Mid:   mid,
		Lower: mid - c.lowerMult*sd,
	}, true
}
