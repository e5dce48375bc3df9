package backtest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"regime-trader/logging"
	"regime-trader/models"
	"regime-trader/strategy"
)

// Result summarizes one replay.
type Result struct {
	Bars       int
	Skipped    int // bars rejected for timestamp violations
	Intents    int
	Opens      int
	Closes     int
	Realized   float64 // realized PnL as a fraction of starting capital
	Unrealized float64 // mark-to-market of open exposure at the last bar
	Equity     float64 // 1.0 + Realized + Unrealized
}

type positionKey struct {
	Side models.Side
	Mode models.Mode
}

// position is the simulated exposure for one mode/side: a capital fraction
// and its volume-weighted entry price.
type position struct {
	fraction float64
	avgPrice float64
}

// Runner replays a bar series through the engine and applies a naive fill
// model: every intent fills immediately at the bar close, with no fees or
// slippage. PnL is tracked in capital fractions, so equity starts at 1.0.
type Runner struct {
	engine    *strategy.Engine
	logger    logging.LoggerInterface
	positions map[positionKey]*position
}

// NewRunner creates a runner around an engine.
func NewRunner(engine *strategy.Engine, logger logging.LoggerInterface) *Runner {
	return &Runner{
		engine:    engine,
		logger:    logger,
		positions: make(map[positionKey]*position),
	}
}

// Run replays the bars in order and returns the summary. Out-of-order bars
// are reported and skipped rather than reprocessed.
func (r *Runner) Run(bars []models.Bar) (*Result, error) {
	res := &Result{}
	var lastClose float64

	for _, bar := range bars {
		intents, err := r.engine.OnBar(bar)
		if err != nil {
			if errors.Is(err, strategy.ErrOutOfOrderBar) {
				r.logger.Warning("skipping bar: %v", err)
				res.Skipped++
				continue
			}
			return nil, err
		}
		res.Bars++
		lastClose = bar.Close
		res.Intents += len(intents)
		for _, intent := range intents {
			r.apply(intent, bar.Close, res)
		}
	}

	res.Unrealized = r.markToMarket(lastClose)
	res.Equity = 1.0 + res.Realized + res.Unrealized
	return res, nil
}

func (r *Runner) apply(intent models.TradeIntent, price float64, res *Result) {
	key := positionKey{Side: intent.Side, Mode: intent.Mode}
	switch intent.Action {
	case models.ActionOpen:
		res.Opens++
		pos := r.positions[key]
		if pos == nil {
			pos = &position{}
			r.positions[key] = pos
		}
		add := intent.SizeFraction
		if add < 0 {
			add = -add
		}
		total := pos.fraction + add
		if total > 0 {
			pos.avgPrice = (pos.avgPrice*pos.fraction + price*add) / total
		}
		pos.fraction = total
	case models.ActionClose:
		res.Closes++
		pos := r.positions[key]
		if pos == nil || pos.fraction == 0 {
			return
		}
		res.Realized += pnl(key.Side, pos, price)
		delete(r.positions, key)
	}
}

func (r *Runner) markToMarket(price float64) float64 {
	if price == 0 {
		return 0
	}
	total := 0.0
	for key, pos := range r.positions {
		total += pnl(key.Side, pos, price)
	}
	return total
}

func pnl(side models.Side, pos *position, price float64) float64 {
	if pos.avgPrice == 0 {
		return 0
	}
	move := (price - pos.avgPrice) / pos.avgPrice
	if side == models.SideShort {
		move = -move
	}
	return pos.fraction * move
}

// LoadBarsCSV reads bars from a CSV file with columns
// timestamp,open,high,low,close,volume. Timestamps are unix seconds or
// milliseconds; a header row is skipped automatically.
func LoadBarsCSV(path string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars file: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read bars file %q: %w", path, err)
	}

	bars := make([]models.Bar, 0, len(records))
	for i, rec := range records {
		if len(rec) < 6 {
			return nil, fmt.Errorf("row %d: expected 6 columns, got %d", i+1, len(rec))
		}
		ts, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			if i == 0 {
				// Header row
				continue
			}
			return nil, fmt.Errorf("row %d: bad timestamp %q", i+1, rec[0])
		}
		bar := models.Bar{Timestamp: parseUnix(ts)}
		for j, dst := range []*float64{&bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume} {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: bad value %q", i+1, rec[j+1])
			}
			*dst = v
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseUnix accepts both seconds and milliseconds.
func parseUnix(ts int64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}
