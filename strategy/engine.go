package strategy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"regime-trader/config"
	"regime-trader/indicators"
	"regime-trader/logging"
	"regime-trader/models"
)

// ErrOutOfOrderBar is returned when a bar does not advance the clock. The
// bar is not processed; the host decides whether to drop it or abort.
var ErrOutOfOrderBar = errors.New("bar timestamp not after previous bar")

// regimeIndicator produces a scalar regime score per close.
type regimeIndicator interface {
	Update(close float64) (float64, bool)
}

// channelIndicator produces channel bands per close.
type channelIndicator interface {
	Update(close float64) (indicators.Bands, bool)
}

// Engine is the per-instrument decision state machine. It consumes a
// strictly ordered bar stream and emits trade intents; it never talks to a
// broker itself. One Engine serves exactly one instrument and must not be
// shared; OnBar is not safe for concurrent use.
type Engine struct {
	cfg    *config.Config
	logger logging.LoggerInterface

	tq      regimeIndicator
	channel channelIndicator
	book    Book

	lastTime time.Time
	bars     uint64

	snapMu sync.RWMutex
	snap   models.EngineSnapshot
}

// NewEngine validates the configuration and builds the engine with its
// indicator chain. Invalid parameters are rejected here, before any bar is
// processed.
func NewEngine(cfg *config.Config, logger logging.LoggerInterface) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	channel, err := indicators.NewChannel(cfg.ChannelVariant, cfg.Period, cfg.UpperDeviation, cfg.LowerDeviation)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		tq:      indicators.NewTrendQuality(cfg.FastLength, cfg.SlowLength, cfg.TrendLength, cfg.NoiseLength, cfg.CorrectionFactor),
		channel: channel,
	}, nil
}

// OnBar processes one bar: window and indicator updates, then exits, then
// entries. Exits run before entries so a position never opens and closes
// within the same bar, and so a breakout entry always sees counters that
// already reflect this bar's regime reading.
func (e *Engine) OnBar(bar models.Bar) ([]models.TradeIntent, error) {
	if !e.lastTime.IsZero() && !bar.Timestamp.After(e.lastTime) {
		return nil, fmt.Errorf("%w: got %s, previous %s", ErrOutOfOrderBar,
			bar.Timestamp.Format(time.RFC3339), e.lastTime.Format(time.RFC3339))
	}
	e.lastTime = bar.Timestamp
	e.bars++

	closePrice := bar.Close
	tq, tqReady := e.tq.Update(closePrice)
	bands, channelReady := e.channel.Update(closePrice)

	defer e.storeSnapshot(bar, tq, tqReady, bands, channelReady)

	if !channelReady {
		return nil, nil
	}

	intents := e.exits(closePrice, bands, tq, tqReady)
	intents = append(intents, e.entries(closePrice, bands, tq, tqReady)...)
	return intents, nil
}

// Snapshot returns the last processed state for status reporting. Safe to
// call concurrently with OnBar.
func (e *Engine) Snapshot() models.EngineSnapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// exits evaluates all close conditions against the current bar.
//
// A NotReady TQ counts as an extreme reading for reversion exits: a
// reversion position is only held while the regime score is trustworthy.
// Breakout exits instead require a valid reading back inside the thresholds,
// so NotReady never closes a breakout.
func (e *Engine) exits(closePrice float64, b indicators.Bands, tq float64, tqReady bool) []models.TradeIntent {
	cfg := e.cfg
	tqExtreme := !tqReady || tq >= cfg.HighThreshold || tq <= cfg.LowThreshold
	tqInside := tqReady && tq > cfg.LowThreshold && tq < cfg.HighThreshold
	backUnderUpper := closePrice < b.Upper-closePrice*cfg.BetweenFactor
	backAboveLower := closePrice > b.Lower+closePrice*cfg.BetweenFactor

	var out []models.TradeIntent
	if e.book.ReversionShort > 0 && (backUnderUpper || tqExtreme) {
		out = append(out, e.closeOut(models.SideShort, models.ModeReversion))
	}
	if e.book.ReversionLong > 0 && (backAboveLower || tqExtreme) {
		out = append(out, e.closeOut(models.SideLong, models.ModeReversion))
	}
	if e.book.BreakoutLong > 0 && backUnderUpper && tqInside {
		out = append(out, e.closeOut(models.SideLong, models.ModeBreakout))
	}
	if e.book.BreakoutShort > 0 && backAboveLower && tqInside {
		out = append(out, e.closeOut(models.SideShort, models.ModeBreakout))
	}
	return out
}

// entries evaluates open conditions. A band touch with the regime score
// still inside its threshold is a reversion trade; a touch with the score
// beyond the threshold is a breakout, which first flattens every
// opposite-direction position. All entries are suppressed while TQ is
// NotReady.
func (e *Engine) entries(closePrice float64, b indicators.Bands, tq float64, tqReady bool) []models.TradeIntent {
	if !tqReady {
		return nil
	}
	cfg := e.cfg
	aboveUpper := closePrice > b.Upper
	belowLower := closePrice < b.Lower

	var out []models.TradeIntent

	if aboveUpper && tq < cfg.HighThreshold && e.book.ReversionShort < cfg.MaxOrders {
		out = append(out, e.open(models.SideShort, models.ModeReversion))
	}
	if belowLower && tq > cfg.LowThreshold && e.book.ReversionLong < cfg.MaxOrders {
		out = append(out, e.open(models.SideLong, models.ModeReversion))
	}

	if aboveUpper && tq > cfg.HighThreshold {
		if e.book.ReversionShort > 0 {
			out = append(out, e.closeOut(models.SideShort, models.ModeReversion))
		}
		if e.book.BreakoutShort > 0 {
			out = append(out, e.closeOut(models.SideShort, models.ModeBreakout))
		}
		if e.book.BreakoutLong < cfg.MaxOrders {
			out = append(out, e.open(models.SideLong, models.ModeBreakout))
		}
	}
	if belowLower && tq < cfg.LowThreshold {
		if e.book.ReversionLong > 0 {
			out = append(out, e.closeOut(models.SideLong, models.ModeReversion))
		}
		if e.book.BreakoutLong > 0 {
			out = append(out, e.closeOut(models.SideLong, models.ModeBreakout))
		}
		if e.book.BreakoutShort < cfg.MaxOrders {
			out = append(out, e.open(models.SideShort, models.ModeBreakout))
		}
	}
	return out
}

func (e *Engine) open(side models.Side, mode models.Mode) models.TradeIntent {
	e.book.Add(side, mode)
	size := e.cfg.PositionFraction
	if side == models.SideShort {
		size = -size
	}
	e.logger.Info("open %s %s (%d/%d)", mode, side, e.book.Count(side, mode), e.cfg.MaxOrders)
	return models.TradeIntent{
		Action:       models.ActionOpen,
		Side:         side,
		Mode:         mode,
		SizeFraction: size,
		Tag:          fmt.Sprintf("Open %s %s", mode, side),
	}
}

func (e *Engine) closeOut(side models.Side, mode models.Mode) models.TradeIntent {
	e.book.Flatten(side, mode)
	e.logger.Info("close %s %s", mode, side)
	return models.TradeIntent{
		Action: models.ActionClose,
		Side:   side,
		Mode:   mode,
		Tag:    fmt.Sprintf("Close %s %s", mode, side),
	}
}

func (e *Engine) storeSnapshot(bar models.Bar, tq float64, tqReady bool, b indicators.Bands, channelReady bool) {
	e.snapMu.Lock()
	defer e.snapMu.Unlock()
	e.snap = models.EngineSnapshot{
		Bars: e.bars,
		Indicators: models.IndicatorSnapshot{
			Time:         bar.Timestamp,
			Close:        bar.Close,
			TrendQuality: tq,
			TQReady:      tqReady,
			Upper:        b.Upper,
			Mid:          b.Mid,
			Lower:        b.Lower,
			ChannelReady: channelReady,
		},
		Book: e.book.Snapshot(),
	}
}
