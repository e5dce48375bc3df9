package strategy

import (
	"errors"
	"testing"
	"time"

	"regime-trader/config"
	"regime-trader/indicators"
	"regime-trader/logging"
	"regime-trader/models"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})    {}
func (nopLogger) Info(string, ...interface{})     {}
func (nopLogger) Warning(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{})    {}
func (nopLogger) Fatal(string, ...interface{})    {}
func (nopLogger) ChangeLogLevel(logging.LogLevel) {}

type regimeFunc func(float64) (float64, bool)

func (f regimeFunc) Update(c float64) (float64, bool) { return f(c) }

type channelFunc func(float64) (indicators.Bands, bool)

func (f channelFunc) Update(c float64) (indicators.Bands, bool) { return f(c) }

// step is one scripted bar: the close plus the indicator readings the
// stubbed indicators will report for it.
type step struct {
	close   float64
	tq      float64
	tqReady bool
}

func testConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.HighThreshold = 2.5
	cfg.LowThreshold = -4
	cfg.BetweenFactor = 0
	cfg.MaxOrders = 3
	cfg.PositionFraction = 0.5
	return cfg
}

// scriptedEngine fixes the bands at 90..100 and lets each test drive the TQ
// reading per bar, so the decision rules can be exercised in isolation.
func scriptedEngine(t *testing.T, cur *step) *Engine {
	t.Helper()
	e, err := NewEngine(testConfig(), nopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	e.tq = regimeFunc(func(float64) (float64, bool) { return cur.tq, cur.tqReady })
	e.channel = channelFunc(func(float64) (indicators.Bands, bool) {
		return indicators.Bands{Upper: 100, Mid: 95, Lower: 90}, true
	})
	return e
}

func runStep(t *testing.T, e *Engine, bar int, s *step, next step) []models.TradeIntent {
	t.Helper()
	*s = next
	ts := time.Unix(int64(bar)*60, 0)
	intents, err := e.OnBar(models.Bar{Timestamp: ts, Close: next.close})
	if err != nil {
		t.Fatalf("bar %d: %v", bar, err)
	}
	return intents
}

func TestEntriesSuppressedWhileTQNotReady(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)

	intents := runStep(t, e, 1, &cur, step{close: 101, tqReady: false})
	if len(intents) != 0 {
		t.Fatalf("expected no intents during warm-up, got %v", intents)
	}
}

func TestReversionShortPyramidsToCap(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)

	// Band touch with the regime score inside the thresholds.
	for bar := 1; bar <= 3; bar++ {
		intents := runStep(t, e, bar, &cur, step{close: 101, tq: 0, tqReady: true})
		if len(intents) != 1 || intents[0].Action != models.ActionOpen {
			t.Fatalf("bar %d: expected one open, got %v", bar, intents)
		}
		if intents[0].Side != models.SideShort || intents[0].Mode != models.ModeReversion {
			t.Fatalf("bar %d: expected reversion short, got %v", bar, intents[0])
		}
		if intents[0].SizeFraction != -0.5 {
			t.Fatalf("bar %d: expected size -0.5, got %v", bar, intents[0].SizeFraction)
		}
		if e.book.ReversionShort != bar {
			t.Fatalf("bar %d: counter %d", bar, e.book.ReversionShort)
		}
	}

	// A fourth qualifying bar must not stack beyond the cap.
	intents := runStep(t, e, 4, &cur, step{close: 101, tq: 0, tqReady: true})
	if len(intents) != 0 {
		t.Fatalf("expected no intents at the cap, got %v", intents)
	}
	if e.book.ReversionShort != 3 {
		t.Fatalf("counter moved past the cap: %d", e.book.ReversionShort)
	}
}

func TestReversionExitResetsCounter(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)

	runStep(t, e, 1, &cur, step{close: 101, tq: 0, tqReady: true})
	runStep(t, e, 2, &cur, step{close: 101, tq: 0, tqReady: true})
	if e.book.ReversionShort != 2 {
		t.Fatalf("setup failed, counter %d", e.book.ReversionShort)
	}

	// Price back inside the channel closes the whole stack at once.
	intents := runStep(t, e, 3, &cur, step{close: 95, tq: 0, tqReady: true})
	if len(intents) != 1 || intents[0].Action != models.ActionClose {
		t.Fatalf("expected one close, got %v", intents)
	}
	if intents[0].Side != models.SideShort || intents[0].Mode != models.ModeReversion {
		t.Fatalf("expected reversion short close, got %v", intents[0])
	}
	if e.book.ReversionShort != 0 {
		t.Fatalf("counter not reset, got %d", e.book.ReversionShort)
	}
}

func TestBreakoutFlattensOpposingReversion(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)

	runStep(t, e, 1, &cur, step{close: 101, tq: 0, tqReady: true})
	if e.book.ReversionShort != 1 {
		t.Fatalf("setup failed, counter %d", e.book.ReversionShort)
	}

	// Same band break, but now the trend reading is extreme: the short is
	// closed (extreme TQ exit) and a breakout long opens.
	intents := runStep(t, e, 2, &cur, step{close: 101, tq: 3.0, tqReady: true})
	if len(intents) != 2 {
		t.Fatalf("expected close+open, got %v", intents)
	}
	if intents[0].Action != models.ActionClose || intents[0].Side != models.SideShort || intents[0].Mode != models.ModeReversion {
		t.Fatalf("first intent should close the reversion short, got %v", intents[0])
	}
	if intents[1].Action != models.ActionOpen || intents[1].Side != models.SideLong || intents[1].Mode != models.ModeBreakout {
		t.Fatalf("second intent should open the breakout long, got %v", intents[1])
	}
	if e.book.ReversionShort != 0 || e.book.BreakoutLong != 1 {
		t.Fatalf("book mismatch: %+v", e.book)
	}
}

func TestBreakoutLongFlattensBreakoutShort(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)
	e.book.BreakoutShort = 2

	intents := runStep(t, e, 1, &cur, step{close: 101, tq: 3.0, tqReady: true})
	if len(intents) != 2 {
		t.Fatalf("expected close+open, got %v", intents)
	}
	if intents[0].Action != models.ActionClose || intents[0].Side != models.SideShort || intents[0].Mode != models.ModeBreakout {
		t.Fatalf("first intent should close the breakout short, got %v", intents[0])
	}
	if intents[1].Action != models.ActionOpen || intents[1].Side != models.SideLong || intents[1].Mode != models.ModeBreakout {
		t.Fatalf("second intent should open the breakout long, got %v", intents[1])
	}
	if e.book.BreakoutShort != 0 || e.book.BreakoutLong != 1 {
		t.Fatalf("book mismatch: %+v", e.book)
	}
}

func TestTQNotReadyClosesReversionButNotBreakout(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)
	e.book.ReversionLong = 1
	e.book.BreakoutLong = 1

	// Below the lower band so the price-driven reversion exit cannot fire;
	// only the unreliable regime reading forces the reversion long out.
	intents := runStep(t, e, 1, &cur, step{close: 89, tqReady: false})
	if len(intents) != 1 {
		t.Fatalf("expected exactly one intent, got %v", intents)
	}
	got := intents[0]
	if got.Action != models.ActionClose || got.Side != models.SideLong || got.Mode != models.ModeReversion {
		t.Fatalf("expected reversion long close, got %v", got)
	}
	if e.book.BreakoutLong != 1 {
		t.Fatalf("breakout long should survive a NotReady bar, book %+v", e.book)
	}
}

func TestSameSideModesNeverCoexist(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)

	script := []step{
		{close: 89, tq: 0, tqReady: true},   // reversion long
		{close: 101, tq: 3, tqReady: true},  // breakout long
		{close: 101, tq: 0, tqReady: true},  // reversion short attempt
		{close: 89, tq: -5, tqReady: true},  // breakout short
		{close: 95, tq: 0, tqReady: true},   // back inside
		{close: 89, tq: 0, tqReady: true},   // reversion long again
		{close: 89, tq: -5, tqReady: true},  // breakout short again
		{close: 101, tq: 3, tqReady: true},  // flip to breakout long
		{close: 95, tq: 0, tqReady: false},  // regime reading lost
		{close: 101, tq: 0, tqReady: true},  // reversion short
	}
	for i, s := range script {
		runStep(t, e, i+1, &cur, s)
		if e.book.ReversionLong > 0 && e.book.BreakoutLong > 0 {
			t.Fatalf("step %d: long reversion and breakout coexist: %+v", i, e.book)
		}
		if e.book.ReversionShort > 0 && e.book.BreakoutShort > 0 {
			t.Fatalf("step %d: short reversion and breakout coexist: %+v", i, e.book)
		}
		for _, c := range []int{e.book.ReversionLong, e.book.ReversionShort, e.book.BreakoutLong, e.book.BreakoutShort} {
			if c < 0 || c > e.cfg.MaxOrders {
				t.Fatalf("step %d: counter out of range: %+v", i, e.book)
			}
		}
	}
}

func TestOutOfOrderBarRejected(t *testing.T) {
	var cur step
	e := scriptedEngine(t, &cur)

	cur = step{close: 95, tq: 0, tqReady: true}
	ts := time.Unix(600, 0)
	if _, err := e.OnBar(models.Bar{Timestamp: ts, Close: 95}); err != nil {
		t.Fatalf("first bar: %v", err)
	}
	if _, err := e.OnBar(models.Bar{Timestamp: ts, Close: 95}); !errors.Is(err, ErrOutOfOrderBar) {
		t.Fatalf("duplicate timestamp: expected ErrOutOfOrderBar, got %v", err)
	}
	if _, err := e.OnBar(models.Bar{Timestamp: ts.Add(-time.Minute), Close: 95}); !errors.Is(err, ErrOutOfOrderBar) {
		t.Fatalf("backwards timestamp: expected ErrOutOfOrderBar, got %v", err)
	}
	// A later bar is processed normally after a rejection.
	if _, err := e.OnBar(models.Bar{Timestamp: ts.Add(time.Minute), Close: 95}); err != nil {
		t.Fatalf("next valid bar: %v", err)
	}
}

func TestConstantPriceSeriesProducesNoIntents(t *testing.T) {
	cfg := testConfig()
	cfg.Period = 3
	cfg.FastLength = 2
	cfg.SlowLength = 3
	cfg.TrendLength = 2
	cfg.NoiseLength = 3

	e, err := NewEngine(cfg, nopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	for bar := 0; bar < 200; bar++ {
		intents, err := e.OnBar(models.Bar{
			Timestamp: time.Unix(int64(bar)*60, 0),
			Close:     100,
		})
		if err != nil {
			t.Fatalf("bar %d: %v", bar, err)
		}
		if len(intents) != 0 {
			t.Fatalf("bar %d: flat tape emitted %v", bar, intents)
		}
	}
}

// Full-stack scenario: a strong accelerating uptrend pushes the close above
// the upper band with an extreme TQ reading, which must classify as a
// breakout long, not a reversion short.
func TestStrongTrendBandBreakOpensBreakoutLong(t *testing.T) {
	cfg := testConfig()
	cfg.Period = 3
	cfg.UpperDeviation = 1.0
	cfg.LowerDeviation = 1.0
	cfg.FastLength = 2
	cfg.SlowLength = 3
	cfg.TrendLength = 2
	cfg.NoiseLength = 3
	cfg.CorrectionFactor = 2.0
	cfg.HighThreshold = 2.5

	e, err := NewEngine(cfg, nopLogger{})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	closes := []float64{1, 4, 16, 64, 256}
	var intents []models.TradeIntent
	for i, c := range closes {
		intents, err = e.OnBar(models.Bar{Timestamp: time.Unix(int64(i)*60, 0), Close: c})
		if err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
		if i < len(closes)-1 && len(intents) != 0 {
			t.Fatalf("bar %d: unexpected intents before warm-up: %v", i, intents)
		}
	}
	if len(intents) != 1 {
		t.Fatalf("expected a single entry on the final bar, got %v", intents)
	}
	got := intents[0]
	if got.Action != models.ActionOpen || got.Side != models.SideLong || got.Mode != models.ModeBreakout {
		t.Fatalf("expected breakout long, got %v", got)
	}
	if got.SizeFraction != cfg.PositionFraction {
		t.Fatalf("expected size %v, got %v", cfg.PositionFraction, got.SizeFraction)
	}
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"period too small", func(c *config.Config) { c.Period = 1 }},
		{"thresholds inverted", func(c *config.Config) { c.LowThreshold = 3; c.HighThreshold = 2 }},
		{"max orders zero", func(c *config.Config) { c.MaxOrders = 0 }},
		{"position fraction too large", func(c *config.Config) { c.PositionFraction = 1.5 }},
		{"unknown variant", func(c *config.Config) { c.ChannelVariant = "KELTNER" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			if _, err := NewEngine(cfg, nopLogger{}); err == nil {
				t.Fatalf("expected configuration error")
			}
		})
	}
}
