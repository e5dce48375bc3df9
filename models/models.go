package models

import (
	"strconv"
	"time"
)

// Bar is a single consolidated price bar. Bars are immutable once received;
// indicators consume them and keep only derived state.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Action describes what the host should do with a position.
type Action string

const (
	ActionOpen  Action = "OPEN"
	ActionClose Action = "CLOSE"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Mode distinguishes mean-reversion trades from breakout trades.
type Mode string

const (
	ModeReversion Mode = "REVERSION"
	ModeBreakout  Mode = "BREAKOUT"
)

// TradeIntent is a single decision emitted by the engine for one bar.
// SizeFraction is a signed multiplier of allocatable capital (positive for
// long, negative for short); the host maps it to an absolute order quantity.
// Close intents carry SizeFraction 0 and mean "flatten this mode/side".
type TradeIntent struct {
	Action       Action
	Side         Side
	Mode         Mode
	SizeFraction float64
	Tag          string
}

// IndicatorSnapshot holds the latest indicator values for status reporting.
type IndicatorSnapshot struct {
	Time         time.Time `json:"time"`
	Close        float64   `json:"close"`
	TrendQuality float64   `json:"trendQuality"`
	TQReady      bool      `json:"tqReady"`
	Upper        float64   `json:"upper"`
	Mid          float64   `json:"mid"`
	Lower        float64   `json:"lower"`
	ChannelReady bool      `json:"channelReady"`
}

// BookSnapshot holds the pyramiding counters for status reporting.
type BookSnapshot struct {
	ReversionLong  int `json:"reversionLong"`
	ReversionShort int `json:"reversionShort"`
	BreakoutLong   int `json:"breakoutLong"`
	BreakoutShort  int `json:"breakoutShort"`
}

// EngineSnapshot is the engine state exposed to the status server.
type EngineSnapshot struct {
	Bars       uint64            `json:"bars"`
	Indicators IndicatorSnapshot `json:"indicators"`
	Book       BookSnapshot      `json:"book"`
}

// KlineMsg represents a kline stream message.
type KlineMsg struct {
	Topic string      `json:"topic"`
	Data  []KlineData `json:"data"`
}

// KlineData represents a single kline payload entry.
type KlineData struct {
	Start   int64  `json:"start"`
	Open    string `json:"open"`
	High    string `json:"high"`
	Low     string `json:"low"`
	Close   string `json:"close"`
	Volume  string `json:"volume"`
	Confirm bool   `json:"confirm"`
}

// Bar converts a confirmed kline entry into a Bar.
func (k KlineData) Bar() Bar {
	return Bar{
		Timestamp: time.UnixMilli(k.Start),
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
