package feed

import (
	"testing"
	"time"

	"regime-trader/config"
	"regime-trader/logging"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})    {}
func (nopLogger) Info(string, ...interface{})     {}
func (nopLogger) Warning(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{})    {}
func (nopLogger) Fatal(string, ...interface{})    {}
func (nopLogger) ChangeLogLevel(logging.LogLevel) {}

func TestHandleMessageOnlyEmitsConfirmedKlines(t *testing.T) {
	f := NewKlineFeed(config.LoadConfig(), nopLogger{})

	raw := []byte(`{
		"topic": "kline.5.BTCUSDT",
		"data": [
			{"start": 1700000000000, "open": "100", "high": "101", "low": "99", "close": "100.5", "volume": "12", "confirm": false},
			{"start": 1700000300000, "open": "100.5", "high": "102", "low": "100", "close": "101.5", "volume": "8", "confirm": true}
		]
	}`)
	f.handleMessage(raw)

	select {
	case bar := <-f.Bars():
		if !bar.Timestamp.Equal(time.UnixMilli(1700000300000)) {
			t.Fatalf("wrong bar emitted: %+v", bar)
		}
		if bar.Close != 101.5 || bar.Volume != 8 {
			t.Fatalf("bar values mismatch: %+v", bar)
		}
	default:
		t.Fatalf("confirmed kline was not emitted")
	}

	select {
	case bar := <-f.Bars():
		t.Fatalf("unconfirmed kline emitted: %+v", bar)
	default:
	}
}

func TestHandleMessageIgnoresOtherTopics(t *testing.T) {
	f := NewKlineFeed(config.LoadConfig(), nopLogger{})
	f.handleMessage([]byte(`{"topic": "orderbook.50.BTCUSDT", "data": []}`))
	f.handleMessage([]byte(`not even json`))

	select {
	case bar := <-f.Bars():
		t.Fatalf("unexpected bar: %+v", bar)
	default:
	}
}
