package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"regime-trader/config"
	"regime-trader/logging"
	"regime-trader/models"
)

// KlineFeed streams confirmed klines from the public websocket and converts
// them into bars. Bars are delivered on a channel; the consumer processes
// them strictly sequentially.
type KlineFeed struct {
	cfg    *config.Config
	logger logging.LoggerInterface
	bars   chan models.Bar
}

// NewKlineFeed creates a feed for the configured symbol and interval.
func NewKlineFeed(cfg *config.Config, logger logging.LoggerInterface) *KlineFeed {
	return &KlineFeed{
		cfg:    cfg,
		logger: logger,
		bars:   make(chan models.Bar, 16),
	}
}

// Bars returns the channel of confirmed bars.
func (f *KlineFeed) Bars() <-chan models.Bar {
	return f.bars
}

// Run connects, subscribes and pumps bars until the context is cancelled.
// Connection failures are retried with exponential backoff; an established
// connection that drops is re-dialed from scratch.
func (f *KlineFeed) Run(ctx context.Context) error {
	defer close(f.bars)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := f.connect(ctx)
		if err != nil {
			return fmt.Errorf("connect kline feed: %w", err)
		}

		err = f.readLoop(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warning("kline stream dropped: %v, reconnecting", err)
	}
}

func (f *KlineFeed) connect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	operation := func() error {
		c, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.WSPublicURL, nil)
		if err != nil {
			f.logger.Warning("dial %s failed: %v", f.cfg.WSPublicURL, err)
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(time.Duration(f.cfg.PongWait) * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(time.Duration(f.cfg.PongWait) * time.Second))
		return nil
	})

	if err := conn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": []string{f.klineTopic()},
	}); err != nil {
		conn.Close()
		return nil, err
	}
	// Subscription acknowledgment
	conn.ReadMessage()

	f.logger.Info("subscribed to %s", f.klineTopic())
	return conn, nil
}

func (f *KlineFeed) readLoop(ctx context.Context, conn *websocket.Conn) error {
	ping := time.NewTicker(time.Duration(f.cfg.PingPeriod) * time.Second)
	defer ping.Stop()

	msgs := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			msgs <- raw
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ping.C:
			if err := conn.WriteJSON(map[string]string{"op": "ping"}); err != nil {
				return err
			}
		case err := <-readErr:
			return err
		case raw := <-msgs:
			f.handleMessage(raw)
		}
	}
}

func (f *KlineFeed) handleMessage(raw []byte) {
	var msg models.KlineMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if !strings.HasPrefix(msg.Topic, "kline.") {
		return
	}
	for _, k := range msg.Data {
		if !k.Confirm {
			// Only closed candles become bars.
			continue
		}
		bar := k.Bar()
		select {
		case f.bars <- bar:
		default:
			f.logger.Warning("bar channel full, dropping bar at %s", bar.Timestamp)
		}
	}
}

func (f *KlineFeed) klineTopic() string {
	return "kline." + f.cfg.Interval + "." + f.cfg.Symbol
}
