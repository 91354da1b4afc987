package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sawpanic/cryptorun/internal/candle"
)

// tick is one venue-agnostic price update extracted from a raw websocket
// message; ok is false for control/non-ticker frames that should be
// silently skipped, the same convention the teacher's per-venue
// normalizers use.
type tick struct {
	price  float64
	volume float64
	at     time.Time
	ok     bool
}

// tickParser turns one raw websocket frame into a tick, venue-specific.
type tickParser func(message []byte) (tick, error)

// WSConnector is a generic gorilla/websocket-backed Connector: it dials a
// venue's endpoint, sends an optional subscribe frame, and aggregates raw
// ticks into OHLCV bars at the requested interval, emitting a candle each
// time the bucket boundary rolls over. Bar aggregation is necessary
// because venue ticker feeds push trade/quote updates, not pre-built
// candles.
type WSConnector struct {
	venue     string
	dialURL   func(symbol candle.Symbol) string
	subscribe func(symbol candle.Symbol) []byte
	parse     tickParser
	log       zerolog.Logger
}

func NewWSConnector(venue string, dialURL func(candle.Symbol) string, subscribe func(candle.Symbol) []byte, parse tickParser, log zerolog.Logger) *WSConnector {
	return &WSConnector{venue: venue, dialURL: dialURL, subscribe: subscribe, parse: parse, log: log.With().Str("venue", venue).Logger()}
}

func (c *WSConnector) Connect(ctx context.Context, symbol candle.Symbol, interval candle.Interval) (<-chan candle.Candle, <-chan error, func() error, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.dialURL(symbol), nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: dial: %w", c.venue, err)
	}

	if c.subscribe != nil {
		if err := conn.WriteMessage(websocket.TextMessage, c.subscribe(symbol)); err != nil {
			_ = conn.Close()
			return nil, nil, nil, fmt.Errorf("%s: subscribe: %w", c.venue, err)
		}
	}

	candles := make(chan candle.Candle, 16)
	errs := make(chan error, 4)

	go c.readLoop(ctx, conn, symbol, interval, candles, errs)

	closeFn := func() error { return conn.Close() }
	return candles, errs, closeFn, nil
}

func (c *WSConnector) readLoop(ctx context.Context, conn *websocket.Conn, symbol candle.Symbol, interval candle.Interval, candles chan<- candle.Candle, errs chan<- error) {
	defer close(candles)
	defer close(errs)

	step := interval.Duration()
	var current *candle.Candle
	var bucket time.Time

	for {
		if ctx.Err() != nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case errs <- fmt.Errorf("%s: read: %w", c.venue, err):
			default:
			}
			return
		}

		t, err := c.parse(message)
		if err != nil {
			select {
			case errs <- fmt.Errorf("%s: parse: %w", c.venue, err):
			default:
			}
			continue
		}
		if !t.ok {
			continue
		}

		tb := t.at.Truncate(step)
		switch {
		case current == nil:
			current = newBar(symbol, c.venue, interval, tb, t)
			bucket = tb
		case tb.Equal(bucket):
			updateBar(current, t)
		default:
			current.CloseTime = bucket.Add(step)
			select {
			case candles <- *current:
			case <-ctx.Done():
				return
			}
			current = newBar(symbol, c.venue, interval, tb, t)
			bucket = tb
		}
	}
}

func newBar(symbol candle.Symbol, venue string, interval candle.Interval, openTime time.Time, t tick) *candle.Candle {
	return &candle.Candle{
		Symbol: symbol, Venue: venue, Interval: interval,
		OpenTime: openTime,
		Open:     t.price, High: t.price, Low: t.price, Close: t.price,
		Volume: t.volume,
	}
}

func updateBar(c *candle.Candle, t tick) {
	if t.price > c.High {
		c.High = t.price
	}
	if t.price < c.Low {
		c.Low = t.price
	}
	c.Close = t.price
	c.Volume += t.volume
}

// Kraken ticker messages arrive as [channelID, data, channelName, pair];
// data carries the last-trade close price and lot volume.
func ParseKrakenTick(message []byte) (tick, error) {
	var raw []interface{}
	if err := json.Unmarshal(message, &raw); err != nil {
		return tick{}, nil // non-array control frames are not ticker updates
	}
	if len(raw) < 4 {
		return tick{}, nil
	}
	channelName, ok := raw[2].(string)
	if !ok || channelName != "ticker" {
		return tick{}, nil
	}
	data, ok := raw[1].(map[string]interface{})
	if !ok {
		return tick{}, nil
	}

	closeData, ok := data["c"].([]interface{})
	if !ok || len(closeData) < 1 {
		return tick{}, nil
	}
	price, err := strconv.ParseFloat(closeData[0].(string), 64)
	if err != nil {
		return tick{}, fmt.Errorf("kraken: bad close price: %w", err)
	}

	var volume float64
	if volData, ok := data["v"].([]interface{}); ok && len(volData) >= 1 {
		volume, _ = strconv.ParseFloat(volData[0].(string), 64)
	}

	return tick{price: price, volume: volume, at: time.Now().UTC(), ok: true}, nil
}

func DialKrakenURL(_ candle.Symbol) string { return "wss://ws.kraken.com" }

func SubscribeKraken(symbol candle.Symbol) []byte {
	pair := krakenPair(symbol)
	payload := map[string]interface{}{
		"event": "subscribe",
		"pair":  []string{pair},
		"subscription": map[string]string{
			"name": "ticker",
		},
	}
	b, _ := json.Marshal(payload)
	return b
}

func krakenPair(symbol candle.Symbol) string {
	s := string(symbol)
	if strings.HasSuffix(s, "USD") && len(s) > 3 {
		return s[:len(s)-3] + "/USD"
	}
	return s
}

// Binance combined-stream ticker messages carry the close price under "c"
// and quote volume under "q".
type binanceStreamMsg struct {
	Data struct {
		LastPrice   string `json:"c"`
		QuoteVolume string `json:"q"`
	} `json:"data"`
}

func ParseBinanceTick(message []byte) (tick, error) {
	var msg binanceStreamMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		return tick{}, nil
	}
	if msg.Data.LastPrice == "" {
		return tick{}, nil
	}
	price, err := strconv.ParseFloat(msg.Data.LastPrice, 64)
	if err != nil {
		return tick{}, fmt.Errorf("binance: bad last price: %w", err)
	}
	volume, _ := strconv.ParseFloat(msg.Data.QuoteVolume, 64)
	return tick{price: price, volume: volume, at: time.Now().UTC(), ok: true}, nil
}

func DialBinanceURL(symbol candle.Symbol) string {
	stream := strings.ToLower(string(symbol)) + "@ticker"
	return "wss://stream.binance.com:9443/stream?streams=" + stream
}
