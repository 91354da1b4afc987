// Package binance implements the exchange.Exchange contract against
// Binance's public REST API.
package binance

import (
	"encoding/json"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/exchange"
	"github.com/sawpanic/cryptorun/internal/exchange/base"
	"github.com/sawpanic/cryptorun/internal/guard"
	"github.com/sawpanic/cryptorun/internal/metrics"
)

const restBaseURL = "https://api.binance.com"

// Adapter wraps Binance's kline REST endpoint behind a rate-limited,
// cached, circuit-broken guard, matching the wiring every venue adapter in
// this package uses. Tuning (20 req/s sustained, burst 50, 5s cache TTL,
// 3 retries) follows Binance's published spot weight limits.
type Adapter struct {
	client *base.Client
}

func New() *Adapter {
	return NewWithMetrics(nil)
}

// NewWithMetrics builds the adapter with its HTTP client reporting
// request/latency metrics to m; pass nil for no metrics, as New does.
func NewWithMetrics(m *metrics.Registry) *Adapter {
	return &Adapter{client: base.New(base.Config{
		Venue:          "binance",
		TTLSeconds:     5,
		BurstLimit:     50,
		SustainedRate:  20,
		MaxRetries:     3,
		BackoffBaseMs:  200,
		FailureThresh:  0.1,
		WindowRequests: 100,
		ProbeInterval:  30,
		Metrics:        m,
	})}
}

func (a *Adapter) Name() string { return "binance" }

func (a *Adapter) NormalizeSymbol(symbol candle.Symbol) string {
	return strings.ToUpper(strings.ReplaceAll(string(symbol), "-", ""))
}

func (a *Adapter) NormalizeInterval(interval candle.Interval) string {
	return string(interval)
}

// binanceIntervals is the closed set of granularities Binance's spot
// klines endpoint serves; every candle.Interval value is supported.
var binanceIntervals = map[candle.Interval]string{
	candle.Interval1m: "1m", candle.Interval3m: "3m", candle.Interval5m: "5m",
	candle.Interval15m: "15m", candle.Interval30m: "30m", candle.Interval1h: "1h",
	candle.Interval2h: "2h", candle.Interval4h: "4h", candle.Interval6h: "6h",
	candle.Interval8h: "8h", candle.Interval12h: "12h", candle.Interval1d: "1d",
	candle.Interval3d: "3d", candle.Interval1w: "1w", candle.Interval1M: "1M",
}

func (a *Adapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	if _, ok := binanceIntervals[interval]; !ok {
		return nil, &candle.UnsupportedIntervalError{Venue: a.Name(), Interval: interval}
	}

	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		restBaseURL, a.NormalizeSymbol(symbol), a.NormalizeInterval(interval), limit)
	if !start.IsZero() {
		url += fmt.Sprintf("&startTime=%d", start.UnixMilli())
	}
	if !end.IsZero() {
		// Binance's endTime is inclusive; the caller's range is half-open
		// [start, end), so request one millisecond short of end.
		url += fmt.Sprintf("&endTime=%d", end.UnixMilli()-1)
	}

	body, err := a.client.Fetch(ctx, url)
	if err != nil {
		return nil, a.client.WrapFetchError(err)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
	}

	candles := make([]candle.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseKline(symbol, interval, row)
		if err != nil {
			return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseKline parses one Binance kline array:
// [openTime, open, high, low, close, volume, closeTime, ...]
func parseKline(symbol candle.Symbol, interval candle.Interval, raw []interface{}) (candle.Candle, error) {
	if len(raw) < 7 {
		return candle.Candle{}, fmt.Errorf("short kline row: %d fields", len(raw))
	}

	openTimeMs, ok := raw[0].(float64)
	if !ok {
		return candle.Candle{}, fmt.Errorf("unexpected openTime type %T", raw[0])
	}
	closeTimeMs, ok := raw[6].(float64)
	if !ok {
		return candle.Candle{}, fmt.Errorf("unexpected closeTime type %T", raw[6])
	}

	open, err := parseFloatField(raw[1])
	if err != nil {
		return candle.Candle{}, err
	}
	high, err := parseFloatField(raw[2])
	if err != nil {
		return candle.Candle{}, err
	}
	low, err := parseFloatField(raw[3])
	if err != nil {
		return candle.Candle{}, err
	}
	closePrice, err := parseFloatField(raw[4])
	if err != nil {
		return candle.Candle{}, err
	}
	volume, err := parseFloatField(raw[5])
	if err != nil {
		return candle.Candle{}, err
	}

	return candle.Candle{
		Symbol:    symbol,
		Venue:     "binance",
		Interval:  interval,
		OpenTime:  time.UnixMilli(int64(openTimeMs)),
		CloseTime: time.UnixMilli(int64(closeTimeMs)),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

func parseFloatField(v interface{}) (float64, error) {
	return strconv.ParseFloat(fmt.Sprintf("%v", v), 64)
}

func (a *Adapter) Health() exchange.HealthStatus { return a.client.Health() }

// GuardMetrics exposes this venue's full provider-guard telemetry snapshot.
func (a *Adapter) GuardMetrics() guard.TelemetryMetrics { return a.client.GuardMetrics() }

func (a *Adapter) Close() error { return a.client.Close() }
