// Package okx implements the exchange.Exchange contract against OKX's
// public REST API.
package okx

import (
	"context"
	"encoding/json"
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

const restBaseURL = "https://www.okx.com"

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
		Venue:          "okx",
		TTLSeconds:     5,
		BurstLimit:     20,
		SustainedRate:  10,
		MaxRetries:     3,
		BackoffBaseMs:  200,
		FailureThresh:  0.1,
		WindowRequests: 100,
		ProbeInterval:  30,
		Metrics:        m,
	})}
}

func (a *Adapter) Name() string { return "okx" }

func (a *Adapter) NormalizeSymbol(symbol candle.Symbol) string {
	s := strings.ToUpper(string(symbol))
	s = strings.TrimSuffix(s, "USD")
	if s != string(symbol) && !strings.Contains(s, "-") {
		return s + "-USDT"
	}
	return strings.ReplaceAll(strings.ToUpper(string(symbol)), "_", "-")
}

var barTable = map[candle.Interval]string{
	candle.Interval1m:  "1m",
	candle.Interval3m:  "3m",
	candle.Interval5m:  "5m",
	candle.Interval15m: "15m",
	candle.Interval30m: "30m",
	candle.Interval1h:  "1H",
	candle.Interval2h:  "2H",
	candle.Interval4h:  "4H",
	candle.Interval6h:  "6H",
	candle.Interval12h: "12H",
	candle.Interval1d:  "1D",
	candle.Interval1w:  "1W",
	candle.Interval1M:  "1M",
}

func (a *Adapter) NormalizeInterval(interval candle.Interval) string {
	return barTable[interval]
}

type okxResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

func (a *Adapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	bar, ok := barTable[interval]
	if !ok {
		return nil, &candle.UnsupportedIntervalError{Venue: a.Name(), Interval: interval}
	}

	url := fmt.Sprintf("%s/api/v5/market/candles?instId=%s&bar=%s&limit=%d",
		restBaseURL, a.NormalizeSymbol(symbol), bar, limit)
	// OKX's pagination params are named from the "newer/older" perspective
	// of the result set, not the caller's range: "after" returns records
	// earlier than the given ts, "before" returns records newer than it.
	if !end.IsZero() {
		url += fmt.Sprintf("&after=%d", end.UnixMilli())
	}
	if !start.IsZero() {
		url += fmt.Sprintf("&before=%d", start.UnixMilli()-1)
	}

	body, err := a.client.Fetch(ctx, url)
	if err != nil {
		return nil, a.client.WrapFetchError(err)
	}

	var resp okxResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
	}
	if resp.Code != "0" {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: fmt.Errorf("okx error %s: %s", resp.Code, resp.Msg)}
	}

	candles := make([]candle.Candle, 0, len(resp.Data))
	for _, row := range resp.Data {
		c, err := parseCandleRow(symbol, interval, row)
		if err != nil {
			return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseCandleRow parses one OKX candle row: [ts, o, h, l, c, vol, volCcy, ...]
func parseCandleRow(symbol candle.Symbol, interval candle.Interval, row []string) (candle.Candle, error) {
	if len(row) < 6 {
		return candle.Candle{}, fmt.Errorf("short candle row: %d fields", len(row))
	}

	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return candle.Candle{}, err
	}
	open, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	high, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	low, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	closePrice, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	volume, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return candle.Candle{}, err
	}

	openTime := time.UnixMilli(tsMs)
	return candle.Candle{
		Symbol:    symbol,
		Venue:     "okx",
		Interval:  interval,
		OpenTime:  openTime,
		CloseTime: openTime.Add(interval.Duration()),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

func (a *Adapter) Health() exchange.HealthStatus { return a.client.Health() }

// GuardMetrics exposes this venue's full provider-guard telemetry snapshot.
func (a *Adapter) GuardMetrics() guard.TelemetryMetrics { return a.client.GuardMetrics() }

func (a *Adapter) Close() error { return a.client.Close() }
