// Package bybit implements the exchange.Exchange contract against Bybit's
// public REST API (spot category).
package bybit

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

const restBaseURL = "https://api.bybit.com"

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
		Venue:          "bybit",
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

func (a *Adapter) Name() string { return "bybit" }

func (a *Adapter) NormalizeSymbol(symbol candle.Symbol) string {
	return strings.ToUpper(strings.ReplaceAll(string(symbol), "-", ""))
}

var intervalTable = map[candle.Interval]string{
	candle.Interval1m:  "1",
	candle.Interval3m:  "3",
	candle.Interval5m:  "5",
	candle.Interval15m: "15",
	candle.Interval30m: "30",
	candle.Interval1h:  "60",
	candle.Interval2h:  "120",
	candle.Interval4h:  "240",
	candle.Interval6h:  "360",
	candle.Interval12h: "720",
	candle.Interval1d:  "D",
	candle.Interval1w:  "W",
	candle.Interval1M:  "M",
}

func (a *Adapter) NormalizeInterval(interval candle.Interval) string {
	return intervalTable[interval]
}

type bybitResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List [][]string `json:"list"`
	} `json:"result"`
}

func (a *Adapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	wireInterval, ok := intervalTable[interval]
	if !ok {
		return nil, &candle.UnsupportedIntervalError{Venue: a.Name(), Interval: interval}
	}

	url := fmt.Sprintf("%s/v5/market/kline?category=spot&symbol=%s&interval=%s&limit=%d",
		restBaseURL, a.NormalizeSymbol(symbol), wireInterval, limit)
	if !start.IsZero() {
		url += fmt.Sprintf("&start=%d", start.UnixMilli())
	}
	if !end.IsZero() {
		url += fmt.Sprintf("&end=%d", end.UnixMilli()-1)
	}

	body, err := a.client.Fetch(ctx, url)
	if err != nil {
		return nil, a.client.WrapFetchError(err)
	}

	var resp bybitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
	}
	if resp.RetCode != 0 {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: fmt.Errorf("bybit error %d: %s", resp.RetCode, resp.RetMsg)}
	}

	candles := make([]candle.Candle, 0, len(resp.Result.List))
	for _, row := range resp.Result.List {
		c, err := parseCandleRow(symbol, interval, row)
		if err != nil {
			return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseCandleRow parses one Bybit kline row: [start, open, high, low, close, volume, turnover]
func parseCandleRow(symbol candle.Symbol, interval candle.Interval, row []string) (candle.Candle, error) {
	if len(row) < 6 {
		return candle.Candle{}, fmt.Errorf("short kline row: %d fields", len(row))
	}

	startMs, err := strconv.ParseInt(row[0], 10, 64)
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

	openTime := time.UnixMilli(startMs)
	return candle.Candle{
		Symbol:    symbol,
		Venue:     "bybit",
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
