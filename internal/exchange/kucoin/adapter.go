// Package kucoin implements the exchange.Exchange contract against
// KuCoin's public REST API.
package kucoin

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

const restBaseURL = "https://api.kucoin.com"

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
		Venue:          "kucoin",
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

func (a *Adapter) Name() string { return "kucoin" }

func (a *Adapter) NormalizeSymbol(symbol candle.Symbol) string {
	s := strings.ToUpper(string(symbol))
	if strings.Contains(s, "-") {
		return s
	}
	if strings.HasSuffix(s, "USDT") {
		return s[:len(s)-4] + "-USDT"
	}
	if strings.HasSuffix(s, "USD") {
		return s[:len(s)-3] + "-USDT"
	}
	return s
}

var typeTable = map[candle.Interval]string{
	candle.Interval1m:  "1min",
	candle.Interval3m:  "3min",
	candle.Interval5m:  "5min",
	candle.Interval15m: "15min",
	candle.Interval30m: "30min",
	candle.Interval1h:  "1hour",
	candle.Interval2h:  "2hour",
	candle.Interval4h:  "4hour",
	candle.Interval6h:  "6hour",
	candle.Interval8h:  "8hour",
	candle.Interval12h: "12hour",
	candle.Interval1d:  "1day",
	candle.Interval1w:  "1week",
}

func (a *Adapter) NormalizeInterval(interval candle.Interval) string {
	return typeTable[interval]
}

type kucoinResponse struct {
	Code string     `json:"code"`
	Data [][]string `json:"data"`
}

func (a *Adapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	candleType, ok := typeTable[interval]
	if !ok {
		return nil, &candle.UnsupportedIntervalError{Venue: a.Name(), Interval: interval}
	}

	url := fmt.Sprintf("%s/api/v1/market/candles?type=%s&symbol=%s",
		restBaseURL, candleType, a.NormalizeSymbol(symbol))
	if !start.IsZero() {
		url += fmt.Sprintf("&startAt=%d", start.Unix())
	}
	if !end.IsZero() {
		url += fmt.Sprintf("&endAt=%d", end.Unix()-1)
	}

	body, err := a.client.Fetch(ctx, url)
	if err != nil {
		return nil, a.client.WrapFetchError(err)
	}

	var resp kucoinResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
	}
	if resp.Code != "200000" {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: fmt.Errorf("kucoin error code %s", resp.Code)}
	}

	rows := resp.Data
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	candles := make([]candle.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseCandleRow(symbol, interval, row)
		if err != nil {
			return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseCandleRow parses one KuCoin candle row:
// [time, open, close, high, low, volume, turnover]
func parseCandleRow(symbol candle.Symbol, interval candle.Interval, row []string) (candle.Candle, error) {
	if len(row) < 6 {
		return candle.Candle{}, fmt.Errorf("short candle row: %d fields", len(row))
	}

	tsSec, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return candle.Candle{}, err
	}
	open, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	closePrice, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	high, err := strconv.ParseFloat(row[3], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	low, err := strconv.ParseFloat(row[4], 64)
	if err != nil {
		return candle.Candle{}, err
	}
	volume, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return candle.Candle{}, err
	}

	openTime := time.Unix(tsSec, 0)
	return candle.Candle{
		Symbol:    symbol,
		Venue:     "kucoin",
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
