// Package coinbase implements the exchange.Exchange contract against
// Coinbase Exchange's public REST API.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/exchange"
	"github.com/sawpanic/cryptorun/internal/exchange/base"
	"github.com/sawpanic/cryptorun/internal/guard"
	"github.com/sawpanic/cryptorun/internal/metrics"
)

const restBaseURL = "https://api.exchange.coinbase.com"

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
		Venue:          "coinbase",
		TTLSeconds:     5,
		BurstLimit:     10,
		SustainedRate:  3,
		MaxRetries:     3,
		BackoffBaseMs:  300,
		FailureThresh:  0.1,
		WindowRequests: 100,
		ProbeInterval:  30,
		Metrics:        m,
	})}
}

func (a *Adapter) Name() string { return "coinbase" }

func (a *Adapter) NormalizeSymbol(symbol candle.Symbol) string {
	s := strings.ToUpper(string(symbol))
	if strings.Contains(s, "-") {
		return s
	}
	if strings.HasSuffix(s, "USD") {
		return s[:len(s)-3] + "-USD"
	}
	return s
}

// granularityTable maps our intervals to Coinbase's supported candle
// granularities, in seconds. Coinbase does not offer 30m or 4h buckets.
var granularityTable = map[candle.Interval]int{
	candle.Interval1m:  60,
	candle.Interval5m:  300,
	candle.Interval15m: 900,
	candle.Interval1h:  3600,
	candle.Interval6h:  21600,
	candle.Interval1d:  86400,
}

func (a *Adapter) NormalizeInterval(interval candle.Interval) string {
	return fmt.Sprintf("%d", granularityTable[interval])
}

func (a *Adapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	granularity, ok := granularityTable[interval]
	if !ok {
		return nil, &candle.UnsupportedIntervalError{Venue: a.Name(), Interval: interval}
	}

	url := fmt.Sprintf("%s/products/%s/candles?granularity=%d",
		restBaseURL, a.NormalizeSymbol(symbol), granularity)
	if !start.IsZero() {
		url += "&start=" + start.UTC().Format(time.RFC3339)
	}
	if !end.IsZero() {
		url += "&end=" + end.UTC().Format(time.RFC3339)
	}

	body, err := a.client.Fetch(ctx, url)
	if err != nil {
		return nil, a.client.WrapFetchError(err)
	}

	var raw [][]float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
	}

	if limit > 0 && len(raw) > limit {
		raw = raw[:limit]
	}

	candles := make([]candle.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseCandleRow(symbol, interval, row)
		if err != nil {
			return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseCandleRow parses one Coinbase candle: [time, low, high, open, close, volume]
func parseCandleRow(symbol candle.Symbol, interval candle.Interval, row []float64) (candle.Candle, error) {
	if len(row) < 6 {
		return candle.Candle{}, fmt.Errorf("short candle row: %d fields", len(row))
	}

	openTime := time.Unix(int64(row[0]), 0)
	return candle.Candle{
		Symbol:    symbol,
		Venue:     "coinbase",
		Interval:  interval,
		OpenTime:  openTime,
		CloseTime: openTime.Add(interval.Duration()),
		Low:       row[1],
		High:      row[2],
		Open:      row[3],
		Close:     row[4],
		Volume:    row[5],
	}, nil
}

func (a *Adapter) Health() exchange.HealthStatus { return a.client.Health() }

// GuardMetrics exposes this venue's full provider-guard telemetry snapshot.
func (a *Adapter) GuardMetrics() guard.TelemetryMetrics { return a.client.GuardMetrics() }

func (a *Adapter) Close() error { return a.client.Close() }
