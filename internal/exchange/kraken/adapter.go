// Package kraken implements the exchange.Exchange contract against
// Kraken's public REST API.
package kraken

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

const restBaseURL = "https://api.kraken.com"

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
		Venue:          "kraken",
		TTLSeconds:     10,
		BurstLimit:     15,
		SustainedRate:  1,
		MaxRetries:     3,
		BackoffBaseMs:  500,
		FailureThresh:  0.2,
		WindowRequests: 100,
		ProbeInterval:  30,
		Metrics:        m,
	})}
}

func (a *Adapter) Name() string { return "kraken" }

// assetAliases remaps the venue-agnostic base asset to Kraken's legacy
// X-prefixed codes (e.g. BTC -> XBT) before rebuilding the pair string.
var assetAliases = map[string]string{
	"BTC": "XBT",
}

func (a *Adapter) NormalizeSymbol(symbol candle.Symbol) string {
	s := strings.ToUpper(string(symbol))
	s = strings.ReplaceAll(s, "-", "")
	if !strings.HasSuffix(s, "USD") {
		return s
	}
	base := s[:len(s)-3]
	if alias, ok := assetAliases[base]; ok {
		base = alias
	}
	return base + "USD"
}

var intervalTable = map[candle.Interval]int{
	candle.Interval1m:  1,
	candle.Interval5m:  5,
	candle.Interval15m: 15,
	candle.Interval30m: 30,
	candle.Interval1h:  60,
	candle.Interval4h:  240,
	candle.Interval1d:  1440,
	candle.Interval1w:  10080,
}

func (a *Adapter) NormalizeInterval(interval candle.Interval) string {
	return fmt.Sprintf("%d", intervalTable[interval])
}

type ohlcResponse struct {
	Error  []string                     `json:"error"`
	Result map[string]json.RawMessage   `json:"result"`
}

func (a *Adapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	minutes, ok := intervalTable[interval]
	if !ok {
		return nil, &candle.UnsupportedIntervalError{Venue: a.Name(), Interval: interval}
	}

	pair := a.NormalizeSymbol(symbol)
	url := fmt.Sprintf("%s/0/public/OHLC?pair=%s&interval=%d", restBaseURL, pair, minutes)
	if !start.IsZero() {
		// Kraken's OHLC endpoint only accepts a "since" lower bound; the
		// upper bound of the caller's half-open range is enforced below
		// by trimming the returned rows.
		url += fmt.Sprintf("&since=%d", start.Unix())
	}

	body, err := a.client.Fetch(ctx, url)
	if err != nil {
		return nil, a.client.WrapFetchError(err)
	}

	var resp ohlcResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
	}
	if len(resp.Error) > 0 {
		return nil, &candle.ParseError{Venue: a.Name(), Cause: fmt.Errorf("kraken error: %v", resp.Error)}
	}

	// The result map holds exactly one pair key (Kraken's own asset-pair
	// spelling, e.g. "XXBTZUSD") alongside a "last" cursor; find the rows.
	var rows [][]interface{}
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
		}
		break
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}

	candles := make([]candle.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := parseCandleRow(symbol, interval, row)
		if err != nil {
			return nil, &candle.ParseError{Venue: a.Name(), Cause: err}
		}
		if !end.IsZero() && !c.OpenTime.Before(end) {
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseCandleRow parses one Kraken OHLC row:
// [time, open, high, low, close, vwap, volume, count]
func parseCandleRow(symbol candle.Symbol, interval candle.Interval, row []interface{}) (candle.Candle, error) {
	if len(row) < 7 {
		return candle.Candle{}, fmt.Errorf("short OHLC row: %d fields", len(row))
	}

	ts, ok := row[0].(float64)
	if !ok {
		return candle.Candle{}, fmt.Errorf("unexpected time type %T", row[0])
	}

	open, err := parseField(row[1])
	if err != nil {
		return candle.Candle{}, err
	}
	high, err := parseField(row[2])
	if err != nil {
		return candle.Candle{}, err
	}
	low, err := parseField(row[3])
	if err != nil {
		return candle.Candle{}, err
	}
	closePrice, err := parseField(row[4])
	if err != nil {
		return candle.Candle{}, err
	}
	volume, err := parseField(row[6])
	if err != nil {
		return candle.Candle{}, err
	}

	openTime := time.Unix(int64(ts), 0)
	return candle.Candle{
		Symbol:    symbol,
		Venue:     "kraken",
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

func parseField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("unexpected field type %T", v)
	}
	return strconv.ParseFloat(s, 64)
}

func (a *Adapter) Health() exchange.HealthStatus { return a.client.Health() }

// GuardMetrics exposes this venue's full provider-guard telemetry snapshot.
func (a *Adapter) GuardMetrics() guard.TelemetryMetrics { return a.client.GuardMetrics() }

func (a *Adapter) Close() error { return a.client.Close() }
