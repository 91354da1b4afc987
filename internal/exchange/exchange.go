// Package exchange defines the venue-agnostic contract every adapter
// implements, plus the health/rate-limit metadata each adapter reports
// (read by the health command; the race fetcher and stream manager do not
// consult it).
package exchange

import (
	"context"
	"time"

	"github.com/sawpanic/cryptorun/internal/candle"
)

// Exchange is implemented by every venue adapter (binance, okx, bybit,
// coinbase, kraken, kucoin) and by the deterministic fake used in tests.
type Exchange interface {
	// Name is the venue identifier used in logs, metrics, and Candle.Venue.
	Name() string

	// GetKlines fetches up to limit candles over the half-open range
	// [start, end). A zero start or end means "unbounded on that side";
	// with both zero, the provider's own "most recent limit bars" default
	// applies. Returns an empty, non-error slice when the provider has no
	// data in range.
	GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error)

	// NormalizeSymbol converts a venue-agnostic symbol to this exchange's
	// wire format (e.g. "BTCUSD" -> "BTC-USD" on Coinbase).
	NormalizeSymbol(symbol candle.Symbol) string

	// NormalizeInterval converts a candle.Interval to this exchange's
	// wire format for the interval parameter.
	NormalizeInterval(interval candle.Interval) string

	// Health reports the adapter's current operating status.
	Health() HealthStatus

	// Close releases the adapter's pooled network resources. Safe to call
	// once at shutdown; adapters are otherwise long-lived and shared
	// across fetches.
	Close() error
}

// HealthStatus summarizes an adapter's recent error rate and staleness so
// callers (the health command) can report it without re-deriving the same
// statistics themselves. Venue selection in the race fetcher and the
// stream manager does not use it.
type HealthStatus struct {
	Venue             string
	Healthy           bool
	ErrorRate         float64
	AvgLatency        time.Duration
	LastSuccess       time.Time
	LastFailure       time.Time
	RateLimitHeadroom float64
}
