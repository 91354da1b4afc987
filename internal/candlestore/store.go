// Package candlestore defines the candle-store collaborator contract and
// carries its concrete Postgres implementation under candlestore/postgres.
package candlestore

import (
	"context"
	"time"

	"github.com/sawpanic/cryptorun/internal/candle"
)

// Row is the storage projection of a Candle: it adds LoadedAt so upserts
// can "replace price/volume/loaded_at" per the conflict contract.
type Row struct {
	candle.Candle
	LoadedAt time.Time
}

// Store is the external candle-store collaborator named in the external
// interfaces contract. Implementations key rows on
// (exchange, symbol, interval, timestamp).
type Store interface {
	// UpsertCandles writes rows under (exchange, symbol, interval, timestamp);
	// on conflict it replaces price/volume/loaded_at, never duplicating.
	UpsertCandles(ctx context.Context, exchange string, symbol candle.Symbol, interval candle.Interval, rows []candle.Candle) (int, error)

	// MinMaxTimestamp returns the oldest and newest stored candle
	// timestamps for a symbol/interval, or ok=false if none are stored.
	MinMaxTimestamp(ctx context.Context, symbol candle.Symbol, interval candle.Interval) (min, max time.Time, ok bool, err error)

	// CountInRange counts stored candles for symbol/interval within [start, end).
	CountInRange(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) (int, error)

	// OrderedTimestamps returns every stored candle timestamp for
	// symbol/interval within [start, end), ascending, for gap walking.
	OrderedTimestamps(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) ([]time.Time, error)
}

// Gap is a contiguous span with no stored candles.
type Gap struct {
	Start time.Time
	End   time.Time
}

// DetectGaps walks ordered timestamps for symbol/interval over [start, end)
// and returns every (prev+interval, next) span where the gap between
// consecutive stored bars exceeds one interval.
func DetectGaps(ctx context.Context, store Store, symbol candle.Symbol, interval candle.Interval, start, end time.Time) ([]Gap, error) {
	timestamps, err := store.OrderedTimestamps(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}

	step := interval.Duration()
	var gaps []Gap

	if len(timestamps) == 0 {
		return []Gap{{Start: start, End: end}}, nil
	}

	if timestamps[0].After(start) {
		gaps = append(gaps, Gap{Start: start, End: timestamps[0]})
	}

	for i := 1; i < len(timestamps); i++ {
		prev, next := timestamps[i-1], timestamps[i]
		if next.Sub(prev) > step {
			gaps = append(gaps, Gap{Start: prev.Add(step), End: next})
		}
	}

	last := timestamps[len(timestamps)-1]
	if last.Add(step).Before(end) {
		gaps = append(gaps, Gap{Start: last.Add(step), End: end})
	}

	return gaps, nil
}
