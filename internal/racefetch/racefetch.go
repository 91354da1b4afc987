// Package racefetch fans a single logical candle fetch out across every
// configured exchange adapter and returns the first usable result,
// cancelling the rest. It is the one-shot counterpart to the stream
// manager: used directly by on-demand analysis calls and by the backfill
// orchestrator when paging a single cell.
package racefetch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/exchange"
)

// drainDeadline bounds how long the fetcher waits for cancelled tasks to
// acknowledge before returning the winner anyway.
const drainDeadline = 2 * time.Second

// Fetcher races a fixed set of adapters against each other.
type Fetcher struct {
	adapters []exchange.Exchange
	log      zerolog.Logger
}

func New(adapters []exchange.Exchange, log zerolog.Logger) *Fetcher {
	return &Fetcher{adapters: adapters, log: log.With().Str("component", "racefetch").Logger()}
}

// Close releases every adapter's pooled resources. Adapters in this
// module are process-lifetime and shared across races (the "pooled"
// ownership model from the candle store's lifecycle notes), so Close is
// called once at shutdown rather than after each race.
func (f *Fetcher) Close() error {
	var firstErr error
	for _, a := range f.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type taskResult struct {
	venue    string
	candles  []candle.Candle
	err      error
	duration time.Duration
}

// Fetch returns data from the first adapter that yields a non-empty
// result, cancelling the rest. Adapter errors are aggregated and are
// fatal only if every adapter has returned without producing a winner.
// A zero rangeStart/rangeEnd requests each adapter's "most recent limit
// bars" default.
func (f *Fetcher) Fetch(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, rangeStart, rangeEnd time.Time) (candle.FetchResult, error) {
	return f.fetchWithMinimum(ctx, symbol, interval, limit, rangeStart, rangeEnd, 1)
}

// FetchWithMinimum continues collecting until any adapter returns at
// least minRequired candles. If none reach the threshold, the
// largest-count result seen is returned instead of an error.
func (f *Fetcher) FetchWithMinimum(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, rangeStart, rangeEnd time.Time, minRequired int) (candle.FetchResult, error) {
	return f.fetchWithMinimum(ctx, symbol, interval, limit, rangeStart, rangeEnd, minRequired)
}

func (f *Fetcher) fetchWithMinimum(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, rangeStart, rangeEnd time.Time, minRequired int) (candle.FetchResult, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan taskResult, len(f.adapters))
	var wg sync.WaitGroup

	for _, a := range f.adapters {
		wg.Add(1)
		go func(a exchange.Exchange) {
			defer wg.Done()
			start := time.Now()
			candles, err := a.GetKlines(raceCtx, symbol, interval, limit, rangeStart, rangeEnd)
			results <- taskResult{venue: a.Name(), candles: candles, err: err, duration: time.Since(start)}
		}(a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	errs := make(map[string]error)
	var best taskResult
	var haveBest bool
	completed := 0
	total := len(f.adapters)

	for completed < total {
		select {
		case r := <-results:
			completed++
			if r.err != nil {
				errs[r.venue] = r.err
				continue
			}
			if len(r.candles) == 0 {
				continue
			}
			sortAscendingDedup(&r)

			if !haveBest || len(r.candles) > len(best.candles) {
				best = r
				haveBest = true
			}
			if len(r.candles) >= minRequired {
				cancel()
				f.drain(results, done, completed, total)
				return toFetchResult(r, symbol, interval), nil
			}
		case <-ctx.Done():
			cancel()
			return candle.FetchResult{}, ctx.Err()
		}
	}

	if haveBest {
		return toFetchResult(best, symbol, interval), nil
	}
	return candle.FetchResult{}, &candle.AllExchangesFailedError{Symbol: symbol, Interval: interval, Errors: errs}
}

// drain waits (bounded by drainDeadline) for already-cancelled tasks to
// acknowledge. A task still running at the deadline is left to finish on
// its own; the buffered results channel keeps it from blocking.
func (f *Fetcher) drain(results chan taskResult, done chan struct{}, completed, total int) {
	deadline := time.NewTimer(drainDeadline)
	defer deadline.Stop()

	for completed < total {
		select {
		case <-results:
			completed++
		case <-done:
			return
		case <-deadline.C:
			return
		}
	}
}

func sortAscendingDedup(r *taskResult) {
	sort.Slice(r.candles, func(i, j int) bool {
		return r.candles[i].OpenTime.Before(r.candles[j].OpenTime)
	})
	out := r.candles[:0:0]
	var lastTime time.Time
	first := true
	for _, c := range r.candles {
		if !first && c.OpenTime.Equal(lastTime) {
			continue
		}
		out = append(out, c)
		lastTime = c.OpenTime
		first = false
	}
	r.candles = out
}

func toFetchResult(r taskResult, symbol candle.Symbol, interval candle.Interval) candle.FetchResult {
	return candle.FetchResult{Venue: r.venue, Symbol: symbol, Interval: interval, Candles: r.candles, Duration: r.duration}
}
