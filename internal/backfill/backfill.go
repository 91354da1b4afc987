// Package backfill implements the backfill orchestrator: it fills a
// configured grid of (symbol, interval) cells from "now - years" to
// "now" via paged race-fetcher calls, retries transient failures with
// backoff, upserts idempotently into the candle store, and enforces a
// strict all-or-fail completion contract guarded by a marker file.
//
// Grounded in the original BackfillManager: per-cell try/except with a
// failed-keys list, a small delay between paged requests and a longer
// delay between cells, and a single completion marker written only on
// full success.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/candlestore"
	"github.com/sawpanic/cryptorun/internal/metrics"
	"github.com/sawpanic/cryptorun/internal/racefetch"
	"github.com/sawpanic/cryptorun/internal/sensorpub"
)

// RetryPolicy controls the exponential-backoff retry applied to
// RateLimited/transient TransportError responses while paging a cell.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 5 * time.Second, MaxDelay: 60 * time.Second, MaxRetries: 3}
}

// Orchestrator drives backfill_all/backfill_one/check_and_backfill
// against a candle store using a race fetcher for data.
type Orchestrator struct {
	fetcher     *racefetch.Fetcher
	store       candlestore.Store
	exchange    string
	retry       RetryPolicy
	markerPath  string
	limitPerCall int

	perCellDelay  time.Duration
	interCellDelay time.Duration

	log       zerolog.Logger
	metrics   *metrics.Registry
	publisher sensorpub.Publisher

	mu       sync.Mutex
	progress candle.BackfillProgress
}

type Option func(*Orchestrator)

func WithMarkerPath(path string) Option { return func(o *Orchestrator) { o.markerPath = path } }
func WithRetryPolicy(p RetryPolicy) Option { return func(o *Orchestrator) { o.retry = p } }
func WithLimitPerCall(n int) Option { return func(o *Orchestrator) { o.limitPerCall = n } }
func WithPerCellDelay(d time.Duration) Option { return func(o *Orchestrator) { o.perCellDelay = d } }
func WithInterCellDelay(d time.Duration) Option { return func(o *Orchestrator) { o.interCellDelay = d } }

// WithMetrics attaches a metrics registry; BackfillAll reports completed
// cells to its crypto BackfillProgress gauge as they finish.
func WithMetrics(m *metrics.Registry) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithPublisher attaches a sensor publisher; BackfillAll pushes its
// progress snapshot to it after every cell.
func WithPublisher(p sensorpub.Publisher) Option { return func(o *Orchestrator) { o.publisher = p } }

func New(fetcher *racefetch.Fetcher, store candlestore.Store, exchangeName string, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:        fetcher,
		store:          store,
		exchange:       exchangeName,
		retry:          DefaultRetryPolicy(),
		limitPerCall:   500,
		perCellDelay:   500 * time.Millisecond,
		interCellDelay: 3 * time.Second,
		log:            log.With().Str("component", "backfill").Logger(),
		publisher:      sensorpub.NoopPublisher{},
		progress:       candle.BackfillProgress{Status: candle.BackfillIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Progress() candle.BackfillProgress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progress
}

// CheckAndBackfill is the idempotent first-run guard: if a completion
// marker exists and force is false, it does nothing.
func (o *Orchestrator) CheckAndBackfill(ctx context.Context, symbols []candle.Symbol, intervals []candle.Interval, years int, force bool) error {
	if !force && o.markerExists() {
		o.log.Info().Msg("backfill marker present, skipping")
		return nil
	}
	_, err := o.BackfillAll(ctx, symbols, intervals, years)
	return err
}

// BackfillAll fills the full configured grid. Every cell is attempted
// even after a failure; if any cell ends with zero rows or an error, the
// whole run is reported as failed and the completion marker is NOT
// written, per the strict all-or-fail contract.
func (o *Orchestrator) BackfillAll(ctx context.Context, symbols []candle.Symbol, intervals []candle.Interval, years int) (map[string]int, error) {
	o.mu.Lock()
	o.progress = candle.BackfillProgress{
		Status:      candle.BackfillRunning,
		CryptoTotal: len(symbols) * len(intervals),
		StartedAt:   time.Now(),
	}
	o.mu.Unlock()

	results := make(map[string]int)
	var failed []candle.BackfillCellFailedError

	for _, symbol := range symbols {
		for _, interval := range intervals {
			key := fmt.Sprintf("%s_%s", symbol, interval)

			count, err := o.BackfillOne(ctx, symbol, interval, years)
			o.mu.Lock()
			if err != nil || count == 0 {
				o.progress.FailedSymbols = append(o.progress.FailedSymbols, symbol)
				failed = append(failed, candle.BackfillCellFailedError{Symbol: symbol, Interval: interval, Cause: err})
			} else {
				results[key] = count
				o.progress.CryptoCells++
			}
			o.progress.UpdatedAt = time.Now()
			snapshot := o.progress
			o.mu.Unlock()

			if o.metrics != nil {
				o.metrics.BackfillProgress.WithLabelValues("crypto").Set(float64(snapshot.CryptoCells))
			}
			_ = o.publisher.PublishBackfillProgress(ctx, snapshot)

			select {
			case <-time.After(o.interCellDelay):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(failed) > 0 {
		o.progress.Status = candle.BackfillError
		return results, &candle.BackfillFailedError{Failed: failed}
	}

	o.progress.Status = candle.BackfillCompleted
	if err := o.writeMarker(); err != nil {
		o.log.Warn().Err(err).Msg("could not write backfill marker")
	}
	return results, nil
}

// BackfillOne fills a single cell's expected range [now-years, now),
// rounded outward to interval boundaries, paging limit_per_call bars at
// a time and retrying transient failures with backoff.
func (o *Orchestrator) BackfillOne(ctx context.Context, symbol candle.Symbol, interval candle.Interval, years int) (int, error) {
	step := interval.Duration()
	now := time.Now().UTC()
	end := now.Truncate(step)
	if end.Before(now) {
		end = end.Add(step)
	}
	start := now.AddDate(-years, 0, 0).Truncate(step)

	total := 0
	cursor := start

	for cursor.Before(end) {
		pageEnd := cursor.Add(time.Duration(o.limitPerCall) * step)
		if pageEnd.After(end) {
			pageEnd = end
		}

		candles, err := o.fetchWithRetry(ctx, symbol, interval, cursor, pageEnd)
		if err != nil {
			return total, err
		}
		if len(candles) == 0 {
			break
		}

		n, err := o.store.UpsertCandles(ctx, o.exchange, symbol, interval, candles)
		if err != nil {
			return total, err
		}
		total += n

		cursor = pageEnd

		select {
		case <-time.After(o.perCellDelay):
		case <-ctx.Done():
			return total, ctx.Err()
		}
	}

	return total, nil
}

// DetectGaps exposes candlestore.DetectGaps scoped to this orchestrator's
// store.
func (o *Orchestrator) DetectGaps(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) ([]candlestore.Gap, error) {
	return candlestore.DetectGaps(ctx, o.store, symbol, interval, start, end)
}

// FillGaps backfills every given gap and returns the total candles
// inserted.
func (o *Orchestrator) FillGaps(ctx context.Context, symbol candle.Symbol, interval candle.Interval, gaps []candlestore.Gap) (int, error) {
	inserted := 0
	for _, g := range gaps {
		candles, err := o.fetchWithRetry(ctx, symbol, interval, g.Start, g.End)
		if err != nil {
			return inserted, err
		}
		n, err := o.store.UpsertCandles(ctx, o.exchange, symbol, interval, filterRange(candles, g.Start, g.End))
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func filterRange(candles []candle.Candle, start, end time.Time) []candle.Candle {
	out := make([]candle.Candle, 0, len(candles))
	for _, c := range candles {
		if !c.OpenTime.Before(start) && c.OpenTime.Before(end) {
			out = append(out, c)
		}
	}
	return out
}

// fetchWithRetry pages one provider call for a cell, retrying
// RateLimited/TransportError responses with exponential backoff and
// jitter, capped at retry.MaxDelay, up to retry.MaxRetries attempts.
func (o *Orchestrator) fetchWithRetry(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) ([]candle.Candle, error) {
	var lastErr error

	for attempt := 0; attempt <= o.retry.MaxRetries; attempt++ {
		result, err := o.fetcher.Fetch(ctx, symbol, interval, o.limitPerCall, start, end)
		if err == nil {
			return result.Candles, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == o.retry.MaxRetries {
			return nil, err
		}

		delay := backoff(o.retry.BaseDelay, o.retry.MaxDelay, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	var rateLimited *candle.RateLimitedError
	var transport *candle.TransportError
	return errors.As(err, &rateLimited) || errors.As(err, &transport)
}

func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base * time.Duration(1<<uint(attempt))
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	d += jitter
	if d > max {
		return max
	}
	return d
}

func (o *Orchestrator) markerExists() bool {
	if o.markerPath == "" {
		return false
	}
	_, err := os.Stat(o.markerPath)
	return err == nil
}

func (o *Orchestrator) writeMarker() error {
	if o.markerPath == "" {
		return nil
	}
	return os.WriteFile(o.markerPath, []byte(time.Now().UTC().Format(time.RFC3339)), 0o644)
}
