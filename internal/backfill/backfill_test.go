package backfill

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/exchange"
	"github.com/sawpanic/cryptorun/internal/exchange/fake"
	"github.com/sawpanic/cryptorun/internal/racefetch"
)

type memStore struct {
	mu   sync.Mutex
	rows map[string][]candle.Candle
}

func newMemStore() *memStore { return &memStore{rows: make(map[string][]candle.Candle)} }

func (s *memStore) UpsertCandles(ctx context.Context, exchangeName string, symbol candle.Symbol, interval candle.Interval, rows []candle.Candle) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(symbol) + "/" + string(interval)
	s.rows[key] = append(s.rows[key], rows...)
	return len(rows), nil
}

func (s *memStore) MinMaxTimestamp(ctx context.Context, symbol candle.Symbol, interval candle.Interval) (time.Time, time.Time, bool, error) {
	return time.Time{}, time.Time{}, false, nil
}

func (s *memStore) CountInRange(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) (int, error) {
	return 0, nil
}

func (s *memStore) OrderedTimestamps(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) ([]time.Time, error) {
	return nil, nil
}

func TestBackfillOne_UpsertsFetchedCandles(t *testing.T) {
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())
	store := newMemStore()

	o := New(f, store, "fake", zerolog.Nop(),
		WithLimitPerCall(20), WithPerCellDelay(0), WithInterCellDelay(0))

	count, err := o.BackfillOne(context.Background(), "BTCUSD", candle.Interval1h, 1)
	require.NoError(t, err)
	require.Greater(t, count, 0)
}

func TestBackfillAll_WritesMarkerOnFullSuccess(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "backfill_completed")

	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())
	store := newMemStore()

	o := New(f, store, "fake", zerolog.Nop(),
		WithLimitPerCall(20), WithPerCellDelay(0), WithInterCellDelay(0), WithMarkerPath(marker))

	_, err := o.BackfillAll(context.Background(), []candle.Symbol{"BTCUSD"}, []candle.Interval{candle.Interval1h}, 1)
	require.NoError(t, err)

	_, statErr := os.Stat(marker)
	require.NoError(t, statErr)
	require.Equal(t, candle.BackfillCompleted, o.Progress().Status)
}

func TestBackfillAll_FailureDoesNotWriteMarker(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "backfill_completed")

	failing := fake.New("failing", 1)
	failing.Fail = errors.New("boom")
	f := racefetch.New([]exchange.Exchange{failing}, zerolog.Nop())
	store := newMemStore()

	o := New(f, store, "failing", zerolog.Nop(),
		WithLimitPerCall(20), WithPerCellDelay(0), WithInterCellDelay(0), WithMarkerPath(marker),
		WithRetryPolicy(RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxRetries: 0}))

	_, err := o.BackfillAll(context.Background(), []candle.Symbol{"BTCUSD"}, []candle.Interval{candle.Interval1h}, 1)
	require.Error(t, err)

	var failedErr *candle.BackfillFailedError
	require.ErrorAs(t, err, &failedErr)

	_, statErr := os.Stat(marker)
	require.True(t, os.IsNotExist(statErr))
	require.Equal(t, candle.BackfillError, o.Progress().Status)
}

func TestCheckAndBackfill_SkipsWhenMarkerPresent(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "backfill_completed")
	require.NoError(t, os.WriteFile(marker, []byte("done"), 0o644))

	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())
	store := newMemStore()

	o := New(f, store, "fake", zerolog.Nop(), WithMarkerPath(marker))

	err := o.CheckAndBackfill(context.Background(), []candle.Symbol{"BTCUSD"}, []candle.Interval{candle.Interval1h}, 1, false)
	require.NoError(t, err)
	require.Equal(t, candle.BackfillIdle, o.Progress().Status)
}
