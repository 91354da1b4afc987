package racefetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/exchange"
	"github.com/sawpanic/cryptorun/internal/exchange/fake"
)

// truncatingAdapter wraps a *fake.Adapter and caps the candle count it
// returns, for exercising the fetch_with_minimum best-available fallback.
type truncatingAdapter struct {
	*fake.Adapter
	n int
}

func (t truncatingAdapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	candles, err := t.Adapter.GetKlines(ctx, symbol, interval, limit, start, end)
	if err != nil || len(candles) <= t.n {
		return candles, err
	}
	return candles[:t.n], nil
}

// emptyAdapter always returns a non-error, empty result, so the race
// fetcher must treat it as a loser without counting it as a failure.
type emptyAdapter struct {
	*fake.Adapter
}

func (emptyAdapter) GetKlines(ctx context.Context, symbol candle.Symbol, interval candle.Interval, limit int, start, end time.Time) ([]candle.Candle, error) {
	return nil, nil
}

func TestFetch_FirstNonEmptyWins(t *testing.T) {
	slow := fake.New("slow", 1)
	slow.Delay = 50 * time.Millisecond
	fast := fake.New("fast", 2)

	f := New([]exchange.Exchange{slow, fast}, zerolog.Nop())

	result, err := f.Fetch(context.Background(), "BTCUSD", candle.Interval1h, 10, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "fast", result.Venue)
	require.Len(t, result.Candles, 10)
}

func TestFetch_AllFailReturnsAggregateError(t *testing.T) {
	a := fake.New("a", 1)
	a.Fail = errors.New("boom")
	b := fake.New("b", 2)
	b.Fail = errors.New("bang")

	f := New([]exchange.Exchange{a, b}, zerolog.Nop())

	_, err := f.Fetch(context.Background(), "BTCUSD", candle.Interval1h, 10, time.Time{}, time.Time{})
	require.Error(t, err)
	var allFailed *candle.AllExchangesFailedError
	require.ErrorAs(t, err, &allFailed)
	require.Len(t, allFailed.Errors, 2)
}

func TestFetch_NoAdaptersFailsImmediately(t *testing.T) {
	f := New(nil, zerolog.Nop())

	_, err := f.Fetch(context.Background(), "BTCUSD", candle.Interval1h, 10, time.Time{}, time.Time{})
	require.Error(t, err)
	var allFailed *candle.AllExchangesFailedError
	require.ErrorAs(t, err, &allFailed)
}

func TestFetchWithMinimum_FallsBackToBestAvailable(t *testing.T) {
	short := truncatingAdapter{fake.New("short", 1), 3}
	failing := fake.New("fail", 2)
	failing.Fail = errors.New("down")

	f := New([]exchange.Exchange{short, failing}, zerolog.Nop())

	result, err := f.FetchWithMinimum(context.Background(), "BTCUSD", candle.Interval1h, 10, time.Time{}, time.Time{}, 5)
	require.NoError(t, err)
	require.Equal(t, "short", result.Venue)
	require.Len(t, result.Candles, 3)
}

func TestFetchWithMinimum_StopsAsSoonAsThresholdMet(t *testing.T) {
	enough := fake.New("enough", 1)

	f := New([]exchange.Exchange{enough}, zerolog.Nop())

	result, err := f.FetchWithMinimum(context.Background(), "ETHUSD", candle.Interval5m, 20, time.Time{}, time.Time{}, 5)
	require.NoError(t, err)
	require.Equal(t, "enough", result.Venue)
	require.GreaterOrEqual(t, len(result.Candles), 5)
}

func TestFetch_EmptyResultDoesNotWin(t *testing.T) {
	empty := emptyAdapter{fake.New("empty", 1)}
	real := fake.New("real", 2)
	real.Delay = 10 * time.Millisecond

	f := New([]exchange.Exchange{empty, real}, zerolog.Nop())

	result, err := f.Fetch(context.Background(), "BTCUSD", candle.Interval1h, 5, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, "real", result.Venue)
}

func TestFetch_ContextCancellationPropagates(t *testing.T) {
	slow := fake.New("slow", 1)
	slow.Delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	f := New([]exchange.Exchange{slow}, zerolog.Nop())
	_, err := f.Fetch(ctx, "BTCUSD", candle.Interval1h, 5, time.Time{}, time.Time{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_WithExplicitRangeHonoredByFake(t *testing.T) {
	a := fake.New("a", 1)
	f := New([]exchange.Exchange{a}, zerolog.Nop())

	end := time.Now().Truncate(time.Hour)
	start := end.Add(-5 * time.Hour)

	result, err := f.Fetch(context.Background(), "BTCUSD", candle.Interval1h, 100, start, end)
	require.NoError(t, err)
	require.Len(t, result.Candles, 5)
	for i := 1; i < len(result.Candles); i++ {
		require.True(t, result.Candles[i].OpenTime.After(result.Candles[i-1].OpenTime))
	}
}

func TestFetcher_CloseClosesEveryAdapter(t *testing.T) {
	a := fake.New("a", 1)
	b := fake.New("b", 2)
	f := New([]exchange.Exchange{a, b}, zerolog.Nop())
	require.NoError(t, f.Close())
}
