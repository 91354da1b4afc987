package candlestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptorun/internal/candle"
)

// memStore is a minimal in-memory Store used to test gap detection
// without a database.
type memStore struct {
	timestamps []time.Time
}

func (m *memStore) UpsertCandles(ctx context.Context, exchange string, symbol candle.Symbol, interval candle.Interval, rows []candle.Candle) (int, error) {
	return len(rows), nil
}

func (m *memStore) MinMaxTimestamp(ctx context.Context, symbol candle.Symbol, interval candle.Interval) (time.Time, time.Time, bool, error) {
	if len(m.timestamps) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return m.timestamps[0], m.timestamps[len(m.timestamps)-1], true, nil
}

func (m *memStore) CountInRange(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) (int, error) {
	count := 0
	for _, ts := range m.timestamps {
		if !ts.Before(start) && ts.Before(end) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) OrderedTimestamps(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, ts := range m.timestamps {
		if !ts.Before(start) && ts.Before(end) {
			out = append(out, ts)
		}
	}
	return out, nil
}

func TestDetectGaps_NoStoredData(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Hour)

	gaps, err := DetectGaps(context.Background(), &memStore{}, "BTCUSD", candle.Interval1h, start, end)
	require.NoError(t, err)
	require.Equal(t, []Gap{{Start: start, End: end}}, gaps)
}

func TestDetectGaps_InteriorGap(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{timestamps: []time.Time{
		start,
		start.Add(time.Hour),
		start.Add(4 * time.Hour), // gap: hours 2-3 missing
	}}
	end := start.Add(6 * time.Hour) // trailing gap: hour 5 missing

	gaps, err := DetectGaps(context.Background(), store, "BTCUSD", candle.Interval1h, start, end)
	require.NoError(t, err)
	require.Len(t, gaps, 2)
	require.Equal(t, start.Add(2*time.Hour), gaps[0].Start)
	require.Equal(t, start.Add(4*time.Hour), gaps[0].End)
	require.Equal(t, start.Add(5*time.Hour), gaps[1].Start)
	require.Equal(t, end, gaps[1].End)
}

func TestDetectGaps_LeadingGap(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{timestamps: []time.Time{start.Add(2 * time.Hour)}}
	end := start.Add(3 * time.Hour)

	gaps, err := DetectGaps(context.Background(), store, "BTCUSD", candle.Interval1h, start, end)
	require.NoError(t, err)
	require.Len(t, gaps, 1)
	require.Equal(t, start, gaps[0].Start)
	require.Equal(t, start.Add(2*time.Hour), gaps[0].End)
}

func TestDetectGaps_FullyCovered(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := &memStore{timestamps: []time.Time{start, start.Add(time.Hour), start.Add(2 * time.Hour)}}
	end := start.Add(3 * time.Hour)

	gaps, err := DetectGaps(context.Background(), store, "BTCUSD", candle.Interval1h, start, end)
	require.NoError(t, err)
	require.Empty(t, gaps)
}
