package patterns

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptorun/internal/candle"
)

func makeCandles(closes []float64) []candle.Candle {
	out := make([]candle.Candle, len(closes))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = candle.Candle{
			Symbol:   "BTCUSD",
			Venue:    "fake",
			Interval: candle.Interval1h,
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   1,
		}
	}
	return out
}

func TestDetect_ConsecutiveUpStreak(t *testing.T) {
	closes := make([]float64, 55)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	summary := Detect(makeCandles(closes))

	found := false
	for _, p := range summary.Patterns {
		if p.Name == "consecutive_up" {
			found = true
			require.Equal(t, Bullish, p.Direction)
		}
	}
	require.True(t, found)
	require.Equal(t, SignalBullish, summary.Signal)
}

// Alternating closes form both a double top and a double bottom of equal
// strength, so the two patterns cancel out.
func TestDetect_OffsettingPatternsIsNeutral(t *testing.T) {
	closes := make([]float64, 55)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 101
		}
	}
	summary := Detect(makeCandles(closes))
	require.Equal(t, 50.0, summary.Score)
	require.Equal(t, SignalNeutral, summary.Signal)
}

func TestDetect_FewerThanFiftyCandlesIsEmptySummary(t *testing.T) {
	closes := []float64{100, 101, 100, 101, 100}
	summary := Detect(makeCandles(closes))
	require.Empty(t, summary.Patterns)
	require.Equal(t, 50.0, summary.Score)
	require.Equal(t, SignalNeutral, summary.Signal)
}

func TestDetect_ScoreClampedToRange(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	summary := Detect(makeCandles(closes))
	require.GreaterOrEqual(t, summary.Score, 0.0)
	require.LessOrEqual(t, summary.Score, 100.0)
}
