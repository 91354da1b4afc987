package indicators

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func closesUp(n int, start float64) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = start + float64(i)
	}
	return out
}

func TestSMA_InsufficientData(t *testing.T) {
	_, ok := SMA([]float64{1, 2, 3}, 5)
	require.False(t, ok)
}

func TestSMA_Basic(t *testing.T) {
	v, ok := SMA([]float64{1, 2, 3, 4, 5}, 5)
	require.True(t, ok)
	require.Equal(t, 3.0, v)
}

func TestEMA_SeededWithSMA(t *testing.T) {
	closes := closesUp(20, 100)
	series := EMASeries(closes, 10)
	require.NotEmpty(t, series)

	seed, _ := SMA(closes, 10)
	require.Equal(t, seed, series[0])
}

func TestRSI_AllGainsIsHundred(t *testing.T) {
	closes := closesUp(20, 100)
	v, ok := RSI(closes, 14)
	require.True(t, ok)
	require.Equal(t, 100.0, v)
}

func TestRSI_AllLossesIsZero(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	v, ok := RSI(closes, 14)
	require.True(t, ok)
	require.InDelta(t, 0, v, 0.001)
}

func TestRSI_InsufficientData(t *testing.T) {
	_, ok := RSI([]float64{1, 2, 3}, 14)
	require.False(t, ok)
}

func TestComputeMACD_RequiresEnoughHistory(t *testing.T) {
	_, ok := ComputeMACD(closesUp(10, 100))
	require.False(t, ok)

	v, ok := ComputeMACD(closesUp(60, 100))
	require.True(t, ok)
	require.Equal(t, v.Line-v.Signal, v.Histogram)
}

func TestComputeBollinger_PositionClampedToRange(t *testing.T) {
	closes := closesUp(20, 100)
	b, ok := ComputeBollinger(closes)
	require.True(t, ok)
	require.GreaterOrEqual(t, b.Position, 0.0)
	require.LessOrEqual(t, b.Position, 100.0)
	require.Greater(t, b.Upper, b.Middle)
	require.Less(t, b.Lower, b.Middle)
}

func TestCompute_EmptySeriesReturnsZeroBundle(t *testing.T) {
	b := Compute(nil, nil)
	require.False(t, b.HasSMA50)
	require.False(t, b.HasRSI)
}

func TestCompute_VolumeRatioRequiresWindowPlusOne(t *testing.T) {
	closes := closesUp(60, 100)
	volumes := make([]float64, 60)
	for i := range volumes {
		volumes[i] = 10
	}
	volumes[59] = 30

	b := Compute(closes, volumes)
	require.True(t, b.HasVolumeRatio)
	require.InDelta(t, 3.0, b.VolumeRatio, 0.001)

	short := Compute(closes, volumes[:10])
	require.False(t, short.HasVolumeRatio)
}
