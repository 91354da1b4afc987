// Package indicators computes technical indicators from a closing-price
// series. Every function is pure: no I/O, no network types, deterministic
// given the same input slice.
package indicators

import "math"

// SMA returns the simple moving average of the last n values of closes.
// It returns (0, false) if closes has fewer than n elements.
func SMA(closes []float64, n int) (float64, bool) {
	if n <= 0 || len(closes) < n {
		return 0, false
	}
	window := closes[len(closes)-n:]
	sum := 0.0
	for _, c := range window {
		sum += c
	}
	return sum / float64(n), true
}

// EMASeries returns the exponential moving average for every point from
// index n-1 onward, seeded with SMA(n) at position n-1 and smoothed with
// factor 2/(n+1) thereafter. The returned slice has len(closes)-n+1
// elements, or nil if closes has fewer than n elements.
func EMASeries(closes []float64, n int) []float64 {
	if n <= 0 || len(closes) < n {
		return nil
	}
	seed, ok := SMA(closes, n)
	if !ok {
		return nil
	}

	alpha := 2.0 / float64(n+1)
	out := make([]float64, 0, len(closes)-n+1)
	out = append(out, seed)
	prev := seed
	for i := n; i < len(closes); i++ {
		v := (closes[i]-prev)*alpha + prev
		out = append(out, v)
		prev = v
	}
	return out
}

// EMA returns only the latest EMA(n) value.
func EMA(closes []float64, n int) (float64, bool) {
	series := EMASeries(closes, n)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// RSI computes Wilder's RSI(period) on close-to-close differences: the
// first value is seeded with simple averages of the first `period`
// gains/losses, and every value after is recursively smoothed with
// factor 1/period.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD holds the standard 12/26/9 MACD triple.
type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// ComputeMACD computes line = EMA(12) - EMA(26), signal = EMA(9) of the
// line series, histogram = line - signal.
func ComputeMACD(closes []float64) (MACD, bool) {
	ema12 := EMASeries(closes, 12)
	ema26 := EMASeries(closes, 26)
	if len(ema12) == 0 || len(ema26) == 0 {
		return MACD{}, false
	}

	// ema12 starts at index 11, ema26 starts at index 25 of the original
	// series; align both to index 25 onward.
	offset := 25 - 11
	if offset >= len(ema12) {
		return MACD{}, false
	}
	aligned12 := ema12[offset:]

	n := len(aligned12)
	if len(ema26) < n {
		n = len(ema26)
	}
	lineSeries := make([]float64, n)
	for i := 0; i < n; i++ {
		lineSeries[i] = aligned12[i] - ema26[i]
	}

	signalSeries := EMASeries(lineSeries, 9)
	if len(signalSeries) == 0 {
		return MACD{}, false
	}

	line := lineSeries[len(lineSeries)-1]
	signal := signalSeries[len(signalSeries)-1]
	return MACD{Line: line, Signal: signal, Histogram: line - signal}, true
}

// Bollinger holds the 20/2 Bollinger Band state for the latest bar.
type Bollinger struct {
	Middle   float64
	Upper    float64
	Lower    float64
	Position float64 // clamp((price - lower) / (upper - lower) * 100, 0, 100)
}

// ComputeBollinger computes Bollinger Bands(20, 2) for the latest close.
func ComputeBollinger(closes []float64) (Bollinger, bool) {
	const n = 20
	middle, ok := SMA(closes, n)
	if !ok {
		return Bollinger{}, false
	}

	window := closes[len(closes)-n:]
	var sumSq float64
	for _, c := range window {
		d := c - middle
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(n-1))

	upper := middle + 2*std
	lower := middle - 2*std

	price := closes[len(closes)-1]
	position := 50.0
	if upper != lower {
		position = clamp((price-lower)/(upper-lower)*100, 0, 100)
	}

	return Bollinger{Middle: middle, Upper: upper, Lower: lower, Position: position}, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// VolumeRatio returns the latest volume divided by the average volume of
// the preceding n periods. Returns (0, false) if volumes has fewer than
// n+1 elements or the preceding average is zero.
func VolumeRatio(volumes []float64, n int) (float64, bool) {
	if n <= 0 || len(volumes) < n+1 {
		return 0, false
	}
	window := volumes[len(volumes)-n-1 : len(volumes)-1]
	var sum float64
	for _, v := range window {
		sum += v
	}
	avg := sum / float64(n)
	if avg == 0 {
		return 0, false
	}
	return volumes[len(volumes)-1] / avg, true
}

// Bundle is the full set of indicators computed over one candle series,
// matching the publisher's TechnicalIndicators shape.
type Bundle struct {
	SMA50, SMA200 float64
	HasSMA50      bool
	HasSMA200     bool
	EMA12, EMA26  float64
	HasEMA12      bool
	HasEMA26      bool
	RSI14         float64
	HasRSI        bool
	MACD          MACD
	HasMACD       bool
	Bollinger     Bollinger
	HasBollinger  bool
	VolumeRatio   float64
	HasVolumeRatio bool
	Price         float64
}

// volumeRatioWindow is the lookback used by Compute's VolumeRatio field:
// the latest bar's volume against the average of the preceding 20.
const volumeRatioWindow = 20

// Compute builds the full Bundle from a closing-price series and its
// matching volume series. volumes may be nil or shorter than closes; the
// ratio field is simply left unset in that case.
func Compute(closes, volumes []float64) Bundle {
	var b Bundle
	if len(closes) == 0 {
		return b
	}
	b.Price = closes[len(closes)-1]

	if v, ok := SMA(closes, 50); ok {
		b.SMA50, b.HasSMA50 = v, true
	}
	if v, ok := SMA(closes, 200); ok {
		b.SMA200, b.HasSMA200 = v, true
	}
	if v, ok := EMA(closes, 12); ok {
		b.EMA12, b.HasEMA12 = v, true
	}
	if v, ok := EMA(closes, 26); ok {
		b.EMA26, b.HasEMA26 = v, true
	}
	if v, ok := RSI(closes, 14); ok {
		b.RSI14, b.HasRSI = v, true
	}
	if v, ok := ComputeMACD(closes); ok {
		b.MACD, b.HasMACD = v, true
	}
	if v, ok := ComputeBollinger(closes); ok {
		b.Bollinger, b.HasBollinger = v, true
	}
	if v, ok := VolumeRatio(volumes, volumeRatioWindow); ok {
		b.VolumeRatio, b.HasVolumeRatio = v, true
	}
	return b
}
