package cycle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify_Euphoria(t *testing.T) {
	info := Classify(Input{CurrentPrice: 98, ATH: 100, ATL: 10, DaysSinceHalving: 100})
	require.Equal(t, PhaseEuphoria, info.Phase)
	require.Equal(t, RiskHigh, info.RiskLevel)
}

func TestClassify_BullRun(t *testing.T) {
	info := Classify(Input{CurrentPrice: 85, ATH: 100, ATL: 10, DaysSinceHalving: 400})
	require.Equal(t, PhaseBullRun, info.Phase)
}

func TestClassify_Distribution(t *testing.T) {
	info := Classify(Input{CurrentPrice: 85, ATH: 100, ATL: 10, DaysSinceHalving: 800})
	require.Equal(t, PhaseDistribution, info.Phase)
}

func TestClassify_Capitulation(t *testing.T) {
	rsi := 25.0
	info := Classify(Input{CurrentPrice: 35, ATH: 100, ATL: 10, DaysSinceHalving: 600, RSI: &rsi})
	require.Equal(t, PhaseCapitulation, info.Phase)
	require.Equal(t, 70.0, info.Confidence)
}

func TestClassify_WithoutRSIUsesLowerConfidence(t *testing.T) {
	info := Classify(Input{CurrentPrice: 35, ATH: 100, ATL: 10, DaysSinceHalving: 600})
	require.Equal(t, 50.0, info.Confidence)
}

func TestClassify_Unknown(t *testing.T) {
	info := Classify(Input{CurrentPrice: 70, ATH: 100, ATL: 10, DaysSinceHalving: 100})
	require.Equal(t, PhaseUnknown, info.Phase)
	require.Equal(t, RiskMedium, info.RiskLevel)
}

func TestClassify_CyclePositionWrapsAtCycleLength(t *testing.T) {
	info := Classify(Input{CurrentPrice: 70, ATH: 100, ATL: 10, DaysSinceHalving: 1460 + 365})
	require.InDelta(t, 25.0, info.CyclePosition, 0.01)
}
