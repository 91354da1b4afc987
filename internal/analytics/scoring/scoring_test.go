package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptorun/internal/analytics/cycle"
	"github.com/sawpanic/cryptorun/internal/analytics/indicators"
	"github.com/sawpanic/cryptorun/internal/analytics/patterns"
)

func ptr(f float64) *float64 { return &f }

func TestScoreTechnical_BullishBundle(t *testing.T) {
	b := indicators.Bundle{
		Price: 110, HasSMA200: true, SMA200: 100,
		HasSMA50: true, SMA50: 105,
		HasRSI: true, RSI14: 25,
		HasMACD: true, MACD: indicators.MACD{Histogram: 1},
		HasBollinger: true, Bollinger: indicators.Bollinger{Position: 10},
	}
	s := ScoreTechnical(b)
	require.Equal(t, 100.0, s.Score)
	require.Equal(t, SignalBullish, s.Signal)
}

func TestScoreFearGreed_ContrarianThresholds(t *testing.T) {
	require.Equal(t, 80.0, ScoreFearGreed(10).Score)
	require.Equal(t, 65.0, ScoreFearGreed(30).Score)
	require.Equal(t, 50.0, ScoreFearGreed(50).Score)
	require.Equal(t, 35.0, ScoreFearGreed(60).Score)
	require.Equal(t, 20.0, ScoreFearGreed(90).Score)
}

func TestScoreDerivatives_MissingInputsStayNeutral(t *testing.T) {
	s := ScoreDerivatives(Derivatives{})
	require.Equal(t, 50.0, s.Score)
	require.Equal(t, SignalNeutral, s.Signal)
}

func TestScoreOnchain_ExtremeMVRV(t *testing.T) {
	s := ScoreOnchain(Onchain{MVRV: ptr(0.5)})
	require.Equal(t, 65.0, s.Score)
}

func TestScoreCycle_LooksUpPhaseTable(t *testing.T) {
	s := ScoreCycle(cycle.Info{Phase: cycle.PhaseCapitulation})
	require.Equal(t, 85.0, s.Score)
}

func TestScorePatterns_PassesThroughSummaryScore(t *testing.T) {
	s := ScorePatterns(patterns.Summary{Score: 72})
	require.Equal(t, 72.0, s.Score)
	require.Equal(t, SignalBullish, s.Signal)
}

func TestAggregate_NeutralBand(t *testing.T) {
	neutral := ComponentScore{Score: 50, Signal: SignalNeutral}
	composite := Aggregate(Components{
		Technical: neutral, Patterns: neutral, Cycle: neutral,
		Derivatives: neutral, FearGreed: neutral, Onchain: neutral,
	})
	require.Equal(t, 50.0, composite.TotalScore)
	require.Equal(t, CompositeNeutral, composite.Signal)
	require.Equal(t, ActionHold, composite.Action)
	require.Equal(t, 50.0, composite.Confidence)
}

func TestAggregate_StrongBullishBand(t *testing.T) {
	bull := ComponentScore{Score: 90, Signal: SignalBullish}
	composite := Aggregate(Components{
		Technical: bull, Patterns: bull, Cycle: bull,
		Derivatives: bull, FearGreed: bull, Onchain: bull,
	})
	require.Equal(t, 90.0, composite.TotalScore)
	require.Equal(t, CompositeStrongBullish, composite.Signal)
	require.Equal(t, ActionStrongBuy, composite.Action)
	require.Equal(t, RiskLow, composite.RiskLevel)
	require.Equal(t, 100.0, composite.Confidence)
}

func TestAggregate_RiskLevelFromRiskScore(t *testing.T) {
	bear := ComponentScore{Score: 10, Signal: SignalBearish}
	composite := Aggregate(Components{
		Technical: bear, Patterns: bear, Cycle: bear,
		Derivatives: bear, FearGreed: bear, Onchain: bear,
	})
	require.Equal(t, RiskHigh, composite.RiskLevel)
	require.Equal(t, CompositeStrongBearish, composite.Signal)
	require.Equal(t, ActionStrongSell, composite.Action)
}
