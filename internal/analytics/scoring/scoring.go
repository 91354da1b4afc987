// Package scoring implements the six-component composite scoring engine:
// technical, patterns, cycle, derivatives, fear/greed, and on-chain
// inputs are each scored to [0, 100] and combined with fixed weights.
// Pure and deterministic; missing optional inputs degrade a component to
// neutral rather than erroring.
package scoring

import (
	"fmt"
	"strings"

	"github.com/sawpanic/cryptorun/internal/analytics/cycle"
	"github.com/sawpanic/cryptorun/internal/analytics/indicators"
	"github.com/sawpanic/cryptorun/internal/analytics/patterns"
	"github.com/sawpanic/cryptorun/internal/config"
)

// Signal is a component or composite bullish/bearish/neutral reading.
type Signal string

const (
	SignalBullish Signal = "bullish"
	SignalBearish Signal = "bearish"
	SignalNeutral Signal = "neutral"
)

var cycleScoreTable = map[cycle.Phase]float64{
	cycle.PhaseCapitulation: 85,
	cycle.PhaseAccumulation: 75,
	cycle.PhaseEarlyBull:    70,
	cycle.PhaseBullRun:      60,
	cycle.PhaseEuphoria:     30,
	cycle.PhaseDistribution: 35,
	cycle.PhaseEarlyBear:    40,
	cycle.PhaseBearMarket:   45,
	cycle.PhaseUnknown:      50,
}

// ComponentScore is one scored input to the composite. Name, Weight, and
// WeightedScore are left zero until the component is folded into a
// Composite by Aggregate/AggregateWeighted, which is the only place a
// component's weight is known.
type ComponentScore struct {
	Score         float64
	Signal        Signal
	Name          string
	Weight        float64
	WeightedScore float64
	Details       string
}

func componentSignal(score float64) Signal {
	switch {
	case score >= 60:
		return SignalBullish
	case score <= 40:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

func scored(score float64, details string) ComponentScore {
	score = clamp(score, 0, 100)
	return ComponentScore{Score: score, Signal: componentSignal(score), Details: details}
}

// ScoreTechnical implements the technical component's scoring rules over
// an indicators.Bundle.
func ScoreTechnical(b indicators.Bundle) ComponentScore {
	score := 50.0
	var reasons []string

	if b.HasRSI {
		switch {
		case b.RSI14 < 30:
			score += 12.5
			reasons = append(reasons, "rsi oversold")
		case b.RSI14 < 45:
			score += 6
		case b.RSI14 > 70:
			score -= 12.5
			reasons = append(reasons, "rsi overbought")
		case b.RSI14 > 55:
			score -= 6
		}
	}

	if b.HasSMA200 {
		if b.Price > b.SMA200 {
			score += 12.5
			reasons = append(reasons, "price above sma200")
		} else {
			score -= 12.5
			reasons = append(reasons, "price below sma200")
		}
	}

	if b.HasSMA50 && b.HasSMA200 {
		if b.SMA50 > b.SMA200 {
			score += 10
			reasons = append(reasons, "sma50 above sma200")
		} else {
			score -= 10
		}
	}

	if b.HasMACD {
		if b.MACD.Histogram > 0 {
			score += 7.5
			reasons = append(reasons, "macd histogram positive")
		} else {
			score -= 7.5
		}
	}

	if b.HasBollinger {
		switch {
		case b.Bollinger.Position < 20:
			score += 7.5
			reasons = append(reasons, "near lower bollinger band")
		case b.Bollinger.Position > 80:
			score -= 7.5
			reasons = append(reasons, "near upper bollinger band")
		}
	}

	if b.HasEMA12 && b.HasEMA26 {
		if b.EMA12 > b.EMA26 {
			reasons = append(reasons, "ema12 above ema26")
		} else {
			reasons = append(reasons, "ema12 below ema26")
		}
	}

	if b.HasVolumeRatio {
		switch {
		case b.VolumeRatio > 1.5:
			reasons = append(reasons, "volume surge")
		case b.VolumeRatio < 0.5:
			reasons = append(reasons, "volume drought")
		}
	}

	return scored(score, strings.Join(reasons, "; "))
}

// ScorePatterns passes through a pattern Summary's own score.
func ScorePatterns(s patterns.Summary) ComponentScore {
	details := fmt.Sprintf("%d bullish, %d bearish of %d patterns", s.BullishCount, s.BearishCount, s.Total)
	return scored(s.Score, details)
}

// ScoreCycle looks up the composite score for a classified cycle phase.
func ScoreCycle(info cycle.Info) ComponentScore {
	score, ok := cycleScoreTable[info.Phase]
	if !ok {
		score = 50
	}
	return scored(score, fmt.Sprintf("phase %s", info.Phase))
}

// Derivatives carries the optional derivatives inputs; nil pointers mean
// "unknown" and do not adjust the base score.
type Derivatives struct {
	FundingRate   *float64
	LongShortRatio *float64
	OIChange24h   *float64
}

// ScoreDerivatives implements the derivatives component's scoring rules.
func ScoreDerivatives(d Derivatives) ComponentScore {
	score := 50.0
	var reasons []string

	if d.FundingRate != nil {
		switch {
		case *d.FundingRate > 0.0005:
			score -= 15
			reasons = append(reasons, "funding rate elevated")
		case *d.FundingRate < -0.0002:
			score += 15
			reasons = append(reasons, "funding rate negative")
		}
	}

	if d.LongShortRatio != nil {
		switch {
		case *d.LongShortRatio > 1.5:
			score -= 10
			reasons = append(reasons, "long/short ratio crowded long")
		case *d.LongShortRatio < 0.67:
			score += 10
			reasons = append(reasons, "long/short ratio crowded short")
		}
	}

	return scored(score, strings.Join(reasons, "; "))
}

// ScoreFearGreed implements the contrarian fear/greed scoring rule over
// an integer index in [0, 100].
func ScoreFearGreed(value int) ComponentScore {
	var score float64
	switch {
	case value < 25:
		score = 80
	case value < 45:
		score = 65
	case value > 75:
		score = 20
	case value > 55:
		score = 35
	default:
		score = 50
	}
	return scored(score, fmt.Sprintf("index %d", value))
}

// Onchain carries the optional on-chain inputs; nil pointers mean
// "unknown" and do not adjust the base score.
type Onchain struct {
	MVRV                   *float64
	ExchangeReservesChange *float64 // fraction, e.g. -0.05 for -5%
}

// ScoreOnchain implements the on-chain component's scoring rules.
func ScoreOnchain(o Onchain) ComponentScore {
	score := 50.0
	var reasons []string

	if o.MVRV != nil {
		switch {
		case *o.MVRV < 1.0:
			score += 15
			reasons = append(reasons, "mvrv undervalued")
		case *o.MVRV > 3.5:
			score -= 15
			reasons = append(reasons, "mvrv overheated")
		}
	}

	if o.ExchangeReservesChange != nil {
		switch {
		case *o.ExchangeReservesChange < -0.05:
			score += 10
			reasons = append(reasons, "exchange reserves falling")
		case *o.ExchangeReservesChange > 0.05:
			score -= 10
			reasons = append(reasons, "exchange reserves rising")
		}
	}

	return scored(score, strings.Join(reasons, "; "))
}

// Action is the recommended action for a composite score band.
type Action string

const (
	ActionStrongBuy  Action = "strong_buy"
	ActionBuy        Action = "buy"
	ActionHold       Action = "hold"
	ActionSell       Action = "sell"
	ActionStrongSell Action = "strong_sell"
)

// CompositeSignal is the composite's own signal scale, distinct from a
// single component's bullish/bearish/neutral reading.
type CompositeSignal string

const (
	CompositeStrongBullish   CompositeSignal = "strong_bullish"
	CompositeBullish         CompositeSignal = "bullish"
	CompositeSlightlyBullish CompositeSignal = "slightly_bullish"
	CompositeNeutral         CompositeSignal = "neutral"
	CompositeSlightlyBearish CompositeSignal = "slightly_bearish"
	CompositeBearish         CompositeSignal = "bearish"
	CompositeStrongBearish   CompositeSignal = "strong_bearish"
)

// RiskLevel is the composite's own risk classification, derived from
// risk_score rather than looked up per-phase.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Components bundles every scored input to the composite.
type Components struct {
	Technical   ComponentScore
	Patterns    ComponentScore
	Cycle       ComponentScore
	Derivatives ComponentScore
	FearGreed   ComponentScore
	Onchain     ComponentScore
}

// Composite is the final aggregated score and its derived fields.
// Components holds the same six inputs carried in Components, each
// stamped with the Name/Weight/WeightedScore it contributed under the
// weight table AggregateWeighted was given.
type Composite struct {
	TotalScore float64
	Signal     CompositeSignal
	Action     Action
	RiskScore  float64
	RiskLevel  RiskLevel
	Confidence float64
	Components [6]ComponentScore
}

// Aggregate combines six component scores using the spec's fixed default
// weights. Callers that load a tuned weight table use AggregateWeighted.
func Aggregate(c Components) Composite {
	return AggregateWeighted(c, config.DefaultWeights())
}

// AggregateWeighted combines six component scores with the given weight
// table into the final composite score and its derived
// signal/action/risk/confidence.
func AggregateWeighted(c Components, w config.Weights) Composite {
	weightSum := w.Sum()

	named := [6]ComponentScore{
		stampWeight(c.Technical, "technical", w.Technical),
		stampWeight(c.Patterns, "patterns", w.Patterns),
		stampWeight(c.Cycle, "cycle", w.Cycle),
		stampWeight(c.Derivatives, "derivatives", w.Derivatives),
		stampWeight(c.FearGreed, "fear_greed", w.FearGreed),
		stampWeight(c.Onchain, "onchain", w.Onchain),
	}

	var total float64
	for _, comp := range named {
		total += comp.WeightedScore
	}
	total /= weightSum

	return Composite{
		TotalScore: total,
		Signal:     compositeSignal(total),
		Action:     actionFor(total),
		RiskScore:  100 - total,
		RiskLevel:  riskLevelFor(100 - total),
		Confidence: confidenceFor(c),
		Components: named,
	}
}

// stampWeight returns cs with Name/Weight/WeightedScore filled in under
// weight, the only point in the pipeline where a component's weight is
// known.
func stampWeight(cs ComponentScore, name string, weight float64) ComponentScore {
	cs.Name = name
	cs.Weight = weight
	cs.WeightedScore = cs.Score * weight
	return cs
}

func compositeSignal(total float64) CompositeSignal {
	switch {
	case total >= 75:
		return CompositeStrongBullish
	case total >= 60:
		return CompositeBullish
	case total >= 55:
		return CompositeSlightlyBullish
	case total <= 25:
		return CompositeStrongBearish
	case total <= 40:
		return CompositeBearish
	case total <= 45:
		return CompositeSlightlyBearish
	default:
		return CompositeNeutral
	}
}

func actionFor(total float64) Action {
	switch {
	case total >= 75:
		return ActionStrongBuy
	case total >= 60:
		return ActionBuy
	case total >= 55:
		return ActionBuy
	case total <= 25:
		return ActionStrongSell
	case total <= 40:
		return ActionSell
	case total <= 45:
		return ActionSell
	default:
		return ActionHold
	}
}

func riskLevelFor(riskScore float64) RiskLevel {
	switch {
	case riskScore > 70:
		return RiskHigh
	case riskScore > 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

func confidenceFor(c Components) float64 {
	scores := []ComponentScore{c.Technical, c.Patterns, c.Cycle, c.Derivatives, c.FearGreed, c.Onchain}

	var bullish, bearish, nonNeutral int
	for _, s := range scores {
		switch s.Signal {
		case SignalBullish:
			bullish++
			nonNeutral++
		case SignalBearish:
			bearish++
			nonNeutral++
		}
	}

	if nonNeutral == 0 {
		return 50
	}

	max := bullish
	if bearish > max {
		max = bearish
	}
	return float64(max) / float64(nonNeutral) * 100
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
