// Package cycle classifies the current market-cycle phase from
// Bitcoin-halving-relative timing and distance from all-time high/low.
// Pure and deterministic.
package cycle

// cycleLengthDays is the fixed halving-cycle length used to derive
// cycle_position; it is a constant rather than a derived value per the
// resolved open question on halving cadence drift.
const cycleLengthDays = 1460

// Phase is one of the nine recognized market-cycle phases.
type Phase string

const (
	PhaseEuphoria     Phase = "euphoria"
	PhaseBullRun      Phase = "bull_run"
	PhaseDistribution Phase = "distribution"
	PhaseCapitulation Phase = "capitulation"
	PhaseEarlyBull    Phase = "early_bull"
	PhaseBearMarket   Phase = "bear_market"
	PhaseEarlyBear    Phase = "early_bear"
	PhaseAccumulation Phase = "accumulation"
	PhaseUnknown      Phase = "unknown"
)

// RiskLevel is the per-phase risk classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

var riskByPhase = map[Phase]RiskLevel{
	PhaseAccumulation: RiskLow,
	PhaseEarlyBull:    RiskLow,
	PhaseCapitulation: RiskLow,
	PhaseBullRun:      RiskMedium,
	PhaseDistribution: RiskMedium,
	PhaseEarlyBear:    RiskMedium,
	PhaseBearMarket:   RiskMedium,
	PhaseEuphoria:     RiskHigh,
}

// Input carries the observed market state the classifier needs.
type Input struct {
	CurrentPrice    float64
	ATH             float64
	ATL             float64
	DaysSinceHalving int
	RSI             *float64 // optional
}

// Info is the classifier's output.
type Info struct {
	Phase            Phase
	DistanceFromATH  float64
	DistanceFromATL  float64
	CyclePosition    float64
	Confidence       float64
	RiskLevel        RiskLevel
}

// Classify runs the nine-phase decision table, first match wins.
func Classify(in Input) Info {
	distATH := (in.ATH - in.CurrentPrice) / in.ATH * 100
	distATL := (in.CurrentPrice - in.ATL) / in.ATL * 100
	days := in.DaysSinceHalving

	phase := decide(distATH, distATL, days, in.RSI)

	confidence := 50.0
	if in.RSI != nil {
		confidence = 70.0
	}

	return Info{
		Phase:           phase,
		DistanceFromATH: distATH,
		DistanceFromATL: distATL,
		CyclePosition:   float64(days%cycleLengthDays) / cycleLengthDays * 100,
		Confidence:      confidence,
		RiskLevel:       riskFor(phase),
	}
}

func decide(distATH, distATL float64, days int, rsi *float64) Phase {
	switch {
	case distATH <= 3:
		return PhaseEuphoria
	case distATH <= 20 && days <= 730:
		return PhaseBullRun
	case distATH <= 20:
		return PhaseDistribution
	case rsi != nil && *rsi < 30 && distATH >= 60 && days >= 540:
		return PhaseCapitulation
	case days >= 180 && days <= 365 && distATH >= 30:
		return PhaseEarlyBull
	case days >= 720 && distATH >= 50:
		return PhaseBearMarket
	case days >= 540 && days <= 730 && distATH >= 40:
		return PhaseEarlyBear
	case distATH >= 50:
		return PhaseAccumulation
	default:
		return PhaseUnknown
	}
}

func riskFor(phase Phase) RiskLevel {
	if r, ok := riskByPhase[phase]; ok {
		return r
	}
	return RiskMedium
}
