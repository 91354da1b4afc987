package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptorun/internal/analytics/cycle"
	"github.com/sawpanic/cryptorun/internal/analytics/indicators"
	"github.com/sawpanic/cryptorun/internal/analytics/patterns"
	"github.com/sawpanic/cryptorun/internal/analytics/scoring"
	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/config"
	"github.com/sawpanic/cryptorun/internal/racefetch"
	"github.com/sawpanic/cryptorun/internal/sensorpub"
)

// bitcoinGenesisHalving anchors cycle.Input.DaysSinceHalving until a
// deployment wires in the real most-recent-halving lookup table.
var bitcoinGenesisHalving = time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC)

var (
	scoreSymbol   string
	scoreInterval string
	scoreLimit    int
	scoreWeights  string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Fetch recent candles for a symbol and print its composite score",
	RunE:  runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreSymbol, "symbol", "BTCUSD", "symbol to score")
	scoreCmd.Flags().StringVar(&scoreInterval, "interval", "1h", "candle interval to fetch")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 300, "number of recent candles to fetch")
	scoreCmd.Flags().StringVar(&scoreWeights, "weights", "", "override WEIGHTS_FILE for this run")
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if scoreWeights != "" {
		cfg.WeightsFile = scoreWeights
	}

	logger := log.Logger.With().Str("cmd", "score").Logger()
	reg := newMetricsRegistry()

	adapters := allAdapters(reg)
	defer closeAdapters(adapters, logger)
	fetcher := racefetch.New(adapters, logger)

	weights, err := config.LoadWeightsFile(cfg.WeightsFile)
	if err != nil {
		return fmt.Errorf("load weights: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()

	result, err := fetcher.Fetch(ctx, candle.Symbol(scoreSymbol), candle.Interval(scoreInterval), scoreLimit, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", scoreSymbol, err)
	}
	if len(result.Candles) == 0 {
		return fmt.Errorf("no candles returned for %s", scoreSymbol)
	}

	closes := make([]float64, len(result.Candles))
	volumes := make([]float64, len(result.Candles))
	high, low := result.Candles[0].High, result.Candles[0].Low
	for i, c := range result.Candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	bundle := indicators.Compute(closes, volumes)
	patternSummary := patterns.Detect(result.Candles)
	cycleInfo := cycle.Classify(cycle.Input{
		CurrentPrice:     closes[len(closes)-1],
		ATH:              high,
		ATL:              low,
		DaysSinceHalving: int(time.Since(bitcoinGenesisHalving).Hours() / 24),
	})

	components := scoring.Components{
		Technical:   scoring.ScoreTechnical(bundle),
		Patterns:    scoring.ScorePatterns(patternSummary),
		Cycle:       scoring.ScoreCycle(cycleInfo),
		Derivatives: scoring.ScoreDerivatives(scoring.Derivatives{}),
		FearGreed:   scoring.ScoreFearGreed(50),
		Onchain:     scoring.ScoreOnchain(scoring.Onchain{}),
	}
	composite := scoring.AggregateWeighted(components, weights)

	publisher := sensorpub.NoopPublisher{}
	symbol := candle.Symbol(scoreSymbol)
	interval := candle.Interval(scoreInterval)
	if err := publisher.PublishIndicatorBundle(ctx, symbol, interval, bundle); err != nil {
		logger.Warn().Err(err).Msg("publish indicator bundle failed")
	}
	if err := publisher.PublishCycle(ctx, cycleInfo); err != nil {
		logger.Warn().Err(err).Msg("publish cycle failed")
	}
	if err := publisher.PublishComposite(ctx, symbol, composite); err != nil {
		logger.Warn().Err(err).Msg("publish composite failed")
	}

	fmt.Printf("%s (%s, %s venue, %d candles)\n", scoreSymbol, scoreInterval, result.Venue, len(result.Candles))
	fmt.Printf("  technical=%.1f patterns=%.1f cycle=%.1f(%s) derivatives=%.1f fear_greed=%.1f onchain=%.1f\n",
		components.Technical.Score, components.Patterns.Score, components.Cycle.Score, cycleInfo.Phase,
		components.Derivatives.Score, components.FearGreed.Score, components.Onchain.Score)
	fmt.Printf("  composite=%.1f signal=%s action=%s risk=%s confidence=%.2f\n",
		composite.TotalScore, composite.Signal, composite.Action, composite.RiskLevel, composite.Confidence)
	return nil
}
