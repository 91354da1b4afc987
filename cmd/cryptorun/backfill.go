package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptorun/internal/backfill"
	"github.com/sawpanic/cryptorun/internal/config"
	internallog "github.com/sawpanic/cryptorun/internal/log"
	"github.com/sawpanic/cryptorun/internal/racefetch"
	"github.com/sawpanic/cryptorun/internal/sensorpub"
)

var (
	backfillForce bool
	backfillYears int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fill the configured symbol/interval grid from exchange history",
	RunE:  runBackfill,
}

func init() {
	backfillCmd.Flags().BoolVar(&backfillForce, "force", false, "backfill even if the completion marker is present")
	backfillCmd.Flags().IntVar(&backfillYears, "years", 0, "override BACKFILL_CRYPTO_YEARS for this run")
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	years := cfg.BackfillCryptoYears
	if backfillYears > 0 {
		years = backfillYears
	}

	logger := log.Logger.With().Str("cmd", "backfill").Logger()
	reg := newMetricsRegistry()

	adapters := allAdapters(reg)
	defer closeAdapters(adapters, logger)
	fetcher := racefetch.New(adapters, logger)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	orchestrator := backfill.New(fetcher, store, cfg.Exchange, logger,
		backfill.WithMarkerPath(cfg.BackfillMarkerPath),
		backfill.WithRetryPolicy(backfill.RetryPolicy{
			BaseDelay:  cfg.RateLimitBaseDelay,
			MaxDelay:   cfg.RateLimitMaxDelay,
			MaxRetries: cfg.RateLimitMaxRetries,
		}),
		backfill.WithMetrics(reg),
		backfill.WithPublisher(sensorpub.NoopPublisher{}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	total := len(cfg.Symbols) * len(cfg.BackfillIntervals)
	step := internallog.NewStepLoggerWithMetrics("backfill", []string{"fill grid"}, reg)
	step.StartStep("fill grid")
	stop := make(chan struct{})
	go reportBackfillProgress(orchestrator, total, stop)

	var results map[string]int
	if backfillForce {
		results, err = orchestrator.BackfillAll(ctx, cfg.Symbols, cfg.BackfillIntervals, years)
	} else {
		err = orchestrator.CheckAndBackfill(ctx, cfg.Symbols, cfg.BackfillIntervals, years, false)
	}
	close(stop)

	if err != nil {
		step.Fail(err.Error())
		return fmt.Errorf("backfill: %w", err)
	}
	step.CompleteStep()
	step.Finish()

	for cell, n := range results {
		fmt.Printf("%s: %d candles\n", cell, n)
	}
	return nil
}

// reportBackfillProgress polls the orchestrator's progress snapshot every
// second and logs it until stop closes, giving the operator a heartbeat
// during what can be a multi-hour run.
func reportBackfillProgress(o *backfill.Orchestrator, total int, stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p := o.Progress()
			log.Info().Int("completed", p.CryptoCells).Int("total", total).Str("status", string(p.Status)).Msg("backfill progress")
		}
	}
}
