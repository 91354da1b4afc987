// Command cryptorun is the process entrypoint wiring the core packages
// together for manual operation: backfilling historical candles,
// running the live stream manager, and scoring a symbol on demand. It is
// process bootstrapping, not a full operator CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptorun/internal/candlestore"
	"github.com/sawpanic/cryptorun/internal/candlestore/postgres"
	"github.com/sawpanic/cryptorun/internal/config"
	"github.com/sawpanic/cryptorun/internal/exchange"
	"github.com/sawpanic/cryptorun/internal/exchange/binance"
	"github.com/sawpanic/cryptorun/internal/exchange/bybit"
	"github.com/sawpanic/cryptorun/internal/exchange/coinbase"
	"github.com/sawpanic/cryptorun/internal/exchange/kraken"
	"github.com/sawpanic/cryptorun/internal/exchange/kucoin"
	"github.com/sawpanic/cryptorun/internal/exchange/okx"
	"github.com/sawpanic/cryptorun/internal/metrics"
)

var rootCmd = &cobra.Command{
	Use:   "cryptorun",
	Short: "CryptoRun market-intelligence engine",
	Long: `CryptoRun backfills historical candles, maintains a live per-symbol
candle stream with automatic venue fallback, and scores market state across
six weighted components.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cryptorun - use backfill, stream, or score")
	},
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// allAdapters builds one adapter per supported venue, each reporting to
// the given metrics registry, for the race fetcher to fan fetches across.
func allAdapters(reg *metrics.Registry) []exchange.Exchange {
	return []exchange.Exchange{
		kraken.NewWithMetrics(reg),
		binance.NewWithMetrics(reg),
		coinbase.NewWithMetrics(reg),
		okx.NewWithMetrics(reg),
		bybit.NewWithMetrics(reg),
		kucoin.NewWithMetrics(reg),
	}
}

// closeAdapters releases every adapter's pooled connections, logging
// rather than failing the command on a close error.
func closeAdapters(adapters []exchange.Exchange, logger zerolog.Logger) {
	for _, a := range adapters {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Str("venue", a.Name()).Msg("adapter close failed")
		}
	}
}

// openStore opens the configured candlestore.Store: Postgres when
// PostgresDSN is set, otherwise an in-process MemoryStore that does not
// survive a restart.
func openStore(cfg config.Config, logger zerolog.Logger) (candlestore.Store, func() error, error) {
	if cfg.PostgresDSN == "" {
		logger.Warn().Msg("POSTGRES_DSN unset, using in-memory candle store")
		return candlestore.NewMemoryStore(), func() error { return nil }, nil
	}

	pgCfg := postgres.DefaultConfig()
	pgCfg.DSN = cfg.PostgresDSN
	store, err := postgres.Open(pgCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	return store, store.Close, nil
}

// newMetricsRegistry builds a fresh Prometheus registry for one process
// run; nothing in this command exposes it over HTTP, per the ambient
// stack's "registry, not a server" scope.
func newMetricsRegistry() *metrics.Registry {
	return metrics.New(prometheus.NewRegistry())
}
