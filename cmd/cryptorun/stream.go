package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/config"
	"github.com/sawpanic/cryptorun/internal/racefetch"
	"github.com/sawpanic/cryptorun/internal/sensorpub"
	"github.com/sawpanic/cryptorun/internal/stream"
)

var streamInterval string

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Run the live candle stream manager for the configured symbols",
	RunE:  runStream,
}

func init() {
	streamCmd.Flags().StringVar(&streamInterval, "interval", "1m", "candle interval to stream")
}

func runStream(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := log.Logger.With().Str("cmd", "stream").Logger()
	reg := newMetricsRegistry()

	adapters := allAdapters(reg)
	defer closeAdapters(adapters, logger)
	fetcher := racefetch.New(adapters, logger)

	primary := stream.NewWSConnector("kraken", stream.DialKrakenURL, stream.SubscribeKraken, stream.ParseKrakenTick, logger)
	secondary := stream.NewWSConnector("binance", stream.DialBinanceURL, nil, stream.ParseBinanceTick, logger)

	callback := func(symbol candle.Symbol, c candle.Candle, isClosed bool, source candle.StreamSource) {
		logger.Info().
			Str("symbol", string(symbol)).
			Str("source", string(source)).
			Bool("closed", isClosed).
			Float64("close", c.Close).
			Msg("candle")
	}

	sourceChange := func(symbol candle.Symbol, from, to candle.StreamSource) {
		logger.Warn().
			Str("symbol", string(symbol)).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("stream source changed")
	}

	streamCfg := stream.DefaultConfig()
	streamCfg.MaxErrorsBeforeFallback = cfg.StreamMaxErrorsBeforeFallback
	streamCfg.FallbackTimeout = cfg.StreamFallbackTimeout
	streamCfg.RESTPollInterval = cfg.StreamRESTPollInterval

	mgr := stream.New(primary, secondary, fetcher, streamCfg, callback, logger,
		stream.WithMetrics(reg),
		stream.WithPublisher(sensorpub.NoopPublisher{}),
		stream.WithSourceChangeCallback(sourceChange),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, symbol := range cfg.Symbols {
		mgr.Start(ctx, symbol, candle.Interval(streamInterval))
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down stream manager")
	mgr.Stop()
	return nil
}
