// Package sensorpub declares the sensor publisher collaborator: an
// external sink for computed scores, indicators, cycle state, live
// candles, and backfill progress. No transport is assumed.
package sensorpub

import (
	"context"

	"github.com/sawpanic/cryptorun/internal/candle"
)

// Publisher is implemented by whatever downstream consumer ingests the
// analytics core's output. This module ships only NoopPublisher; a real
// transport (message bus, HTTP callback, gRPC) is wired in by the
// deployment, not by this package.
type Publisher interface {
	PublishComposite(ctx context.Context, symbol candle.Symbol, composite interface{}) error
	PublishIndicatorBundle(ctx context.Context, symbol candle.Symbol, interval candle.Interval, indicators interface{}) error
	PublishCycle(ctx context.Context, cycle interface{}) error
	PublishLiveCandle(ctx context.Context, symbol candle.Symbol, c candle.Candle, isClosed bool, source candle.StreamSource) error
	PublishBackfillProgress(ctx context.Context, progress candle.BackfillProgress) error
}

// NoopPublisher discards everything published to it. It is the default
// for tests and for cmd/cryptorun when no real publisher is configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishComposite(ctx context.Context, symbol candle.Symbol, composite interface{}) error {
	return nil
}

func (NoopPublisher) PublishIndicatorBundle(ctx context.Context, symbol candle.Symbol, interval candle.Interval, indicators interface{}) error {
	return nil
}

func (NoopPublisher) PublishCycle(ctx context.Context, cycle interface{}) error { return nil }

func (NoopPublisher) PublishLiveCandle(ctx context.Context, symbol candle.Symbol, c candle.Candle, isClosed bool, source candle.StreamSource) error {
	return nil
}

func (NoopPublisher) PublishBackfillProgress(ctx context.Context, progress candle.BackfillProgress) error {
	return nil
}
