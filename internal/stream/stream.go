// Package stream implements the live, per-symbol candle stream manager:
// automatic degradation across PRIMARY_WS -> SECONDARY_WS -> REST, a
// health monitor forcing demotion on staleness, immediate demotion when a
// stream fails to connect, repeats errors, or ends on its own, and
// a shared REST polling loop for symbols that have fallen all the way
// down the chain.
//
// Grounded in the original CandleStreamManager/SymbolStreamState state
// machine, the teacher's per-venue websocket tick-normalizer idiom, and
// infra/breakers for wrapping each per-symbol socket in a sony/gobreaker
// circuit breaker.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/cryptorun/infra/breakers"
	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/metrics"
	"github.com/sawpanic/cryptorun/internal/racefetch"
	"github.com/sawpanic/cryptorun/internal/sensorpub"
)

// Connector opens a live candle stream for one symbol on one source.
// Implementations own the underlying websocket connection and translate
// venue-specific messages into candle.Candle values. Close releases the
// connection; Connect must be safe to call again after a previous stream
// ended.
type Connector interface {
	Connect(ctx context.Context, symbol candle.Symbol, interval candle.Interval) (<-chan candle.Candle, <-chan error, func() error, error)
}

// Callback receives every live candle event the manager produces.
type Callback func(symbol candle.Symbol, c candle.Candle, isClosed bool, source candle.StreamSource)

// SourceChangeCallback fires synchronously the instant the manager
// commits to a new source for symbol, strictly before that source's next
// candle reaches Callback. from is the source symbol was just demoted or
// restored from.
type SourceChangeCallback func(symbol candle.Symbol, from, to candle.StreamSource)

// Config tunes the state machine's thresholds.
type Config struct {
	MaxErrorsBeforeFallback int
	FallbackTimeout         time.Duration
	HealthCheckInterval     time.Duration
	RESTPollInterval        time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxErrorsBeforeFallback: 3,
		FallbackTimeout:         30 * time.Second,
		HealthCheckInterval:     10 * time.Second,
		RESTPollInterval:        60 * time.Second,
	}
}

// symbolState is the per-symbol mutable state the health monitor and the
// stream goroutines both touch, guarded by Manager.mu.
type symbolState struct {
	symbol        candle.Symbol
	interval      candle.Interval
	source        candle.StreamSource
	breaker       *breakers.Breaker
	lastCandle    candle.Candle
	lastCandleAt  time.Time
	errorCount    int
	closeCurrent  func() error
	cancelCurrent context.CancelFunc
}

// Manager owns every tracked symbol's stream state, the health monitor,
// and the shared REST polling loop.
type Manager struct {
	primary      Connector
	secondary    Connector
	fetcher      *racefetch.Fetcher
	cfg          Config
	callback     Callback
	sourceChange SourceChangeCallback
	log          zerolog.Logger
	metrics      *metrics.Registry
	publisher    sensorpub.Publisher

	mu      sync.Mutex
	symbols map[candle.Symbol]*symbolState

	monitorCancel context.CancelFunc
	restCancel    context.CancelFunc
	wg            sync.WaitGroup
	stopped       bool
}

// Option tunes an optional collaborator on a Manager built by New.
type Option func(*Manager)

// WithMetrics attaches a metrics registry; every source transition moves
// the active-source gauge for that symbol.
func WithMetrics(m *metrics.Registry) Option { return func(mgr *Manager) { mgr.metrics = m } }

// WithPublisher attaches a sensor publisher; every delivered candle is
// also pushed to it.
func WithPublisher(p sensorpub.Publisher) Option { return func(mgr *Manager) { mgr.publisher = p } }

// WithSourceChangeCallback attaches a callback fired on every demotion or
// restoration, before the new source's next candle reaches Callback.
func WithSourceChangeCallback(cb SourceChangeCallback) Option {
	return func(mgr *Manager) { mgr.sourceChange = cb }
}

func New(primary, secondary Connector, fetcher *racefetch.Fetcher, cfg Config, callback Callback, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		primary:      primary,
		secondary:    secondary,
		fetcher:      fetcher,
		cfg:          cfg,
		callback:     callback,
		sourceChange: func(candle.Symbol, candle.StreamSource, candle.StreamSource) {},
		log:          log.With().Str("component", "stream").Logger(),
		publisher:    sensorpub.NoopPublisher{},
		symbols:      make(map[candle.Symbol]*symbolState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins tracking symbol at interval, connecting PRIMARY_WS, and
// launches the health monitor and REST loop the first time any symbol is
// added.
func (m *Manager) Start(ctx context.Context, symbol candle.Symbol, interval candle.Interval) {
	m.mu.Lock()
	first := len(m.symbols) == 0
	breakerCfg := breakers.DefaultConfig()
	if m.cfg.MaxErrorsBeforeFallback > 0 {
		breakerCfg.ConsecutiveFailures = uint32(m.cfg.MaxErrorsBeforeFallback)
	}
	if m.cfg.FallbackTimeout > 0 {
		breakerCfg.Timeout = m.cfg.FallbackTimeout
	}
	state := &symbolState{symbol: symbol, interval: interval, source: candle.SourcePrimaryWS, breaker: breakers.NewWithConfig(string(symbol), breakerCfg)}
	m.symbols[symbol] = state
	m.mu.Unlock()

	if first {
		m.startMonitor(ctx)
		m.startRESTLoop(ctx)
	}

	m.connect(ctx, state, candle.SourcePrimaryWS)
}

// Stop cancels the monitor, the REST loop, and every per-symbol stream.
// It is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	symbols := make([]*symbolState, 0, len(m.symbols))
	for _, s := range m.symbols {
		symbols = append(symbols, s)
	}
	monitorCancel, restCancel := m.monitorCancel, m.restCancel
	m.mu.Unlock()

	if monitorCancel != nil {
		monitorCancel()
	}
	if restCancel != nil {
		restCancel()
	}
	for _, s := range symbols {
		m.closeState(s)
	}
	m.wg.Wait()
}

// RetryPrimary is the explicit external command asking a downgraded
// symbol to attempt PRIMARY_WS again.
func (m *Manager) RetryPrimary(ctx context.Context, symbol candle.Symbol) {
	m.mu.Lock()
	state, ok := m.symbols[symbol]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.connect(ctx, state, candle.SourcePrimaryWS)
}

// CurrentSource reports the active source for a tracked symbol.
func (m *Manager) CurrentSource(symbol candle.Symbol) (candle.StreamSource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.symbols[symbol]
	if !ok {
		return candle.SourceNone, false
	}
	return state.source, true
}

func (m *Manager) connect(ctx context.Context, state *symbolState, source candle.StreamSource) {
	m.closeState(state)

	connector := m.connectorFor(source)
	if connector == nil {
		m.transitionToREST(state)
		return
	}

	streamCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	previous := state.source
	state.source = source
	state.cancelCurrent = cancel
	m.mu.Unlock()
	m.recordSource(state.symbol, source)
	if previous != source {
		m.sourceChange(state.symbol, previous, source)
	}

	candles, errs, closeFn, err := connector.Connect(streamCtx, state.symbol, state.interval)
	if err != nil {
		cancel()
		m.demote(ctx, state)
		return
	}

	m.mu.Lock()
	state.closeCurrent = closeFn
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runStream(ctx, streamCtx, state, candles, errs)
}

func (m *Manager) connectorFor(source candle.StreamSource) Connector {
	switch source {
	case candle.SourcePrimaryWS:
		return m.primary
	case candle.SourceSecondaryWS:
		return m.secondary
	default:
		return nil
	}
}

// runStream drains one connector's channels. ctx is the long-lived
// manager context used to schedule any resulting demotion; streamCtx is
// this specific connection's context, canceled when the connection is
// replaced or the manager stops.
func (m *Manager) runStream(ctx, streamCtx context.Context, state *symbolState, candles <-chan candle.Candle, errs <-chan error) {
	defer m.wg.Done()
	for {
		select {
		case c, ok := <-candles:
			if !ok {
				// The stream ended on its own: a terminal failure.
				if streamCtx.Err() == nil {
					m.demote(ctx, state)
				}
				return
			}
			m.mu.Lock()
			if !state.lastCandle.OpenTime.IsZero() && c.OpenTime.Before(state.lastCandle.OpenTime) {
				m.mu.Unlock()
				continue
			}
			state.lastCandle = c
			state.lastCandleAt = time.Now()
			state.errorCount = 0
			source := state.source
			m.mu.Unlock()
			m.callback(state.symbol, c, true, source)
			_ = m.publisher.PublishLiveCandle(ctx, state.symbol, c, true, source)

		case err, ok := <-errs:
			if !ok {
				if streamCtx.Err() == nil {
					m.demote(ctx, state)
				}
				return
			}
			_, _ = state.breaker.Execute(func() (any, error) { return nil, err })
			m.mu.Lock()
			state.errorCount++
			exceeded := state.errorCount >= m.cfg.MaxErrorsBeforeFallback
			m.mu.Unlock()
			if exceeded {
				m.demote(ctx, state)
				return
			}

		case <-streamCtx.Done():
			return
		}
	}
}

// demote transitions a symbol to the next source in the chain:
// PRIMARY_WS -> SECONDARY_WS -> REST.
func (m *Manager) demote(ctx context.Context, state *symbolState) {
	m.mu.Lock()
	current := state.source
	m.mu.Unlock()

	switch current {
	case candle.SourcePrimaryWS:
		m.connect(ctx, state, candle.SourceSecondaryWS)
	default:
		m.transitionToREST(state)
	}
}

// transitionToREST closes the per-symbol socket and marks the symbol as
// REST-fed; it joins the shared REST polling loop implicitly because the
// loop scans every tracked symbol currently in REST mode.
func (m *Manager) transitionToREST(state *symbolState) {
	m.closeState(state)
	m.mu.Lock()
	previous := state.source
	state.source = candle.SourceREST
	state.errorCount = 0
	m.mu.Unlock()
	m.recordSource(state.symbol, candle.SourceREST)
	if previous != candle.SourceREST {
		m.sourceChange(state.symbol, previous, candle.SourceREST)
	}
}

// recordSource moves the active-source gauge for symbol to source,
// zeroing the other two so exactly one source reads 1 at a time.
func (m *Manager) recordSource(symbol candle.Symbol, source candle.StreamSource) {
	if m.metrics == nil {
		return
	}
	for _, s := range []candle.StreamSource{candle.SourcePrimaryWS, candle.SourceSecondaryWS, candle.SourceREST} {
		v := 0.0
		if s == source {
			v = 1.0
		}
		m.metrics.StreamSource.WithLabelValues(string(symbol), string(s)).Set(v)
	}
}

func (m *Manager) closeState(state *symbolState) {
	m.mu.Lock()
	cancel := state.cancelCurrent
	closeFn := state.closeCurrent
	state.cancelCurrent = nil
	state.closeCurrent = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closeFn != nil {
		_ = closeFn()
	}
}

// startMonitor launches the fixed-interval health check that forces
// demotion for any non-REST symbol that has gone quiet past
// FallbackTimeout.
func (m *Manager) startMonitor(ctx context.Context) {
	monitorCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.monitorCancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.HealthCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.checkHealth(monitorCtx)
			case <-monitorCtx.Done():
				return
			}
		}
	}()
}

func (m *Manager) checkHealth(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var stale []*symbolState
	for _, state := range m.symbols {
		if state.source == candle.SourceREST {
			continue
		}
		if !state.lastCandleAt.IsZero() && now.Sub(state.lastCandleAt) > m.cfg.FallbackTimeout {
			stale = append(stale, state)
		}
	}
	m.mu.Unlock()

	for _, state := range stale {
		m.log.Warn().Str("symbol", string(state.symbol)).Msg("stream quiet past fallback timeout, forcing demotion")
		m.demote(ctx, state)
	}
}

// startRESTLoop launches the shared poller that, for every symbol
// currently in REST mode, fetches the most recent closed bar via the
// race fetcher at RESTPollInterval.
func (m *Manager) startRESTLoop(ctx context.Context) {
	restCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.restCancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.cfg.RESTPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.pollREST(restCtx)
			case <-restCtx.Done():
				return
			}
		}
	}()
}

func (m *Manager) pollREST(ctx context.Context) {
	m.mu.Lock()
	var restSymbols []*symbolState
	for _, state := range m.symbols {
		if state.source == candle.SourceREST {
			restSymbols = append(restSymbols, state)
		}
	}
	m.mu.Unlock()

	for _, state := range restSymbols {
		result, err := m.fetcher.Fetch(ctx, state.symbol, state.interval, 1, time.Time{}, time.Time{})
		if err != nil || len(result.Candles) == 0 {
			m.mu.Lock()
			state.errorCount++
			m.mu.Unlock()
			continue
		}
		c := result.Candles[len(result.Candles)-1]

		m.mu.Lock()
		if !state.lastCandle.OpenTime.IsZero() && c.OpenTime.Before(state.lastCandle.OpenTime) {
			m.mu.Unlock()
			continue
		}
		state.lastCandle = c
		state.lastCandleAt = time.Now()
		m.mu.Unlock()
		m.callback(state.symbol, c, true, candle.SourceREST)
		_ = m.publisher.PublishLiveCandle(ctx, state.symbol, c, true, candle.SourceREST)
	}
}
