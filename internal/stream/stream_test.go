package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/exchange"
	"github.com/sawpanic/cryptorun/internal/exchange/fake"
	"github.com/sawpanic/cryptorun/internal/racefetch"
)

// fakeConnector is a Connector whose Connect call is fully scripted by the
// test: it can hand back a fixed sequence of candles/errors, or fail
// Connect itself.
type fakeConnector struct {
	mu         sync.Mutex
	connectErr error
	candles    []candle.Candle
	errs       []error
	closed     int
}

func (f *fakeConnector) Connect(ctx context.Context, symbol candle.Symbol, interval candle.Interval) (<-chan candle.Candle, <-chan error, func() error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, nil, nil, f.connectErr
	}

	candles := make(chan candle.Candle, len(f.candles)+1)
	errs := make(chan error, len(f.errs)+1)
	for _, c := range f.candles {
		candles <- c
	}
	for _, e := range f.errs {
		errs <- e
	}

	return candles, errs, func() error { f.mu.Lock(); f.closed++; f.mu.Unlock(); return nil }, nil
}

func collectCallbacks(n int) (Callback, func() []candle.Candle) {
	var mu sync.Mutex
	var got []candle.Candle
	done := make(chan struct{})
	var once sync.Once
	cb := func(symbol candle.Symbol, c candle.Candle, isClosed bool, source candle.StreamSource) {
		mu.Lock()
		got = append(got, c)
		count := len(got)
		mu.Unlock()
		if count >= n {
			once.Do(func() { close(done) })
		}
	}
	wait := func() []candle.Candle {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
		mu.Lock()
		defer mu.Unlock()
		return append([]candle.Candle(nil), got...)
	}
	return cb, wait
}

func TestManager_PrimarySucceedsStaysOnPrimary(t *testing.T) {
	primary := &fakeConnector{candles: []candle.Candle{{Symbol: "BTCUSD", Close: 100}}}
	secondary := &fakeConnector{}
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())

	cb, wait := collectCallbacks(1)
	m := New(primary, secondary, f, DefaultConfig(), cb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, "BTCUSD", candle.Interval1h)
	defer m.Stop()

	wait()
	source, ok := m.CurrentSource("BTCUSD")
	require.True(t, ok)
	require.Equal(t, candle.SourcePrimaryWS, source)
}

func TestManager_PrimaryConnectFailsFallsBackToSecondary(t *testing.T) {
	primary := &fakeConnector{connectErr: errors.New("primary unreachable")}
	secondary := &fakeConnector{candles: []candle.Candle{{Symbol: "BTCUSD", Close: 200}}}
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())

	cb, wait := collectCallbacks(1)
	m := New(primary, secondary, f, DefaultConfig(), cb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, "BTCUSD", candle.Interval1h)
	defer m.Stop()

	wait()
	source, ok := m.CurrentSource("BTCUSD")
	require.True(t, ok)
	require.Equal(t, candle.SourceSecondaryWS, source)
}

func TestManager_BothConnectorsFailFallsBackToREST(t *testing.T) {
	primary := &fakeConnector{connectErr: errors.New("primary unreachable")}
	secondary := &fakeConnector{connectErr: errors.New("secondary unreachable")}
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.RESTPollInterval = 50 * time.Millisecond

	cb, wait := collectCallbacks(1)
	m := New(primary, secondary, f, cfg, cb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, "BTCUSD", candle.Interval1h)
	defer m.Stop()

	wait()
	source, ok := m.CurrentSource("BTCUSD")
	require.True(t, ok)
	require.Equal(t, candle.SourceREST, source)
}

func TestManager_RepeatedErrorsDemoteFromPrimary(t *testing.T) {
	primary := &fakeConnector{errs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3")}}
	secondary := &fakeConnector{candles: []candle.Candle{{Symbol: "BTCUSD", Close: 300}}}
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.MaxErrorsBeforeFallback = 3

	cb, wait := collectCallbacks(1)
	m := New(primary, secondary, f, cfg, cb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, "BTCUSD", candle.Interval1h)
	defer m.Stop()

	wait()
	source, ok := m.CurrentSource("BTCUSD")
	require.True(t, ok)
	require.Equal(t, candle.SourceSecondaryWS, source)
}

func TestManager_RetryPrimaryReturnsToPrimary(t *testing.T) {
	primary := &fakeConnector{connectErr: errors.New("down")}
	secondary := &fakeConnector{candles: []candle.Candle{{Symbol: "BTCUSD", Close: 400}}}
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())

	cb, wait := collectCallbacks(1)
	m := New(primary, secondary, f, DefaultConfig(), cb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, "BTCUSD", candle.Interval1h)
	wait()
	defer m.Stop()

	primary.mu.Lock()
	primary.connectErr = nil
	primary.candles = []candle.Candle{{Symbol: "BTCUSD", Close: 500}}
	primary.mu.Unlock()

	m.RetryPrimary(ctx, "BTCUSD")
	time.Sleep(50 * time.Millisecond)

	source, ok := m.CurrentSource("BTCUSD")
	require.True(t, ok)
	require.Equal(t, candle.SourcePrimaryWS, source)
}

func TestManager_SourceChangeFiresBeforeNextCandle(t *testing.T) {
	primary := &fakeConnector{connectErr: errors.New("primary unreachable")}
	secondary := &fakeConnector{candles: []candle.Candle{{Symbol: "BTCUSD", Close: 200}}}
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())

	var mu sync.Mutex
	var events []string
	sawChangeFirst := make(chan struct{})
	var once sync.Once

	cb := func(symbol candle.Symbol, c candle.Candle, isClosed bool, source candle.StreamSource) {
		mu.Lock()
		events = append(events, "candle:"+string(source))
		mu.Unlock()
	}
	sourceChange := func(symbol candle.Symbol, from, to candle.StreamSource) {
		mu.Lock()
		events = append(events, "change:"+string(from)+"->"+string(to))
		mu.Unlock()
		once.Do(func() { close(sawChangeFirst) })
	}

	m := New(primary, secondary, f, DefaultConfig(), cb, zerolog.Nop(), WithSourceChangeCallback(sourceChange))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx, "BTCUSD", candle.Interval1h)
	defer m.Stop()

	select {
	case <-sawChangeFirst:
	case <-time.After(2 * time.Second):
		t.Fatal("source-change event never fired")
	}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	require.Equal(t, "change:primary_ws->secondary_ws", events[0])
	for _, e := range events[1:] {
		require.NotEqual(t, "change:primary_ws->secondary_ws", e, "source-change event should only fire once per transition")
	}
}

func TestManager_StopIsIdempotentAndClosesConnections(t *testing.T) {
	primary := &fakeConnector{candles: []candle.Candle{{Symbol: "BTCUSD", Close: 100}}}
	secondary := &fakeConnector{}
	adapter := fake.New("fake", 1)
	f := racefetch.New([]exchange.Exchange{adapter}, zerolog.Nop())

	cb, wait := collectCallbacks(1)
	m := New(primary, secondary, f, DefaultConfig(), cb, zerolog.Nop())

	ctx := context.Background()
	m.Start(ctx, "BTCUSD", candle.Interval1h)
	wait()

	m.Stop()
	m.Stop()

	primary.mu.Lock()
	defer primary.mu.Unlock()
	require.GreaterOrEqual(t, primary.closed, 1)
}
