package breakers

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Config tunes how aggressively a Breaker trips. The zero value is not
// usable directly; callers go through New (fixed defaults) or NewWithConfig.
type Config struct {
	// ConsecutiveFailures trips the breaker immediately once reached,
	// regardless of the request volume seen in Interval.
	ConsecutiveFailures uint32
	// MinRequests is the minimum volume in Interval before FailureRatio is
	// evaluated at all; below it the breaker only watches ConsecutiveFailures.
	MinRequests uint32
	// FailureRatio trips the breaker once TotalFailures/Requests exceeds it,
	// once Requests >= MinRequests.
	FailureRatio float64
	// Interval is the rolling window gobreaker uses to accumulate Counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open before allowing a single
	// half-open probe request through.
	Timeout time.Duration
}

// DefaultConfig matches this module's original fixed thresholds: trip after
// 3 consecutive failures, or a >5% failure rate over at least 20 requests.
func DefaultConfig() Config {
	return Config{
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
	}
}

type Breaker struct{ cb *cb.CircuitBreaker }

// New builds a breaker with DefaultConfig. Kept for call sites that don't
// need per-venue or per-symbol-tier tuning.
func New(name string) *Breaker {
	return NewWithConfig(name, DefaultConfig())
}

// NewWithConfig builds a breaker whose trip thresholds come from cfg, so a
// caller can make a noisy venue or a low-liquidity symbol tolerate more
// consecutive failures before falling back, without touching this package.
func NewWithConfig(name string, cfg Config) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = cfg.Interval
	st.Timeout = cfg.Timeout
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
			return true
		}
		if counts.Requests < cfg.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > cfg.FailureRatio
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }
