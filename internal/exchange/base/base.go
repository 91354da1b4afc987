// Package base factors out the guard wiring and health bookkeeping common
// to every REST-based venue adapter, so each venue package only has to
// supply its URL construction and response parsing.
package base

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sawpanic/cryptorun/internal/candle"
	"github.com/sawpanic/cryptorun/internal/exchange"
	"github.com/sawpanic/cryptorun/internal/guard"
	"github.com/sawpanic/cryptorun/internal/metrics"
)

// Client wraps a guard.ProviderGuard with the per-adapter health tracking
// every venue adapter in this module needs.
type Client struct {
	Venue   string
	Guard   *guard.ProviderGuard
	HTTP    *http.Client
	metrics *metrics.Registry

	mu              sync.Mutex
	lastSuccess     time.Time
	lastFailure     time.Time
	requests        int64
	errors          int64
	totalLatencySum time.Duration
}

// Config tunes the guard underneath a Client; each venue picks values
// matching its own published rate limits.
type Config struct {
	Venue          string
	TTLSeconds     int
	BurstLimit     int
	SustainedRate  float64
	MaxRetries     int
	BackoffBaseMs  int
	FailureThresh  float64
	WindowRequests int
	ProbeInterval  int
	Timeout        time.Duration
	RedisAddr      string // if set, this venue's cached responses are shared via redis
	Metrics        *metrics.Registry
}

// New builds a Client from Config, defaulting Timeout to 10s.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	g := guard.NewProviderGuard(guard.ProviderConfig{
		Name:           cfg.Venue,
		TTLSeconds:     cfg.TTLSeconds,
		BurstLimit:     cfg.BurstLimit,
		SustainedRate:  cfg.SustainedRate,
		MaxRetries:     cfg.MaxRetries,
		BackoffBaseMs:  cfg.BackoffBaseMs,
		FailureThresh:  cfg.FailureThresh,
		WindowRequests: cfg.WindowRequests,
		ProbeInterval:  cfg.ProbeInterval,
		RedisAddr:      cfg.RedisAddr,
	})
	if cfg.Metrics != nil {
		g.AttachMetrics(cfg.Metrics)
	}
	return &Client{
		Venue:   cfg.Venue,
		Guard:   g,
		HTTP:    &http.Client{Timeout: timeout},
		metrics: cfg.Metrics,
	}
}

// Fetch issues req through the client's guard and returns the raw body.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req := guard.GuardedRequest{
		Method:   http.MethodGet,
		URL:      url,
		CacheKey: c.Guard.Cache().GenerateCacheKey(http.MethodGet, url, nil, nil),
	}

	start := time.Now()
	resp, err := c.Guard.Execute(ctx, req, c.httpFetch)
	c.recordLatency(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) httpFetch(ctx context.Context, req guard.GuardedRequest) (*guard.GuardedResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &guard.GuardedResponse{
		Data:       body,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
	}, nil
}

// WrapFetchError classifies an error returned by Fetch into the candle
// package's distinguishable error types. A guard.ProviderError carrying
// StatusCode 429 — including one surfaced only after the guard exhausted
// its retries — becomes a candle.RateLimitedError so callers can treat it
// differently from a bare transport failure; everything else becomes a
// candle.TransportError.
func (c *Client) WrapFetchError(err error) error {
	if err == nil {
		return nil
	}
	var perr *guard.ProviderError
	if errors.As(err, &perr) && perr.StatusCode == http.StatusTooManyRequests {
		return &candle.RateLimitedError{Venue: c.Venue, RetryAfter: int(perr.RetryAfter.Seconds()), Cause: err}
	}
	return &candle.TransportError{Venue: c.Venue, Cause: err}
}

func (c *Client) recordLatency(d time.Duration, err error) {
	c.mu.Lock()
	c.requests++
	c.totalLatencySum += d
	outcome := "success"
	if err != nil {
		c.errors++
		c.lastFailure = time.Now()
		outcome = "error"
	} else {
		c.lastSuccess = time.Now()
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.AdapterRequests.WithLabelValues(c.Venue, outcome).Inc()
		c.metrics.AdapterLatency.WithLabelValues(c.Venue).Observe(d.Seconds())
	}
}

// GuardMetrics returns the underlying guard's request telemetry snapshot,
// for callers reporting per-venue cache/retry/backoff counts (the health
// command's CSV export) beyond the trimmed view in HealthStatus.
func (c *Client) GuardMetrics() guard.TelemetryMetrics {
	return c.Guard.Metrics()
}

// Close releases the client's pooled idle HTTP connections. It does not
// interrupt in-flight requests; callers use it once at shutdown.
func (c *Client) Close() error {
	c.HTTP.CloseIdleConnections()
	return nil
}

// Health reports the client's accumulated error rate and latency,
// incorporating the underlying guard's circuit state.
func (c *Client) Health() exchange.HealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errRate float64
	var avgLatency time.Duration
	if c.requests > 0 {
		errRate = float64(c.errors) / float64(c.requests)
		avgLatency = c.totalLatencySum / time.Duration(c.requests)
	}

	guardHealth := c.Guard.Health()
	return exchange.HealthStatus{
		Venue:             c.Venue,
		Healthy:           errRate < 0.5 && !guardHealth.CircuitOpen,
		ErrorRate:         errRate,
		AvgLatency:        avgLatency,
		LastSuccess:       c.lastSuccess,
		LastFailure:       c.lastFailure,
		RateLimitHeadroom: guardHealth.RateLimitHeadroom,
	}
}
