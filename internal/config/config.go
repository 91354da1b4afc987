// Package config loads process configuration from environment variables,
// following the teacher's override-then-default idiom
// (db.applyEnvOverrides / db.LoadAppConfig): every field has a documented
// default, and a present environment variable always wins.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sawpanic/cryptorun/internal/candle"
)

// Config is the single process-wide configuration surface, with one
// field per recognized environment variable.
type Config struct {
	Symbols []candle.Symbol

	BackfillCryptoYears int
	BackfillIntervals   []candle.Interval
	BackfillMarkerPath  string

	FetchTimeout time.Duration

	RateLimitBaseDelay  time.Duration
	RateLimitMaxDelay   time.Duration
	RateLimitMaxRetries int

	StreamFallbackTimeout         time.Duration
	StreamMaxErrorsBeforeFallback int
	StreamRESTPollInterval        time.Duration

	Exchange    string // primary venue adapter name: kraken, binance, coinbase, okx, bybit, kucoin
	WeightsFile string // optional YAML scoring-weight override, see LoadWeightsFile
	PostgresDSN string // candlestore backing store; empty disables persistence
	RedisAddr   string // shared provider response cache; empty keeps caching in-process
}

// Default returns the documented defaults for every field.
func Default() Config {
	return Config{
		Symbols:             nil,
		BackfillCryptoYears: 10,
		BackfillIntervals:   []candle.Interval{candle.Interval1d, candle.Interval4h, candle.Interval1h},
		BackfillMarkerPath:  "",
		FetchTimeout:        10 * time.Second,
		RateLimitBaseDelay:  5 * time.Second,
		RateLimitMaxDelay:   60 * time.Second,
		RateLimitMaxRetries: 3,

		StreamFallbackTimeout:         30 * time.Second,
		StreamMaxErrorsBeforeFallback: 3,
		StreamRESTPollInterval:        60 * time.Second,

		Exchange: "kraken",
	}
}

// Load reads Config from the environment, applying defaults for any
// variable that is absent or malformed.
func Load() Config {
	cfg := Default()

	if v := os.Getenv("SYMBOLS"); v != "" {
		cfg.Symbols = parseSymbols(v)
	}
	if v, ok := envInt("BACKFILL_CRYPTO_YEARS"); ok {
		cfg.BackfillCryptoYears = v
	}
	if v := os.Getenv("BACKFILL_INTERVALS"); v != "" {
		cfg.BackfillIntervals = parseIntervals(v)
	}
	if v := os.Getenv("BACKFILL_MARKER_PATH"); v != "" {
		cfg.BackfillMarkerPath = v
	}
	if v, ok := envSeconds("FETCH_TIMEOUT_SEC"); ok {
		cfg.FetchTimeout = v
	}
	if v, ok := envSeconds("RATE_LIMIT_BASE_DELAY_SEC"); ok {
		cfg.RateLimitBaseDelay = v
	}
	if v, ok := envSeconds("RATE_LIMIT_MAX_DELAY_SEC"); ok {
		cfg.RateLimitMaxDelay = v
	}
	if v, ok := envInt("RATE_LIMIT_MAX_RETRIES"); ok {
		cfg.RateLimitMaxRetries = v
	}
	if v, ok := envSeconds("STREAM_FALLBACK_TIMEOUT_SEC"); ok {
		cfg.StreamFallbackTimeout = v
	}
	if v, ok := envInt("STREAM_MAX_ERRORS_BEFORE_FALLBACK"); ok {
		cfg.StreamMaxErrorsBeforeFallback = v
	}
	if v, ok := envSeconds("STREAM_REST_POLL_INTERVAL_SEC"); ok {
		cfg.StreamRESTPollInterval = v
	}
	if v := os.Getenv("EXCHANGE"); v != "" {
		cfg.Exchange = v
	}
	if v := os.Getenv("WEIGHTS_FILE"); v != "" {
		cfg.WeightsFile = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}

	return cfg
}

func parseSymbols(v string) []candle.Symbol {
	parts := strings.Split(v, ",")
	out := make([]candle.Symbol, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, candle.Symbol(p))
		}
	}
	return out
}

func parseIntervals(v string) []candle.Interval {
	parts := strings.Split(v, ",")
	out := make([]candle.Interval, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, candle.Interval(p))
		}
	}
	return out
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envSeconds(name string) (time.Duration, bool) {
	n, ok := envInt(name)
	if !ok {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
