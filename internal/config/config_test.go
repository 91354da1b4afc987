package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 10, cfg.BackfillCryptoYears)
	require.Equal(t, 3, cfg.RateLimitMaxRetries)
	require.Equal(t, 60*time.Second, cfg.StreamRESTPollInterval)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SYMBOLS", "BTCUSD, ETHUSD")
	t.Setenv("BACKFILL_CRYPTO_YEARS", "5")
	t.Setenv("RATE_LIMIT_MAX_RETRIES", "7")
	t.Setenv("STREAM_FALLBACK_TIMEOUT_SEC", "45")

	cfg := Load()
	require.Equal(t, 5, cfg.BackfillCryptoYears)
	require.Equal(t, 7, cfg.RateLimitMaxRetries)
	require.Equal(t, 45*time.Second, cfg.StreamFallbackTimeout)
	require.Len(t, cfg.Symbols, 2)
	require.EqualValues(t, "BTCUSD", cfg.Symbols[0])
	require.EqualValues(t, "ETHUSD", cfg.Symbols[1])
}

func TestLoad_MalformedEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("RATE_LIMIT_MAX_RETRIES", "not-a-number")

	cfg := Load()
	require.Equal(t, 3, cfg.RateLimitMaxRetries)
}

func TestLoad_DeploymentEnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE", "binance")
	t.Setenv("WEIGHTS_FILE", "/etc/cryptorun/weights.yaml")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/cryptorun")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := Load()
	require.Equal(t, "binance", cfg.Exchange)
	require.Equal(t, "/etc/cryptorun/weights.yaml", cfg.WeightsFile)
	require.Equal(t, "postgres://localhost/cryptorun", cfg.PostgresDSN)
	require.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestDefault_ExchangeIsKraken(t *testing.T) {
	require.Equal(t, "kraken", Default().Exchange)
}
