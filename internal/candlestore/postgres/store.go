// Package postgres implements candlestore.Store against PostgreSQL via
// sqlx and lib/pq, following the teacher's trades repository conventions:
// per-call context timeouts and prepared statements for batch writes.
// Conflicts are resolved by the upsert statement itself; driver errors are
// wrapped and returned without inspecting pq.Error codes.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/cryptorun/internal/candle"
)

// Config holds connection-pool tuning, mirroring the teacher's db.Config.
type Config struct {
	DSN             string        `yaml:"dsn" env:"PG_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"PG_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"PG_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"PG_CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `yaml:"query_timeout" env:"PG_QUERY_TIMEOUT"`
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		QueryTimeout:    30 * time.Second,
	}
}

// Store implements candlestore.Store against a live Postgres connection.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres and applies the configured pool limits. The
// caller owns the returned *Store and must call Close when done; the
// orchestrator uses short sessions per cell, never a long-lived transaction.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("candlestore: DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("candlestore: open: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("candlestore: ping: %w", err)
	}

	return &Store{db: db, timeout: cfg.QueryTimeout}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertCandles writes rows keyed on (exchange, symbol, interval,
// timestamp); on conflict it replaces price/volume/loaded_at so a re-run
// never duplicates and always promotes to the most recent snapshot.
func (s *Store) UpsertCandles(ctx context.Context, exchangeName string, symbol candle.Symbol, interval candle.Interval, rows []candle.Candle) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("candlestore: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO candles (exchange, symbol, interval, timestamp, open, high, low, close, volume, loaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (exchange, symbol, interval, timestamp)
		DO UPDATE SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume, loaded_at = EXCLUDED.loaded_at`)
	if err != nil {
		return 0, fmt.Errorf("candlestore: prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, c := range rows {
		if _, err := stmt.ExecContext(ctx, exchangeName, string(symbol), string(interval),
			c.OpenTime.UnixMilli(), c.Open, c.High, c.Low, c.Close, c.Volume, now); err != nil {
			return 0, fmt.Errorf("candlestore: upsert row at %s: %w", c.OpenTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("candlestore: commit: %w", err)
	}
	return len(rows), nil
}

func (s *Store) MinMaxTimestamp(ctx context.Context, symbol candle.Symbol, interval candle.Interval) (time.Time, time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var minMs, maxMs *int64
	err := s.db.QueryRowxContext(ctx, `
		SELECT MIN(timestamp), MAX(timestamp) FROM candles
		WHERE symbol = $1 AND interval = $2`, string(symbol), string(interval)).Scan(&minMs, &maxMs)
	if err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("candlestore: min_max_timestamp: %w", err)
	}
	if minMs == nil || maxMs == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return time.UnixMilli(*minMs).UTC(), time.UnixMilli(*maxMs).UTC(), true, nil
}

func (s *Store) CountInRange(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var count int
	err := s.db.QueryRowxContext(ctx, `
		SELECT COUNT(*) FROM candles
		WHERE symbol = $1 AND interval = $2 AND timestamp >= $3 AND timestamp < $4`,
		string(symbol), string(interval), start.UnixMilli(), end.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("candlestore: count_in_range: %w", err)
	}
	return count, nil
}

func (s *Store) OrderedTimestamps(ctx context.Context, symbol candle.Symbol, interval candle.Interval, start, end time.Time) ([]time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, `
		SELECT timestamp FROM candles
		WHERE symbol = $1 AND interval = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC`, string(symbol), string(interval), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("candlestore: ordered_timestamps: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("candlestore: scan timestamp: %w", err)
		}
		out = append(out, time.UnixMilli(ms).UTC())
	}
	return out, rows.Err()
}
