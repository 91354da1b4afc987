package candle

import "fmt"

// UnsupportedIntervalError is returned when an adapter is asked for a
// resolution it cannot serve.
type UnsupportedIntervalError struct {
	Venue    string
	Interval Interval
}

func (e *UnsupportedIntervalError) Error() string {
	return fmt.Sprintf("%s: unsupported interval %q", e.Venue, e.Interval)
}

// RateLimitedError signals a provider-side throttle; it is always treated
// as retryable, and RetryAfter carries the provider's guidance when known.
type RateLimitedError struct {
	Venue      string
	RetryAfter int // seconds, 0 if unknown
	Cause      error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: rate limited", e.Venue)
}

func (e *RateLimitedError) Unwrap() error { return e.Cause }

// TransportError wraps a network-level failure (dial, timeout, reset).
type TransportError struct {
	Venue string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Venue, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ParseError signals malformed or unexpected response payloads.
type ParseError struct {
	Venue string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse error: %v", e.Venue, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// AllExchangesFailedError is returned by the race fetcher when no adapter
// in the race produced a non-empty result (each failed or returned
// nothing). A short result below the minimum count is returned instead of
// this error.
type AllExchangesFailedError struct {
	Symbol   Symbol
	Interval Interval
	Errors   map[string]error
}

func (e *AllExchangesFailedError) Error() string {
	return fmt.Sprintf("all exchanges failed for %s/%s (%d attempts)", e.Symbol, e.Interval, len(e.Errors))
}

// BackfillCellFailedError reports a single symbol/interval cell that could
// not be backfilled after retries.
type BackfillCellFailedError struct {
	Symbol   Symbol
	Interval Interval
	Cause    error
}

func (e *BackfillCellFailedError) Error() string {
	return fmt.Sprintf("backfill cell %s/%s failed: %v", e.Symbol, e.Interval, e.Cause)
}

func (e *BackfillCellFailedError) Unwrap() error { return e.Cause }

// BackfillFailedError aggregates one or more failed cells from a run that
// does not satisfy the all-or-fail completion contract.
type BackfillFailedError struct {
	Failed []BackfillCellFailedError
}

func (e *BackfillFailedError) Error() string {
	return fmt.Sprintf("backfill incomplete: %d cells failed", len(e.Failed))
}
