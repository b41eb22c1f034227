package domain

import (
	"context"
	"time"
)

// MarketDataSource supplies historical market data to the engine. The engine
// never fetches on its own; callers inject an implementation (the sqlite
// store, the synthetic generator, or a real fetcher living outside this
// repository). Calls carry a context so per-call deadlines apply.
type MarketDataSource interface {
	// FetchPrices returns daily OHLCV bars for the symbols over [start, end]
	// assembled into a PricePanel. Symbols with no data are absent from the
	// panel rather than zero-filled.
	FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*PricePanel, error)

	// FetchBenchmarkReturns returns the benchmark's daily return series over
	// [start, end], aligned to its own trading calendar.
	FetchBenchmarkReturns(ctx context.Context, benchmark string, start, end time.Time) ([]float64, error)

	// FetchRiskFreeRate returns the daily annualized risk-free rate series
	// over [start, end].
	FetchRiskFreeRate(ctx context.Context, source string, start, end time.Time) ([]float64, error)

	// FetchOptionsChain returns the option contracts listed on the symbol,
	// optionally filtered to one expiry.
	FetchOptionsChain(ctx context.Context, symbol string, expiry *time.Time) ([]OptionContract, error)
}

// Clock abstracts "today" so runs are reproducible in tests.
type Clock interface {
	Today() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Today returns the current civil date in UTC.
func (SystemClock) Today() time.Time { return Day(time.Now()) }

// OptionContract identifies a listed option.
type OptionContract struct {
	Underlying string      `json:"underlying"`
	Strike     float64     `json:"strike"`
	Expiry     time.Time   `json:"expiry"`
	Type       OptionType  `json:"type"`
	Style      OptionStyle `json:"style"`
}

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// OptionStyle distinguishes exercise styles.
type OptionStyle string

const (
	StyleAmerican OptionStyle = "AMERICAN"
	StyleEuropean OptionStyle = "EUROPEAN"
)
