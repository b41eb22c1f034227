// Package indicators computes the standard technical indicator set over
// OHLCV bar histories, with a sqlite-backed cache keyed by the content of
// the input bars.
package indicators

import (
	"math"
	"time"

	"github.com/quantleap/quantd/internal/domain"
)

// Indicator names as referenced by signal rules and API clients. Close is
// the raw close itself, included so rules can compare price against a
// moving average through the reference mechanism.
const (
	Close      = "close"
	SMA5       = "sma_5"
	SMA20      = "sma_20"
	SMA50      = "sma_50"
	SMA200     = "sma_200"
	EMA12      = "ema_12"
	EMA26      = "ema_26"
	RSI14      = "rsi_14"
	MACD       = "macd"
	MACDSignal = "macd_signal"
	MACDHist   = "macd_hist"
	BBUpper    = "bb_upper"
	BBMiddle   = "bb_middle"
	BBLower    = "bb_lower"
	ATR14      = "atr_14"
	StochK     = "stoch_k"
	StochD     = "stoch_d"
	OBV        = "obv"
	ADX14      = "adx_14"
)

// AllIndicators returns the indicator names in canonical order.
func AllIndicators() []string {
	return []string{
		Close,
		SMA5, SMA20, SMA50, SMA200,
		EMA12, EMA26,
		RSI14,
		MACD, MACDSignal, MACDHist,
		BBUpper, BBMiddle, BBLower,
		ATR14,
		StochK, StochD,
		OBV,
		ADX14,
	}
}

// IndicatorSet holds every computed series for one symbol, keyed by
// indicator name. All series share the symbol's bar axis.
type IndicatorSet map[string]domain.Series

// At returns the named indicator's value at index i. Unknown names and
// warm-up or missing samples are unavailable.
func (set IndicatorSet) At(name string, i int) (float64, bool) {
	series, ok := set[name]
	if !ok {
		return math.NaN(), false
	}
	return series.At(i)
}

// IndicatorPanel aligns per-symbol indicator sets to a shared panel date
// axis. Rows where a symbol has no bar are unavailable.
type IndicatorPanel struct {
	Dates   []time.Time             `json:"dates"`
	Symbols []string                `json:"symbols"`
	Sets    map[string]IndicatorSet `json:"sets"`
}
