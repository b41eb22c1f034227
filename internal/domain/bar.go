// Package domain provides the core market data types shared by the pricing,
// indicator, backtest and risk modules.
package domain

import (
	"fmt"
	"time"
)

// Bar is one daily OHLCV observation. Dates are civil dates stored as UTC
// midnight instants.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Validate checks the bar invariants: low <= open,close <= high and a
// non-negative volume.
func (b Bar) Validate() error {
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("%w: bar %s low %.4f above open/close", ErrValidation, b.Date.Format("2006-01-02"), b.Low)
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("%w: bar %s high %.4f below open/close", ErrValidation, b.Date.Format("2006-01-02"), b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: bar %s negative volume", ErrValidation, b.Date.Format("2006-01-02"))
	}
	return nil
}

// Day truncates a timestamp to its civil date (UTC midnight).
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ValidateBars checks per-bar invariants and the strictly increasing date
// ordering of a symbol's history.
func ValidateBars(symbol string, bars []Bar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("%w: %s bars not strictly increasing at %s", ErrValidation, symbol, b.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Closes extracts the close column from a bar sequence.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
