package testing

import (
	"math"
	"time"

	"github.com/quantleap/quantd/internal/domain"
)

// FixtureStart is the first bar date used by the fixture generators.
var FixtureStart = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

// BarsFromCloses builds a valid daily bar sequence from explicit closes.
// Opens track the prior close; highs and lows pad the open/close range by
// one percent so every bar satisfies the OHLC invariants.
func BarsFromCloses(start time.Time, closes []float64, volume float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		open := prev
		high := math.Max(open, c) * 1.01
		low := math.Min(open, c) * 0.99
		bars[i] = domain.Bar{
			Date:   domain.Day(start.AddDate(0, 0, i)),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  c,
			Volume: volume,
		}
		prev = c
	}
	return bars
}

// TrendBars returns n daily bars whose closes rise linearly from base by
// step per day. Useful where tests need hand-checkable moving averages.
func TrendBars(start time.Time, n int, base, step float64) []domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + float64(i)*step
	}
	return BarsFromCloses(start, closes, 1000)
}

// WaveBars returns n daily bars whose closes oscillate sinusoidally around
// base, giving indicator tests both gains and losses.
func WaveBars(start time.Time, n int, base, amplitude float64, period int) []domain.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + amplitude*math.Sin(2*math.Pi*float64(i)/float64(period))
	}
	return BarsFromCloses(start, closes, 1000)
}

// FlatBars returns n daily bars pinned at the given price. Degenerate by
// construction; used to exercise zero-range edge cases.
func FlatBars(start time.Time, n int, price float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Date:   domain.Day(start.AddDate(0, 0, i)),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}

// History builds a per-symbol bar map from equal-length close slices, all
// sharing one date axis. Handy for panel construction in tests.
func History(start time.Time, closes map[string][]float64) map[string][]domain.Bar {
	history := make(map[string][]domain.Bar, len(closes))
	for symbol, cs := range closes {
		history[symbol] = BarsFromCloses(start, cs, 1000)
	}
	return history
}
