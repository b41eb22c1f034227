package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PricePanel is the dense 2-D market data layout consumed by the indicator
// and backtest engines: one row per date, one column per symbol, one matrix
// per OHLCV field, plus an availability bitmap. Missing cells hold NaN and
// Valid[i][j] == false; they are never zero-filled.
//
// Panels are immutable once built; windows share backing rows.
type PricePanel struct {
	Dates   []time.Time
	Symbols []string

	Open   [][]float64
	High   [][]float64
	Low    [][]float64
	Close  [][]float64
	Volume [][]float64
	Valid  [][]bool

	symbolIdx map[string]int
	dateIdx   map[time.Time]int
}

// NewPricePanel builds a panel from per-symbol bar histories. The date axis
// is the sorted union of all bar dates; each symbol's bars must already
// satisfy ValidateBars.
func NewPricePanel(history map[string][]Bar) (*PricePanel, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: empty price history", ErrDataUnavailable)
	}

	symbols := make([]string, 0, len(history))
	for sym := range history {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	dateSet := make(map[time.Time]struct{})
	for sym, bars := range history {
		if err := ValidateBars(sym, bars); err != nil {
			return nil, err
		}
		for _, b := range bars {
			dateSet[Day(b.Date)] = struct{}{}
		}
	}
	if len(dateSet) == 0 {
		return nil, fmt.Errorf("%w: no bars in price history", ErrDataUnavailable)
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	p := &PricePanel{
		Dates:     dates,
		Symbols:   symbols,
		Open:      newMatrix(len(dates), len(symbols)),
		High:      newMatrix(len(dates), len(symbols)),
		Low:       newMatrix(len(dates), len(symbols)),
		Close:     newMatrix(len(dates), len(symbols)),
		Volume:    newMatrix(len(dates), len(symbols)),
		Valid:     newBitmap(len(dates), len(symbols)),
		symbolIdx: make(map[string]int, len(symbols)),
		dateIdx:   make(map[time.Time]int, len(dates)),
	}
	for j, sym := range symbols {
		p.symbolIdx[sym] = j
	}
	for i, d := range dates {
		p.dateIdx[d] = i
	}

	for sym, bars := range history {
		j := p.symbolIdx[sym]
		for _, b := range bars {
			i := p.dateIdx[Day(b.Date)]
			p.Open[i][j] = b.Open
			p.High[i][j] = b.High
			p.Low[i][j] = b.Low
			p.Close[i][j] = b.Close
			p.Volume[i][j] = b.Volume
			p.Valid[i][j] = true
		}
	}

	return p, nil
}

func newMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	for i := range backing {
		backing[i] = math.NaN()
	}
	m := make([][]float64, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols]
	}
	return m
}

func newBitmap(rows, cols int) [][]bool {
	backing := make([]bool, rows*cols)
	m := make([][]bool, rows)
	for i := range m {
		m[i] = backing[i*cols : (i+1)*cols]
	}
	return m
}

// Len returns the number of dates on the panel axis.
func (p *PricePanel) Len() int { return len(p.Dates) }

// SymbolIndex maps a symbol to its column, false when absent.
func (p *PricePanel) SymbolIndex(symbol string) (int, bool) {
	j, ok := p.symbolIdx[symbol]
	return j, ok
}

// DateIndex maps a civil date to its row, false when absent.
func (p *PricePanel) DateIndex(date time.Time) (int, bool) {
	i, ok := p.dateIdx[Day(date)]
	return i, ok
}

// CloseAt returns the close for (date row, symbol column) and whether the
// cell is available.
func (p *PricePanel) CloseAt(i, j int) (float64, bool) {
	if i < 0 || i >= len(p.Dates) || j < 0 || j >= len(p.Symbols) {
		return math.NaN(), false
	}
	return p.Close[i][j], p.Valid[i][j]
}

// VolumeAt returns the volume for (date row, symbol column) and whether the
// cell is available.
func (p *PricePanel) VolumeAt(i, j int) (float64, bool) {
	if i < 0 || i >= len(p.Dates) || j < 0 || j >= len(p.Symbols) {
		return math.NaN(), false
	}
	return p.Volume[i][j], p.Valid[i][j]
}

// SymbolBars reconstructs the available bar history of one symbol together
// with the panel row index of every bar. Indicator kernels run on the
// compacted history and map values back through the returned indices.
func (p *PricePanel) SymbolBars(symbol string) ([]Bar, []int) {
	j, ok := p.symbolIdx[symbol]
	if !ok {
		return nil, nil
	}

	bars := make([]Bar, 0, len(p.Dates))
	rows := make([]int, 0, len(p.Dates))
	for i := range p.Dates {
		if !p.Valid[i][j] {
			continue
		}
		bars = append(bars, Bar{
			Date:   p.Dates[i],
			Open:   p.Open[i][j],
			High:   p.High[i][j],
			Low:    p.Low[i][j],
			Close:  p.Close[i][j],
			Volume: p.Volume[i][j],
		})
		rows = append(rows, i)
	}
	return bars, rows
}

// Window returns the sub-panel covering [start, end] inclusive. Rows are
// shared with the parent; panels are never mutated after construction.
func (p *PricePanel) Window(start, end time.Time) *PricePanel {
	start, end = Day(start), Day(end)

	lo := sort.Search(len(p.Dates), func(i int) bool { return !p.Dates[i].Before(start) })
	hi := sort.Search(len(p.Dates), func(i int) bool { return p.Dates[i].After(end) })
	if lo >= hi {
		return &PricePanel{Symbols: p.Symbols, symbolIdx: p.symbolIdx, dateIdx: map[time.Time]int{}}
	}

	w := &PricePanel{
		Dates:     p.Dates[lo:hi],
		Symbols:   p.Symbols,
		Open:      p.Open[lo:hi],
		High:      p.High[lo:hi],
		Low:       p.Low[lo:hi],
		Close:     p.Close[lo:hi],
		Volume:    p.Volume[lo:hi],
		Valid:     p.Valid[lo:hi],
		symbolIdx: p.symbolIdx,
		dateIdx:   make(map[time.Time]int, hi-lo),
	}
	for i, d := range w.Dates {
		w.dateIdx[d] = i
	}
	return w
}
