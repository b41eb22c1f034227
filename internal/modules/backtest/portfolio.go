package backtest

import (
	"sort"
	"time"
)

// Portfolio is the mutable run state: cash plus open long positions. A run
// owns its portfolio exclusively; nothing here is safe for concurrent use.
type Portfolio struct {
	cash      float64
	positions map[string]*Position
}

// NewPortfolio starts a portfolio with the given cash and no positions.
func NewPortfolio(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]*Position),
	}
}

// Cash returns the free cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// Position returns the open position in symbol, nil when flat.
func (p *Portfolio) Position(symbol string) *Position {
	return p.positions[symbol]
}

// OpenCount returns the number of open positions.
func (p *Portfolio) OpenCount() int { return len(p.positions) }

// PositionsValue returns the marked value of all open positions.
func (p *Portfolio) PositionsValue() float64 {
	total := 0.0
	for _, pos := range p.positions {
		total += pos.MarketValue
	}
	return total
}

// TotalValue returns cash plus marked positions.
func (p *Portfolio) TotalValue() float64 {
	return p.cash + p.PositionsValue()
}

// SectorValue sums the marked value of open positions whose symbol carries
// the given sector label.
func (p *Portfolio) SectorValue(sectors map[string]string, sector string) float64 {
	total := 0.0
	for sym, pos := range p.positions {
		if sectors[sym] == sector {
			total += pos.MarketValue
		}
	}
	return total
}

// ApplyBuy books a costed BUY fill: cash out, position opened or extended.
// Adding to an existing position moves the entry price to the
// weighted-average cost. The position is marked at the fill's raw price so
// portfolio value stays consistent for later orders on the same day.
func (p *Portfolio) ApplyBuy(symbol string, exec Execution, date time.Time) {
	p.cash += exec.CashDelta()

	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{
			Symbol:     symbol,
			Quantity:   exec.Quantity,
			EntryPrice: exec.ExecutedPrice,
			EntryDate:  date,
		}
		p.positions[symbol] = pos
	} else {
		total := pos.Quantity + exec.Quantity
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + exec.ExecutedPrice*exec.Quantity) / total
		pos.Quantity = total
	}

	pos.CurrentPrice = exec.RawPrice
	pos.MarketValue = pos.Quantity * exec.RawPrice
	pos.UnrealizedPnL = (exec.RawPrice - pos.EntryPrice) * pos.Quantity
}

// ApplySell books a costed SELL fill: cash in, position reduced or closed.
// A partial reduction leaves the entry price of the residual untouched.
// Returns the realized PnL and fractional return of the sold quantity.
func (p *Portfolio) ApplySell(symbol string, exec Execution) (pnl, returnPct float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		return 0, 0
	}

	p.cash += exec.CashDelta()

	pnl = (exec.ExecutedPrice - pos.EntryPrice) * exec.Quantity
	if pos.EntryPrice != 0 {
		returnPct = (exec.ExecutedPrice - pos.EntryPrice) / pos.EntryPrice
	}

	pos.Quantity -= exec.Quantity
	if pos.Quantity <= 0 {
		delete(p.positions, symbol)
		return pnl, returnPct
	}
	pos.CurrentPrice = exec.RawPrice
	pos.MarketValue = pos.Quantity * exec.RawPrice
	pos.UnrealizedPnL = (exec.RawPrice - pos.EntryPrice) * pos.Quantity
	return pnl, returnPct
}

// Mark re-prices one open position. No-op when flat in the symbol.
func (p *Portfolio) Mark(symbol string, price float64) {
	pos, ok := p.positions[symbol]
	if !ok {
		return
	}
	pos.CurrentPrice = price
	pos.MarketValue = pos.Quantity * price
	pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
}

// Remark refreshes market values from current prices and recomputes
// position weights against total portfolio value.
func (p *Portfolio) Remark() {
	for _, pos := range p.positions {
		pos.MarketValue = pos.Quantity * pos.CurrentPrice
		pos.UnrealizedPnL = (pos.CurrentPrice - pos.EntryPrice) * pos.Quantity
	}
	total := p.TotalValue()
	for _, pos := range p.positions {
		if total > 0 {
			pos.Weight = pos.MarketValue / total
		} else {
			pos.Weight = 0
		}
	}
}

// Age advances every open position's holding-day counter by one trading
// day.
func (p *Portfolio) Age() {
	for _, pos := range p.positions {
		pos.HoldingDays++
	}
}

// Snapshot copies the open positions, sorted by symbol.
func (p *Portfolio) Snapshot() []Position {
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
