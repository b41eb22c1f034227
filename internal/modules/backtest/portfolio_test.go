package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyFill(qty, price float64) Execution {
	return Execution{Side: SideBuy, Quantity: qty, RawPrice: price, ExecutedPrice: price}
}

func sellFill(qty, price float64) Execution {
	return Execution{Side: SideSell, Quantity: qty, RawPrice: price, ExecutedPrice: price}
}

func TestPortfolio_BuySellRoundTrip(t *testing.T) {
	pf := NewPortfolio(10_000)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	pf.ApplyBuy("AAPL", buyFill(10, 100), day)
	require.Equal(t, 9_000.0, pf.Cash())
	require.Equal(t, 1, pf.OpenCount())

	pos := pf.Position("AAPL")
	require.NotNil(t, pos)
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, day, pos.EntryDate)
	// A frictionless buy conserves portfolio value immediately.
	assert.Equal(t, 1_000.0, pos.MarketValue)
	assert.Equal(t, 10_000.0, pf.TotalValue())

	pnl, returnPct := pf.ApplySell("AAPL", sellFill(10, 110))
	assert.InDelta(t, 100.0, pnl, 1e-12)
	assert.InDelta(t, 0.10, returnPct, 1e-12)
	assert.Equal(t, 10_100.0, pf.Cash())
	assert.Nil(t, pf.Position("AAPL"))
}

func TestPortfolio_AddAveragesEntry(t *testing.T) {
	pf := NewPortfolio(10_000)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	pf.ApplyBuy("MSFT", buyFill(10, 100), day)
	pf.ApplyBuy("MSFT", buyFill(10, 110), day.AddDate(0, 0, 1))

	pos := pf.Position("MSFT")
	require.NotNil(t, pos)
	assert.Equal(t, 20.0, pos.Quantity)
	assert.InDelta(t, 105.0, pos.EntryPrice, 1e-12)
	// The original entry date survives the add.
	assert.Equal(t, day, pos.EntryDate)
}

func TestPortfolio_PartialSellKeepsEntry(t *testing.T) {
	pf := NewPortfolio(10_000)
	pf.ApplyBuy("SPY", buyFill(20, 50), time.Now())

	pnl, _ := pf.ApplySell("SPY", sellFill(5, 60))
	assert.InDelta(t, 50.0, pnl, 1e-12)

	pos := pf.Position("SPY")
	require.NotNil(t, pos)
	assert.Equal(t, 15.0, pos.Quantity)
	assert.Equal(t, 50.0, pos.EntryPrice)
}

func TestPortfolio_MarkAndWeights(t *testing.T) {
	pf := NewPortfolio(1_000)
	now := time.Now()
	pf.ApplyBuy("A", buyFill(5, 100), now) // 500 out
	pf.ApplyBuy("B", buyFill(5, 50), now)  // 250 out

	pf.Mark("A", 120)
	pf.Mark("B", 50)
	pf.Remark()

	// cash 250 + A 600 + B 250 = 1100
	assert.InDelta(t, 1_100.0, pf.TotalValue(), 1e-12)

	a := pf.Position("A")
	require.NotNil(t, a)
	assert.InDelta(t, 600.0, a.MarketValue, 1e-12)
	assert.InDelta(t, 100.0, a.UnrealizedPnL, 1e-12)
	assert.InDelta(t, 600.0/1_100.0, a.Weight, 1e-12)
}

func TestPortfolio_AgeCountsTradingDays(t *testing.T) {
	pf := NewPortfolio(1_000)
	pf.ApplyBuy("A", buyFill(1, 100), time.Now())

	pf.Age()
	pf.Age()
	pf.Age()

	assert.Equal(t, 3, pf.Position("A").HoldingDays)
}

func TestPortfolio_SnapshotSortedCopies(t *testing.T) {
	pf := NewPortfolio(1_000)
	now := time.Now()
	pf.ApplyBuy("ZM", buyFill(1, 10), now)
	pf.ApplyBuy("AA", buyFill(1, 10), now)

	snap := pf.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "AA", snap[0].Symbol)
	assert.Equal(t, "ZM", snap[1].Symbol)

	// Mutating the snapshot leaves the live position untouched.
	snap[0].Quantity = 99
	assert.Equal(t, 1.0, pf.Position("AA").Quantity)
}

func TestPortfolio_SellUnknownSymbolIsNoop(t *testing.T) {
	pf := NewPortfolio(500)
	pnl, returnPct := pf.ApplySell("GONE", sellFill(10, 10))
	assert.Equal(t, 0.0, pnl)
	assert.Equal(t, 0.0, returnPct)
	assert.Equal(t, 500.0, pf.Cash())
}
