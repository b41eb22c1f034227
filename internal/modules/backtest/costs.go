package backtest

import (
	"fmt"
	"math"

	"github.com/quantleap/quantd/internal/domain"
)

// Cash fraction spendable on a rescaled BUY. The held-back 1% absorbs the
// cost components that scale with the final notional.
const buyBudgetFraction = 0.99

// Execution is a costed fill produced by the cost model. Slippage is baked
// into ExecutedPrice; TotalCost carries all four components.
type Execution struct {
	Side          string  `json:"side"`
	Quantity      float64 `json:"quantity"`
	RawPrice      float64 `json:"raw_price"`
	ExecutedPrice float64 `json:"executed_price"`
	Notional      float64 `json:"notional"`
	Commission    float64 `json:"commission"`
	Slippage      float64 `json:"slippage"`
	SpreadCost    float64 `json:"spread_cost"`
	MarketImpact  float64 `json:"market_impact"`
	TotalCost     float64 `json:"total_cost"`
}

// CashDelta returns the signed cash movement of the fill: negative on BUY,
// positive on SELL. Slippage moves cash through the executed price; the
// other cost components are deducted on top.
func (e Execution) CashDelta() float64 {
	frictions := e.Commission + e.SpreadCost + e.MarketImpact
	if e.Side == SideBuy {
		return -(e.Quantity*e.ExecutedPrice + frictions)
	}
	return e.Quantity*e.ExecutedPrice - frictions
}

// price applies commission, slippage, spread and square-root market impact
// to a proposed (side, quantity, price) at the given market volume.
func (c CostModel) price(side string, quantity, price, volume float64) (Execution, error) {
	if quantity <= 0 {
		return Execution{}, fmt.Errorf("%w: non-positive quantity %.4f", domain.ErrValidation, quantity)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return Execution{}, fmt.Errorf("%w: invalid price %v", domain.ErrNumerical, price)
	}

	notional := quantity * price
	commission := c.FixedPerTrade + c.PctPerTrade*notional
	slippage := notional * c.SlippageBps / 1e4
	spread := notional * c.SpreadBps / 1e4

	// Square-root impact in the traded fraction of the day's volume.
	// Without volume data the term drops out.
	impact := 0.0
	if c.ImpactCoeff > 0 && volume > 0 && !math.IsNaN(volume) {
		participation := notional / (volume * price)
		impact = notional * c.ImpactCoeff * math.Sqrt(participation)
	}

	perShareSlip := slippage / quantity
	executed := price + perShareSlip
	if side == SideSell {
		executed = price - perShareSlip
	}
	if executed <= 0 {
		return Execution{}, fmt.Errorf("%w: slippage drove executed price to %.6f", domain.ErrNumerical, executed)
	}

	exec := Execution{
		Side:          side,
		Quantity:      quantity,
		RawPrice:      price,
		ExecutedPrice: executed,
		Notional:      notional,
		Commission:    commission,
		Slippage:      slippage,
		SpreadCost:    spread,
		MarketImpact:  impact,
		TotalCost:     commission + slippage + spread + impact,
	}
	if !finiteExecution(exec) {
		return Execution{}, fmt.Errorf("%w: cost model produced a non-finite fill for %s %.2f @ %.4f",
			domain.ErrNumerical, side, quantity, price)
	}
	return exec, nil
}

// Buy prices a whole-share BUY under the cash constraint. When the costed
// order overruns available cash the quantity is rescaled to the 99% cash
// budget; a fill that still cannot clear is shrunk share by share. A zero
// returned quantity means the order is skipped.
func (c CostModel) Buy(quantity, price, volume, cash float64) (Execution, error) {
	quantity = math.Floor(quantity)
	if quantity <= 0 {
		return Execution{}, nil
	}

	exec, err := c.price(SideBuy, quantity, price, volume)
	if err != nil {
		return Execution{}, err
	}

	if -exec.CashDelta() > cash {
		quantity = math.Floor(buyBudgetFraction * cash / price)
		if quantity <= 0 {
			return Execution{}, nil
		}
		exec, err = c.price(SideBuy, quantity, price, volume)
		if err != nil {
			return Execution{}, err
		}
		for quantity > 0 && -exec.CashDelta() > cash {
			quantity--
			if quantity <= 0 {
				return Execution{}, nil
			}
			exec, err = c.price(SideBuy, quantity, price, volume)
			if err != nil {
				return Execution{}, err
			}
		}
	}
	return exec, nil
}

// Sell prices a SELL clamped to the held quantity. A zero returned
// quantity means there is nothing to sell.
func (c CostModel) Sell(quantity, held, price, volume float64) (Execution, error) {
	if quantity > held {
		quantity = held
	}
	quantity = math.Floor(quantity)
	if quantity <= 0 {
		return Execution{}, nil
	}
	return c.price(SideSell, quantity, price, volume)
}

func finiteExecution(e Execution) bool {
	for _, v := range []float64{e.Quantity, e.ExecutedPrice, e.Notional, e.Commission, e.Slippage, e.SpreadCost, e.MarketImpact, e.TotalCost} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
