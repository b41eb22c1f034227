package backtest

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantleap/quantd/pkg/formulas"
)

// Sizing parameters.
const (
	volLookback    = 60   // trailing returns for realized volatility
	volSizeMin     = 0.01 // VOLATILITY_NORMALIZED clamp floor
	volSizeMax     = 0.25 // VOLATILITY_NORMALIZED clamp ceiling
	kellyLookback  = 252  // trailing trading days of closed trades
	kellyFraction  = 0.25 // fractional Kelly multiplier
	kellySizeMin   = 0.01
	kellySizeMax   = 0.15
	fixedDollarCap = 0.20
	riskParityTol  = 1e-6
	riskParityIter = 100
	// Common return rows needed for a covariance estimate; below this the
	// parity sizer falls back to the default fraction.
	riskParityMinSamples = 20
)

// ClosedTrade is one realized round-trip outcome, tagged with the panel
// row it closed on so sizing can window the trade history in trading days.
type ClosedTrade struct {
	Row       int
	ReturnPct float64
}

// Sizer turns a strategy's sizing method into target portfolio fractions.
// All lookbacks read the window-aligned close matrix through the decision
// row only.
type Sizer struct {
	strategy TradingStrategy
	closes   map[string][]float64
}

// NewSizer builds a sizer over window-aligned per-symbol closes (NaN where
// a symbol has no bar).
func NewSizer(strategy TradingStrategy, closes map[string][]float64) *Sizer {
	return &Sizer{strategy: strategy, closes: closes}
}

// Fraction returns the target fraction of portfolio value for a new entry
// in symbol, decided at row. The result is capped at the strategy's max
// position size and never negative. Degenerate inputs resolve to the 10%
// default rather than erroring; sizing is advisory, execution enforces
// cash.
func (s *Sizer) Fraction(symbol string, row int, portfolioValue float64, held []string, closed []ClosedTrade) float64 {
	var fraction float64
	switch s.strategy.SizingMethod {
	case SizingVolNormalized:
		fraction = s.volatilityNormalized(symbol, row)
	case SizingKelly:
		fraction = s.kelly(row, closed)
	case SizingFixedDollar:
		fraction = s.fixedDollar(portfolioValue)
	case SizingRiskParity:
		fraction = s.riskParity(symbol, row, held)
	default:
		fraction = defaultPositionFraction
	}

	if math.IsNaN(fraction) || fraction < 0 {
		fraction = defaultPositionFraction
	}
	if fraction > s.strategy.MaxPositionSize {
		fraction = s.strategy.MaxPositionSize
	}
	return fraction
}

// trailingReturns collects up to max daily returns for symbol ending at
// row, skipping gaps in the close series. Newest return last.
func (s *Sizer) trailingReturns(symbol string, row, max int) []float64 {
	closes, ok := s.closes[symbol]
	if !ok || row >= len(closes) {
		return nil
	}

	// Gather max+1 valid closes walking backwards, then difference.
	prices := make([]float64, 0, max+1)
	for i := row; i >= 0 && len(prices) < max+1; i-- {
		if !math.IsNaN(closes[i]) {
			prices = append(prices, closes[i])
		}
	}
	if len(prices) < 2 {
		return nil
	}
	// Reverse into chronological order.
	for l, r := 0, len(prices)-1; l < r; l, r = l+1, r-1 {
		prices[l], prices[r] = prices[r], prices[l]
	}
	return formulas.CalculateReturns(prices)
}

// volatilityNormalized scales inversely with the symbol's realized 60-day
// annualized volatility toward the strategy's target volatility.
func (s *Sizer) volatilityNormalized(symbol string, row int) float64 {
	returns := s.trailingReturns(symbol, row, volLookback)
	if len(returns) < volLookback {
		return defaultPositionFraction
	}
	annVol := formulas.AnnualizedVolatility(returns)
	if annVol <= 0 || math.IsNaN(annVol) {
		return defaultPositionFraction
	}
	return clampFraction(s.strategy.TargetVolatility/annVol, volSizeMin, volSizeMax)
}

// kelly derives a fractional Kelly bet from the realized trades of the
// trailing 252 trading days. Needs both winners and losers; otherwise the
// edge is undefined and the default applies.
func (s *Sizer) kelly(row int, closed []ClosedTrade) float64 {
	var wins, losses []float64
	for _, t := range closed {
		if t.Row < row-kellyLookback || t.Row > row {
			continue
		}
		if t.ReturnPct > 0 {
			wins = append(wins, t.ReturnPct)
		} else if t.ReturnPct < 0 {
			losses = append(losses, -t.ReturnPct)
		}
	}
	if len(wins) == 0 || len(losses) == 0 {
		return defaultPositionFraction
	}

	p := float64(len(wins)) / float64(len(wins)+len(losses))
	avgWin := formulas.Mean(wins)
	avgLoss := formulas.Mean(losses)
	if avgLoss <= 0 || avgWin <= 0 {
		return defaultPositionFraction
	}

	b := avgWin / avgLoss
	f := (b*p - (1 - p)) / b
	return clampFraction(f*kellyFraction, kellySizeMin, kellySizeMax)
}

// fixedDollar converts the strategy's dollar amount to a fraction of the
// current portfolio value, never more than 20%.
func (s *Sizer) fixedDollar(portfolioValue float64) float64 {
	if s.strategy.FixedDollar <= 0 || portfolioValue <= 0 {
		return defaultPositionFraction
	}
	fraction := s.strategy.FixedDollar / portfolioValue
	if fraction > fixedDollarCap {
		fraction = fixedDollarCap
	}
	return fraction
}

// riskParity sizes the candidate so every holding contributes equal risk.
// It iterates a multiplicative reweighting over the covariance of the
// trailing 60-day returns of the current holdings plus the candidate,
// starting from inverse-volatility weights.
func (s *Sizer) riskParity(symbol string, row int, held []string) float64 {
	universe := make([]string, 0, len(held)+1)
	seen := map[string]bool{}
	for _, sym := range append(append([]string{}, held...), symbol) {
		if !seen[sym] {
			universe = append(universe, sym)
			seen[sym] = true
		}
	}
	if len(universe) < 2 {
		return defaultPositionFraction
	}

	returns := make(map[string][]float64, len(universe))
	common := math.MaxInt
	for _, sym := range universe {
		r := s.trailingReturns(sym, row, volLookback)
		if len(r) < common {
			common = len(r)
		}
		returns[sym] = r
	}
	if common < riskParityMinSamples {
		return defaultPositionFraction
	}

	k := len(universe)
	data := mat.NewDense(common, k, nil)
	for j, sym := range universe {
		tail := returns[sym][len(returns[sym])-common:]
		for i, v := range tail {
			data.Set(i, j, v)
		}
	}
	cov := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(cov, data, nil)

	weights := equalRiskWeights(cov, k)
	if weights == nil {
		return defaultPositionFraction
	}

	// The candidate is the last unique universe entry unless it was
	// already held, in which case its existing slot applies.
	idx := 0
	for j, sym := range universe {
		if sym == symbol {
			idx = j
		}
	}
	return weights[idx]
}

// equalRiskWeights runs the iterative equal-risk-contribution scheme:
// start at inverse vol, push each weight toward its equal share of total
// risk, stop when contribution dispersion falls inside tolerance.
func equalRiskWeights(cov *mat.SymDense, k int) []float64 {
	weights := make([]float64, k)
	total := 0.0
	for j := 0; j < k; j++ {
		v := cov.At(j, j)
		if v <= 0 || math.IsNaN(v) {
			return nil
		}
		weights[j] = 1 / math.Sqrt(v)
		total += weights[j]
	}
	for j := range weights {
		weights[j] /= total
	}

	target := 1.0 / float64(k)
	w := mat.NewVecDense(k, weights)
	marginal := mat.NewVecDense(k, nil)
	for iter := 0; iter < riskParityIter; iter++ {
		marginal.MulVec(cov, w)
		portVar := mat.Dot(w, marginal)
		if portVar <= 0 || math.IsNaN(portVar) {
			return nil
		}

		dispersion := 0.0
		for j := 0; j < k; j++ {
			rc := w.AtVec(j) * marginal.AtVec(j) / portVar
			if d := math.Abs(rc - target); d > dispersion {
				dispersion = d
			}
		}
		if dispersion < riskParityTol {
			break
		}

		sum := 0.0
		for j := 0; j < k; j++ {
			rc := w.AtVec(j) * marginal.AtVec(j) / portVar
			if rc <= 0 {
				return nil
			}
			next := w.AtVec(j) * target / rc
			w.SetVec(j, next)
			sum += next
		}
		for j := 0; j < k; j++ {
			w.SetVec(j, w.AtVec(j)/sum)
		}
	}

	out := make([]float64, k)
	for j := 0; j < k; j++ {
		v := w.AtVec(j)
		if math.IsNaN(v) || v < 0 {
			return nil
		}
		out[j] = v
	}
	return out
}

func clampFraction(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
