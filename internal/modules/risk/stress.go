package risk

import (
	"fmt"
	"sort"

	"github.com/quantleap/quantd/internal/domain"
)

// StressScenario is a fixed-shape set of factor shocks, expressed as
// fractional moves (market_shock -0.2 = a 20% market drop). Handlers
// decode scenarios with unknown fields rejected.
type StressScenario struct {
	Name             string  `json:"name"`
	MarketShock      float64 `json:"market_shock"`
	VolShock         float64 `json:"vol_shock"`
	RateShock        float64 `json:"rate_shock"`
	SectorRotation   float64 `json:"sector_rotation"`
	LiquidityShock   float64 `json:"liquidity_shock"`
	CorrelationShock float64 `json:"correlation_shock"`
}

// StressPosition is one holding with its factor exposures. Beta defaults
// to 1 when omitted; the remaining sensitivities default to 0.
type StressPosition struct {
	Symbol        string   `json:"symbol"`
	MarketValue   float64  `json:"market_value"`
	Beta          *float64 `json:"beta,omitempty"`
	RateBeta      float64  `json:"rate_beta,omitempty"`
	SectorBeta    float64  `json:"sector_beta,omitempty"`
	LiquidityBeta float64  `json:"liquidity_beta,omitempty"`
}

// PositionImpact is one position's loss or gain under a scenario.
type PositionImpact struct {
	Symbol    string  `json:"symbol"`
	ImpactPct float64 `json:"impact_pct"`
	ImpactVal float64 `json:"impact_value"`
}

// ScenarioResult aggregates one scenario over the whole book.
type ScenarioResult struct {
	Scenario           StressScenario   `json:"scenario"`
	PortfolioImpactPct float64          `json:"portfolio_impact_pct"`
	PortfolioImpactVal float64          `json:"portfolio_impact_value"`
	StressedVol        float64          `json:"stressed_vol_multiplier"`
	Positions          []PositionImpact `json:"positions"`
}

// StressResult carries every scenario outcome plus the worst and average
// portfolio impacts.
type StressResult struct {
	Scenarios   []ScenarioResult `json:"scenarios"`
	WorstCase   float64          `json:"worst_case_pct"`
	AverageCase float64          `json:"average_case_pct"`
}

// RunStressTest applies each scenario's shocks linearly through the
// positions' factor exposures and aggregates to portfolio level.
func RunStressTest(scenarios []StressScenario, positions []StressPosition) (*StressResult, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("%w: no stress scenarios", domain.ErrValidation)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: no positions to stress", domain.ErrValidation)
	}

	var totalValue float64
	for _, p := range positions {
		if p.Symbol == "" {
			return nil, fmt.Errorf("%w: position without a symbol", domain.ErrValidation)
		}
		if p.MarketValue <= 0 || !isFinite(p.MarketValue) {
			return nil, fmt.Errorf("%w: position %s has market value %.4f", domain.ErrValidation, p.Symbol, p.MarketValue)
		}
		totalValue += p.MarketValue
	}

	result := &StressResult{Scenarios: make([]ScenarioResult, 0, len(scenarios))}
	worst := 0.0
	sum := 0.0
	for _, sc := range scenarios {
		sr := ScenarioResult{
			Scenario:    sc,
			StressedVol: 1 + sc.VolShock,
			Positions:   make([]PositionImpact, 0, len(positions)),
		}
		for _, p := range positions {
			beta := 1.0
			if p.Beta != nil {
				beta = *p.Beta
			}
			pct := beta*sc.MarketShock +
				p.RateBeta*sc.RateShock +
				p.SectorBeta*sc.SectorRotation +
				p.LiquidityBeta*sc.LiquidityShock
			val := pct * p.MarketValue
			sr.Positions = append(sr.Positions, PositionImpact{
				Symbol:    p.Symbol,
				ImpactPct: pct,
				ImpactVal: val,
			})
			sr.PortfolioImpactVal += val
		}
		sort.Slice(sr.Positions, func(i, j int) bool { return sr.Positions[i].Symbol < sr.Positions[j].Symbol })
		sr.PortfolioImpactPct = sr.PortfolioImpactVal / totalValue

		result.Scenarios = append(result.Scenarios, sr)
		sum += sr.PortfolioImpactPct
		if sr.PortfolioImpactPct < worst {
			worst = sr.PortfolioImpactPct
		}
	}
	result.WorstCase = worst
	result.AverageCase = sum / float64(len(scenarios))
	return result, nil
}
