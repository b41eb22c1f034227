package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
)

func floatPtr(v float64) *float64 { return &v }

func TestRunStressTest_MarketShockThroughBeta(t *testing.T) {
	scenarios := []StressScenario{{Name: "crash", MarketShock: -0.2, VolShock: 1.5}}
	positions := []StressPosition{
		{Symbol: "AAPL", MarketValue: 60_000}, // beta defaults to 1
		{Symbol: "KO", MarketValue: 40_000, Beta: floatPtr(0.5)},
	}

	result, err := RunStressTest(scenarios, positions)
	require.NoError(t, err)
	require.Len(t, result.Scenarios, 1)

	sr := result.Scenarios[0]
	assert.Equal(t, "crash", sr.Scenario.Name)
	assert.InDelta(t, 2.5, sr.StressedVol, 1e-12)

	require.Len(t, sr.Positions, 2)
	assert.Equal(t, "AAPL", sr.Positions[0].Symbol)
	assert.InDelta(t, -0.2, sr.Positions[0].ImpactPct, 1e-12)
	assert.InDelta(t, -12_000, sr.Positions[0].ImpactVal, 1e-9)
	assert.Equal(t, "KO", sr.Positions[1].Symbol)
	assert.InDelta(t, -0.1, sr.Positions[1].ImpactPct, 1e-12)
	assert.InDelta(t, -4_000, sr.Positions[1].ImpactVal, 1e-9)

	assert.InDelta(t, -16_000, sr.PortfolioImpactVal, 1e-9)
	assert.InDelta(t, -0.16, sr.PortfolioImpactPct, 1e-12)
}

func TestRunStressTest_FactorShocksCombine(t *testing.T) {
	scenarios := []StressScenario{{
		Name:           "rates and rotation",
		MarketShock:    -0.1,
		RateShock:      0.02,
		SectorRotation: -0.05,
		LiquidityShock: -0.03,
	}}
	positions := []StressPosition{{
		Symbol:        "BANK",
		MarketValue:   100_000,
		Beta:          floatPtr(1.2),
		RateBeta:      -2.0,
		SectorBeta:    0.8,
		LiquidityBeta: 0.5,
	}}

	result, err := RunStressTest(scenarios, positions)
	require.NoError(t, err)

	want := 1.2*-0.1 + -2.0*0.02 + 0.8*-0.05 + 0.5*-0.03
	assert.InDelta(t, want, result.Scenarios[0].PortfolioImpactPct, 1e-12)
}

func TestRunStressTest_WorstAndAverage(t *testing.T) {
	scenarios := []StressScenario{
		{Name: "crash", MarketShock: -0.2},
		{Name: "melt-up", MarketShock: 0.05},
	}
	positions := []StressPosition{{Symbol: "SPY", MarketValue: 10_000}}

	result, err := RunStressTest(scenarios, positions)
	require.NoError(t, err)

	assert.InDelta(t, -0.2, result.WorstCase, 1e-12)
	assert.InDelta(t, (-0.2+0.05)/2, result.AverageCase, 1e-12)
}

func TestRunStressTest_AllGainsLeaveWorstCaseAtZero(t *testing.T) {
	scenarios := []StressScenario{{Name: "rally", MarketShock: 0.1}}
	positions := []StressPosition{{Symbol: "SPY", MarketValue: 10_000}}

	result, err := RunStressTest(scenarios, positions)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.WorstCase, "worst case never reports a gain")
	assert.InDelta(t, 0.1, result.AverageCase, 1e-12)
}

func TestRunStressTest_Validation(t *testing.T) {
	scenario := []StressScenario{{Name: "crash", MarketShock: -0.2}}
	position := []StressPosition{{Symbol: "SPY", MarketValue: 10_000}}

	tests := []struct {
		name      string
		scenarios []StressScenario
		positions []StressPosition
	}{
		{"no scenarios", nil, position},
		{"no positions", scenario, nil},
		{"unnamed position", scenario, []StressPosition{{MarketValue: 10_000}}},
		{"zero market value", scenario, []StressPosition{{Symbol: "SPY"}}},
		{"nan market value", scenario, []StressPosition{{Symbol: "SPY", MarketValue: math.NaN()}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunStressTest(tt.scenarios, tt.positions)
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}
