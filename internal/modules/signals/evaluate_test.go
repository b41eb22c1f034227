package signals

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
)

func seriesOf(values ...float64) map[string]domain.Series {
	return map[string]domain.Series{
		"rsi_14": domain.NewSeries(values, 0),
	}
}

func TestEvaluateRule_Comparisons(t *testing.T) {
	series := seriesOf(30, 50, 70)

	tests := []struct {
		name      string
		operator  string
		threshold float64
		index     int
		want      float64
	}{
		{"gt fires above", OpGT, 60, 2, 1},
		{"gt quiet at equal", OpGT, 70, 2, 0},
		{"gt quiet below", OpGT, 60, 0, 0},
		{"gte fires at equal", OpGTE, 70, 2, 1},
		{"lt fires below", OpLT, 40, 0, 1},
		{"lt quiet at equal", OpLT, 30, 0, 0},
		{"lte fires at equal", OpLTE, 30, 0, 1},
		{"lte quiet above", OpLTE, 30, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := Rule{Indicator: "rsi_14", Operator: tt.operator, Threshold: tt.threshold, Weight: 1}
			assert.Equal(t, tt.want, EvaluateRule(series, rule, tt.index))
		})
	}
}

func TestEvaluateRule_Crossover(t *testing.T) {
	series := seriesOf(30, 50, 45, 70)

	rule := Rule{Indicator: "rsi_14", Operator: OpCrossover, Threshold: 40, Weight: 1}

	assert.Equal(t, 0.0, EvaluateRule(series, rule, 0), "no previous sample")
	assert.Equal(t, 1.0, EvaluateRule(series, rule, 1), "30 <= 40 < 50 crosses")
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 2), "already above, no cross")
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 3), "still above")

	// Previous sample exactly at the threshold still counts as a cross.
	atThreshold := seriesOf(40, 50)
	assert.Equal(t, 1.0, EvaluateRule(atThreshold, rule, 1))

	// Landing exactly on the threshold is not a cross.
	landing := seriesOf(30, 40)
	assert.Equal(t, 0.0, EvaluateRule(landing, rule, 1))
}

func TestEvaluateRule_Crossunder(t *testing.T) {
	series := seriesOf(70, 50, 55, 30)

	rule := Rule{Indicator: "rsi_14", Operator: OpCrossunder, Threshold: 60, Weight: 1}

	assert.Equal(t, 0.0, EvaluateRule(series, rule, 0))
	assert.Equal(t, 1.0, EvaluateRule(series, rule, 1), "70 >= 60 > 50 crosses under")
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 2))
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 3), "already below")
}

func TestEvaluateRule_UnavailableSamples(t *testing.T) {
	// Warm-up and NaN samples yield 0, never an error.
	series := map[string]domain.Series{
		"sma_20": domain.NewSeries([]float64{math.NaN(), math.NaN(), 105, 110}, 2),
	}

	rule := Rule{Indicator: "sma_20", Operator: OpGT, Threshold: 100, Weight: 1}
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 0))
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 1))
	assert.Equal(t, 1.0, EvaluateRule(series, rule, 2))

	// Crossover with an unavailable previous sample stays quiet.
	cross := Rule{Indicator: "sma_20", Operator: OpCrossover, Threshold: 100, Weight: 1}
	assert.Equal(t, 0.0, EvaluateRule(series, cross, 2))
	assert.Equal(t, 0.0, EvaluateRule(series, cross, 3), "105 > 100 already, no cross")

	// Unknown indicator yields 0.
	unknown := Rule{Indicator: "missing", Operator: OpGT, Threshold: 0, Weight: 1}
	assert.Equal(t, 0.0, EvaluateRule(series, unknown, 3))
}

func TestEvaluateRule_Lookback(t *testing.T) {
	series := seriesOf(80, 20, 20)

	rule := Rule{Indicator: "rsi_14", Operator: OpGT, Threshold: 70, Weight: 1, Lookback: 2}
	assert.Equal(t, 1.0, EvaluateRule(series, rule, 1), "lookback 2 reads the prior bar")
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 2))
	assert.Equal(t, 0.0, EvaluateRule(series, rule, 0), "lookback runs off the start")
}

func TestComposite_Weighted(t *testing.T) {
	series := map[string]domain.Series{
		"rsi_14": domain.NewSeries([]float64{80}, 0),
		"sma_20": domain.NewSeries([]float64{90}, 0),
	}

	rules := []Rule{
		{Indicator: "rsi_14", Operator: OpGT, Threshold: 70, Weight: 2}, // fires
		{Indicator: "sma_20", Operator: OpGT, Threshold: 100, Weight: 1}, // quiet
	}

	assert.InDelta(t, 2.0/3.0, Composite(series, rules, 0), 1e-12)
}

func TestComposite_ZeroTotalWeight(t *testing.T) {
	series := seriesOf(80)

	rules := []Rule{
		{Indicator: "rsi_14", Operator: OpGT, Threshold: 70, Weight: 0},
	}
	assert.Equal(t, 0.0, Composite(series, rules, 0))
	assert.Equal(t, 0.0, Composite(series, nil, 0))
}

func TestComposite_Bounds(t *testing.T) {
	series := seriesOf(80, 20, 55)

	rules := []Rule{
		{Indicator: "rsi_14", Operator: OpGT, Threshold: 70, Weight: 1.5},
		{Indicator: "rsi_14", Operator: OpLT, Threshold: 30, Weight: 0.5},
		{Indicator: "rsi_14", Operator: OpGTE, Threshold: 55, Weight: 1},
	}

	for i := 0; i < 3; i++ {
		c := Composite(series, rules, i)
		assert.GreaterOrEqual(t, c, 0.0)
		assert.LessOrEqual(t, c, 1.0)
	}
}

func TestCompositeSeries(t *testing.T) {
	series := seriesOf(30, 50, 80)

	rules := []Rule{
		{Indicator: "rsi_14", Operator: OpGT, Threshold: 70, Weight: 1},
	}

	got := CompositeSeries(series, rules, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{0, 0, 1}, got)
}

func TestAxisLength(t *testing.T) {
	series := map[string]domain.Series{
		"a": domain.NewSeries(make([]float64, 5), 0),
		"b": domain.NewSeries(make([]float64, 9), 0),
	}
	assert.Equal(t, 9, AxisLength(series))
	assert.Equal(t, 0, AxisLength(nil))
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr bool
	}{
		{"valid gt", Rule{Indicator: "rsi_14", Operator: OpGT, Threshold: 70, Weight: 1}, false},
		{"valid crossover with lookback", Rule{Indicator: "macd", Operator: OpCrossover, Weight: 0.5, Lookback: 2}, false},
		{"zero weight ok", Rule{Indicator: "obv", Operator: OpLT, Weight: 0}, false},
		{"missing indicator", Rule{Operator: OpGT, Weight: 1}, true},
		{"unknown operator", Rule{Indicator: "rsi_14", Operator: "between", Weight: 1}, true},
		{"negative weight", Rule{Indicator: "rsi_14", Operator: OpGT, Weight: -1}, true},
		{"negative lookback", Rule{Indicator: "rsi_14", Operator: OpGT, Weight: 1, Lookback: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvaluateRule_ReferenceSeries(t *testing.T) {
	series := map[string]domain.Series{
		"close":  domain.NewSeries([]float64{100, 104, 101, 108}, 0),
		"sma_20": domain.NewSeries([]float64{math.NaN(), 102, 102, 103}, 1),
	}

	gt := Rule{Indicator: "close", Operator: OpGT, Reference: "sma_20", Weight: 1}
	assert.Equal(t, 0.0, EvaluateRule(series, gt, 0), "reference unavailable")
	assert.Equal(t, 1.0, EvaluateRule(series, gt, 1), "104 > 102")
	assert.Equal(t, 0.0, EvaluateRule(series, gt, 2), "101 < 102")
	assert.Equal(t, 1.0, EvaluateRule(series, gt, 3), "108 > 103")

	// Crossing the reference needs both series available on both bars.
	cross := Rule{Indicator: "close", Operator: OpCrossover, Reference: "sma_20", Weight: 1}
	assert.Equal(t, 0.0, EvaluateRule(series, cross, 1), "previous reference unavailable")
	assert.Equal(t, 1.0, EvaluateRule(series, cross, 3), "101 <= 102 then 108 > 103")

	missing := Rule{Indicator: "close", Operator: OpGT, Reference: "sma_50", Weight: 1}
	assert.Equal(t, 0.0, EvaluateRule(series, missing, 3), "unknown reference never fires")
}
