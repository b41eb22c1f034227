package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
)

func TestBinomialConvergesToBlackScholes(t *testing.T) {
	tests := []struct {
		name    string
		in      PricingInputs
		optType domain.OptionType
	}{
		{"atm_call", PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Q: 0, Sigma: 0.20}, domain.OptionCall},
		{"atm_put", PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Q: 0, Sigma: 0.20}, domain.OptionPut},
		{"itm_call_div", PricingInputs{S: 120, K: 100, T: 1.0, R: 0.03, Q: 0.02, Sigma: 0.35}, domain.OptionCall},
		{"otm_put_long", PricingInputs{S: 110, K: 90, T: 2.0, R: 0.06, Q: 0, Sigma: 0.25}, domain.OptionPut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs, err := BlackScholes(tt.in, tt.optType)
			require.NoError(t, err)

			crr, err := Binomial(tt.in, tt.optType, domain.StyleEuropean, 500)
			require.NoError(t, err)

			relErr := math.Abs(crr.Price-bs.Price) / bs.Price
			assert.Less(t, relErr, 0.01, "price relative error %v", relErr)
			assert.InDelta(t, bs.Greeks.Delta, crr.Greeks.Delta, 0.05)
			assert.InDelta(t, bs.Greeks.Gamma, crr.Greeks.Gamma, 0.01)
		})
	}
}

func TestBinomialConvergenceAt200Steps(t *testing.T) {
	in := PricingInputs{S: 100, K: 100, T: 0.5, R: 0.05, Q: 0, Sigma: 0.30}

	bs, err := BlackScholes(in, domain.OptionCall)
	require.NoError(t, err)

	crr, err := Binomial(in, domain.OptionCall, domain.StyleEuropean, 200)
	require.NoError(t, err)

	relErr := math.Abs(crr.Price-bs.Price) / bs.Price
	assert.Less(t, relErr, 0.01)
}

func TestAmericanPutEarlyExercisePremium(t *testing.T) {
	in := PricingInputs{S: 100, K: 110, T: 1.0, R: 0.05, Q: 0, Sigma: 0.30}

	european, err := BlackScholes(in, domain.OptionPut)
	require.NoError(t, err)

	american, err := Binomial(in, domain.OptionPut, domain.StyleAmerican, 500)
	require.NoError(t, err)

	assert.Greater(t, american.Price, european.Price,
		"american put must carry a strictly positive early-exercise premium")
}

func TestAmericanNeverBelowEuropean(t *testing.T) {
	tests := []struct {
		name    string
		in      PricingInputs
		optType domain.OptionType
	}{
		{"put", PricingInputs{S: 100, K: 105, T: 0.5, R: 0.04, Q: 0, Sigma: 0.25}, domain.OptionPut},
		{"call_with_dividend", PricingInputs{S: 100, K: 95, T: 1.0, R: 0.03, Q: 0.06, Sigma: 0.30}, domain.OptionCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			european, err := Binomial(tt.in, tt.optType, domain.StyleEuropean, 300)
			require.NoError(t, err)
			american, err := Binomial(tt.in, tt.optType, domain.StyleAmerican, 300)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, american.Price, european.Price-1e-12)
		})
	}
}

func TestAmericanCallNoDividendMatchesEuropean(t *testing.T) {
	// Without dividends early exercise of a call is never optimal.
	in := PricingInputs{S: 100, K: 95, T: 0.75, R: 0.05, Q: 0, Sigma: 0.30}

	european, err := Binomial(in, domain.OptionCall, domain.StyleEuropean, 400)
	require.NoError(t, err)
	american, err := Binomial(in, domain.OptionCall, domain.StyleAmerican, 400)
	require.NoError(t, err)

	assert.InDelta(t, european.Price, american.Price, 1e-9)
}

func TestBinomialExpired(t *testing.T) {
	in := PricingInputs{S: 90, K: 100, T: 0, R: 0.05, Sigma: 0.2}

	result, err := Binomial(in, domain.OptionPut, domain.StyleAmerican, 100)
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.Price)
	assert.Equal(t, Greeks{}, result.Greeks)
}

func TestBinomialRiskNeutralProbabilityOutOfRange(t *testing.T) {
	// One giant step with an extreme rate pushes p above 1.
	in := PricingInputs{S: 100, K: 100, T: 1.0, R: 5.0, Q: 0, Sigma: 0.05}

	_, err := Binomial(in, domain.OptionCall, domain.StyleEuropean, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNumerical)
}

func TestBinomialValidation(t *testing.T) {
	valid := PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Q: 0, Sigma: 0.20}

	t.Run("too_many_steps", func(t *testing.T) {
		_, err := Binomial(valid, domain.OptionCall, domain.StyleEuropean, maxBinomialSteps+1)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("unknown_style", func(t *testing.T) {
		_, err := Binomial(valid, domain.OptionCall, domain.OptionStyle("BERMUDAN"), 100)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("bad_inputs", func(t *testing.T) {
		bad := valid
		bad.Sigma = -1
		_, err := Binomial(bad, domain.OptionCall, domain.StyleEuropean, 100)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestBinomialDefaultSteps(t *testing.T) {
	in := PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Q: 0, Sigma: 0.20}

	result, err := Binomial(in, domain.OptionCall, domain.StyleEuropean, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBinomialSteps, result.Steps)
	assert.Equal(t, MethodBinomial, result.Method)
	assert.True(t, result.Converged)
	assert.InDelta(t, result.Price, result.Intrinsic+result.TimeValue, 1e-12)
}
