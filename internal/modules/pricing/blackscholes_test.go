package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
)

func TestBlackScholesATMCall(t *testing.T) {
	in := PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Q: 0, Sigma: 0.20}

	result, err := BlackScholes(in, domain.OptionCall)
	require.NoError(t, err)

	assert.InDelta(t, 4.615, result.Price, 0.01)
	assert.InDelta(t, 0.5695, result.Greeks.Delta, 0.001)
	assert.Greater(t, result.Greeks.Gamma, 0.0)
	assert.Greater(t, result.Greeks.Vega, 0.0)
	assert.Less(t, result.Greeks.Theta, 0.0)
	assert.Greater(t, result.Greeks.Rho, 0.0)
	assert.Equal(t, MethodBlackScholes, result.Method)
	assert.True(t, result.Converged)

	// At the money the whole premium is time value.
	assert.Zero(t, result.Intrinsic)
	assert.Equal(t, result.Price, result.TimeValue)
}

func TestBlackScholesKnownValues(t *testing.T) {
	// Hull, "Options, Futures and Other Derivatives": S=42, K=40, T=0.5,
	// r=10%, sigma=20%.
	in := PricingInputs{S: 42, K: 40, T: 0.5, R: 0.10, Q: 0, Sigma: 0.20}

	call, err := BlackScholes(in, domain.OptionCall)
	require.NoError(t, err)
	assert.InDelta(t, 4.76, call.Price, 0.01)

	put, err := BlackScholes(in, domain.OptionPut)
	require.NoError(t, err)
	assert.InDelta(t, 0.81, put.Price, 0.01)
}

func TestPutCallParity(t *testing.T) {
	tests := []struct {
		name string
		in   PricingInputs
	}{
		{"atm", PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Q: 0, Sigma: 0.20}},
		{"itm_call", PricingInputs{S: 120, K: 100, T: 1.0, R: 0.03, Q: 0.01, Sigma: 0.35}},
		{"otm_call", PricingInputs{S: 80, K: 100, T: 2.0, R: 0.07, Q: 0.02, Sigma: 0.15}},
		{"short_dated", PricingInputs{S: 55, K: 50, T: 0.02, R: 0.01, Q: 0, Sigma: 0.60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := BlackScholes(tt.in, domain.OptionCall)
			require.NoError(t, err)
			put, err := BlackScholes(tt.in, domain.OptionPut)
			require.NoError(t, err)

			// C - P = S e^{-qT} - K e^{-rT}
			lhs := call.Price - put.Price
			rhs := tt.in.S*math.Exp(-tt.in.Q*tt.in.T) - tt.in.K*math.Exp(-tt.in.R*tt.in.T)
			assert.InDelta(t, rhs, lhs, 1e-10)
		})
	}
}

func TestBlackScholesExpired(t *testing.T) {
	tests := []struct {
		name     string
		in       PricingInputs
		optType  domain.OptionType
		expected float64
	}{
		{"itm_call", PricingInputs{S: 110, K: 100, T: 0, R: 0.05, Sigma: 0.2}, domain.OptionCall, 10},
		{"otm_call", PricingInputs{S: 90, K: 100, T: 0, R: 0.05, Sigma: 0.2}, domain.OptionCall, 0},
		{"itm_put", PricingInputs{S: 90, K: 100, T: -0.1, R: 0.05, Sigma: 0.2}, domain.OptionPut, 10},
		{"otm_put", PricingInputs{S: 110, K: 100, T: 0, R: 0.05, Sigma: 0.2}, domain.OptionPut, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := BlackScholes(tt.in, tt.optType)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Price)
			assert.Equal(t, tt.expected, result.Intrinsic)
			assert.Zero(t, result.TimeValue)
			assert.True(t, result.Converged)
			assert.Equal(t, Greeks{}, result.Greeks)
		})
	}
}

func TestBlackScholesValidation(t *testing.T) {
	valid := PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Q: 0, Sigma: 0.20}

	tests := []struct {
		name   string
		mutate func(*PricingInputs)
	}{
		{"zero_spot", func(in *PricingInputs) { in.S = 0 }},
		{"negative_spot", func(in *PricingInputs) { in.S = -10 }},
		{"zero_strike", func(in *PricingInputs) { in.K = 0 }},
		{"zero_vol", func(in *PricingInputs) { in.Sigma = 0 }},
		{"negative_vol", func(in *PricingInputs) { in.Sigma = -0.2 }},
		{"nan_spot", func(in *PricingInputs) { in.S = math.NaN() }},
		{"inf_rate", func(in *PricingInputs) { in.R = math.Inf(1) }},
		{"nan_expiry", func(in *PricingInputs) { in.T = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := BlackScholes(in, domain.OptionCall)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}

	t.Run("unknown_type", func(t *testing.T) {
		_, err := BlackScholes(valid, domain.OptionType("STRADDLE"))
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestBlackScholesDeltaBounds(t *testing.T) {
	deepITM := PricingInputs{S: 200, K: 100, T: 0.5, R: 0.05, Q: 0, Sigma: 0.20}
	deepOTM := PricingInputs{S: 50, K: 100, T: 0.5, R: 0.05, Q: 0, Sigma: 0.20}

	itmCall, err := BlackScholes(deepITM, domain.OptionCall)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, itmCall.Greeks.Delta, 0.01)

	otmCall, err := BlackScholes(deepOTM, domain.OptionCall)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, otmCall.Greeks.Delta, 0.01)

	itmPut, err := BlackScholes(deepOTM, domain.OptionPut)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, itmPut.Greeks.Delta, 0.01)
}

func TestBlackScholesVegaMatchesFiniteDifference(t *testing.T) {
	in := PricingInputs{S: 100, K: 105, T: 0.75, R: 0.04, Q: 0.01, Sigma: 0.30}

	base, err := BlackScholes(in, domain.OptionCall)
	require.NoError(t, err)

	bumped := in
	bumped.Sigma += 0.0001
	up, err := BlackScholes(bumped, domain.OptionCall)
	require.NoError(t, err)

	// Vega is reported per 1% move.
	numeric := (up.Price - base.Price) / 0.0001 / 100.0
	assert.InDelta(t, numeric, base.Greeks.Vega, 1e-4)
}
