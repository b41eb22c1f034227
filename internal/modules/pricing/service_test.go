package pricing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
)

func newTestService() *Service {
	return NewService(4, zerolog.Nop())
}

func TestServicePriceDefaults(t *testing.T) {
	svc := newTestService()

	result, err := svc.Price(OptionRequest{
		PricingInputs: PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Sigma: 0.20},
		Type:          domain.OptionCall,
	})
	require.NoError(t, err)
	assert.Equal(t, MethodBlackScholes, result.Method)
}

func TestServicePriceAmericanRoutesToBinomial(t *testing.T) {
	svc := newTestService()

	result, err := svc.Price(OptionRequest{
		PricingInputs: PricingInputs{S: 100, K: 110, T: 1.0, R: 0.05, Sigma: 0.30},
		Type:          domain.OptionPut,
		Style:         domain.StyleAmerican,
	})
	require.NoError(t, err)
	assert.Equal(t, MethodBinomial, result.Method)
	assert.Equal(t, DefaultBinomialSteps, result.Steps)
}

func TestServicePriceRejectsBlackScholesAmerican(t *testing.T) {
	svc := newTestService()

	_, err := svc.Price(OptionRequest{
		PricingInputs: PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Sigma: 0.20},
		Type:          domain.OptionCall,
		Style:         domain.StyleAmerican,
		Method:        MethodBlackScholes,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestServicePriceUnknownMethod(t *testing.T) {
	svc := newTestService()

	_, err := svc.Price(OptionRequest{
		PricingInputs: PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Sigma: 0.20},
		Type:          domain.OptionCall,
		Method:        "trinomial",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestServiceSolveImpliedVolDefaultsToBrent(t *testing.T) {
	svc := newTestService()

	in := PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Sigma: 0.30}
	priced, err := BlackScholes(in, domain.OptionCall)
	require.NoError(t, err)

	result, err := svc.SolveImpliedVol(ImpliedVolRequest{
		ImpliedVolInputs: ImpliedVolInputs{S: in.S, K: in.K, T: in.T, R: in.R, MarketPrice: priced.Price},
		Type:             domain.OptionCall,
	})
	require.NoError(t, err)
	assert.Equal(t, SolverBrent, result.Method)
	assert.True(t, result.Converged)
	assert.InDelta(t, 0.30, result.ImpliedVol, 1e-3)
}

func TestServicePriceChain(t *testing.T) {
	svc := newTestService()

	legs := []OptionRequest{
		{
			PricingInputs: PricingInputs{S: 100, K: 95, T: 0.5, R: 0.05, Sigma: 0.25},
			Type:          domain.OptionCall,
		},
		{
			PricingInputs: PricingInputs{S: 100, K: -5, T: 0.5, R: 0.05, Sigma: 0.25},
			Type:          domain.OptionPut,
		},
		{
			PricingInputs: PricingInputs{S: 100, K: 105, T: 0.5, R: 0.05, Sigma: 0.25},
			Type:          domain.OptionPut,
			Style:         domain.StyleAmerican,
		},
	}

	results, err := svc.PriceChain(context.Background(), legs)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Index)
	require.NotNil(t, results[0].Result)
	assert.Greater(t, results[0].Result.Price, 0.0)

	// The bad leg fails alone, without sinking the batch.
	assert.Nil(t, results[1].Result)
	assert.Contains(t, results[1].Error, "strike")

	require.NotNil(t, results[2].Result)
	assert.Equal(t, MethodBinomial, results[2].Result.Method)
}

func TestServicePriceChainEmpty(t *testing.T) {
	svc := newTestService()

	_, err := svc.PriceChain(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestServicePriceChainCancelled(t *testing.T) {
	svc := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	legs := make([]OptionRequest, 50)
	for i := range legs {
		legs[i] = OptionRequest{
			PricingInputs: PricingInputs{S: 100, K: 100, T: 0.25, R: 0.05, Sigma: 0.20},
			Type:          domain.OptionCall,
		}
	}

	_, err := svc.PriceChain(ctx, legs)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}
