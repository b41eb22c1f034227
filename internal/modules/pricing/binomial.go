package pricing

import (
	"fmt"
	"math"

	"github.com/quantleap/quantd/internal/domain"
)

const (
	// DefaultBinomialSteps gives sub-1% agreement with the closed form for
	// European contracts.
	DefaultBinomialSteps = 200

	maxBinomialSteps = 10000
)

// Binomial prices an option on a Cox-Ross-Rubinstein lattice. American
// exercise is checked at every node; European contracts roll back pure
// discounted expectations. Greeks come from finite differences: central on
// spot, one-sided on time (one calendar day), volatility (+0.01) and rate
// (+0.01). Steps <= 0 selects DefaultBinomialSteps.
func Binomial(in PricingInputs, optType domain.OptionType, style domain.OptionStyle, steps int) (PriceResult, error) {
	if err := in.Validate(); err != nil {
		return PriceResult{}, err
	}
	if err := validateOptionType(optType); err != nil {
		return PriceResult{}, err
	}
	if style != domain.StyleAmerican && style != domain.StyleEuropean {
		return PriceResult{}, fmt.Errorf("%w: unknown option style %q", domain.ErrValidation, style)
	}
	if steps <= 0 {
		steps = DefaultBinomialSteps
	}
	if steps > maxBinomialSteps {
		return PriceResult{}, fmt.Errorf("%w: steps %d exceeds maximum %d", domain.ErrValidation, steps, maxBinomialSteps)
	}

	if in.T <= 0 {
		intrinsic := intrinsicValue(in.S, in.K, optType)
		return PriceResult{
			Price:     intrinsic,
			Intrinsic: intrinsic,
			Method:    MethodBinomial,
			Steps:     steps,
			Converged: true,
		}, nil
	}

	base, err := crrPrice(in, optType, style, steps)
	if err != nil {
		return PriceResult{}, err
	}

	greeks, err := crrGreeks(in, optType, style, steps, base)
	if err != nil {
		return PriceResult{}, err
	}

	intrinsic := intrinsicValue(in.S, in.K, optType)
	result := PriceResult{
		Price:     base,
		Intrinsic: intrinsic,
		TimeValue: base - intrinsic,
		Greeks:    greeks,
		Method:    MethodBinomial,
		Steps:     steps,
		Converged: true,
	}
	if !result.finite() {
		return PriceResult{}, fmt.Errorf("%w: binomial produced a non-finite value for S=%v K=%v T=%v sigma=%v",
			domain.ErrNumerical, in.S, in.K, in.T, in.Sigma)
	}
	return result, nil
}

// crrPrice runs one backward-induction pass and returns the root value.
func crrPrice(in PricingInputs, optType domain.OptionType, style domain.OptionStyle, steps int) (float64, error) {
	dt := in.T / float64(steps)
	u := math.Exp(in.Sigma * math.Sqrt(dt))
	d := 1.0 / u
	p := (math.Exp((in.R-in.Q)*dt) - d) / (u - d)
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: risk-neutral probability %v outside [0,1] (sigma=%v T=%v steps=%d)",
			domain.ErrNumerical, p, in.Sigma, in.T, steps)
	}
	disc := math.Exp(-in.R * dt)

	// Terminal payoffs: node i has i up moves out of `steps`.
	values := make([]float64, steps+1)
	for i := 0; i <= steps; i++ {
		spot := in.S * math.Pow(u, float64(2*i-steps))
		values[i] = intrinsicValue(spot, in.K, optType)
	}

	for step := steps - 1; step >= 0; step-- {
		for i := 0; i <= step; i++ {
			continuation := disc * (p*values[i+1] + (1.0-p)*values[i])
			if style == domain.StyleAmerican {
				spot := in.S * math.Pow(u, float64(2*i-step))
				continuation = math.Max(continuation, intrinsicValue(spot, in.K, optType))
			}
			values[i] = continuation
		}
	}

	if !isFinite(values[0]) {
		return 0, fmt.Errorf("%w: binomial root value is not finite", domain.ErrNumerical)
	}
	return values[0], nil
}

// crrGreeks estimates the Greek set by re-pricing the lattice under bumped
// inputs, in the same reporting conventions as the closed form.
func crrGreeks(in PricingInputs, optType domain.OptionType, style domain.OptionStyle, steps int, base float64) (Greeks, error) {
	reprice := func(bumped PricingInputs) (float64, error) {
		if bumped.T <= 0 {
			return intrinsicValue(bumped.S, bumped.K, optType), nil
		}
		return crrPrice(bumped, optType, style, steps)
	}

	// Central difference on spot.
	hS := 0.01 * in.S
	upS := in
	upS.S += hS
	downS := in
	downS.S -= hS
	priceUpS, err := reprice(upS)
	if err != nil {
		return Greeks{}, err
	}
	priceDownS, err := reprice(downS)
	if err != nil {
		return Greeks{}, err
	}

	// One-sided on time: one calendar day closer to expiry.
	const oneDay = 1.0 / 365.0
	decayed := in
	decayed.T -= oneDay
	priceDecayed, err := reprice(decayed)
	if err != nil {
		return Greeks{}, err
	}

	const volBump = 0.01
	upVol := in
	upVol.Sigma += volBump
	priceUpVol, err := reprice(upVol)
	if err != nil {
		return Greeks{}, err
	}

	const rateBump = 0.01
	upRate := in
	upRate.R += rateBump
	priceUpRate, err := reprice(upRate)
	if err != nil {
		return Greeks{}, err
	}

	return Greeks{
		Delta: (priceUpS - priceDownS) / (2.0 * hS),
		Gamma: (priceUpS - 2.0*base + priceDownS) / (hS * hS),
		Vega:  (priceUpVol - base) / volBump / 100.0,
		Theta: priceDecayed - base,
		Rho:   (priceUpRate - base) / rateBump / 100.0,
	}, nil
}
