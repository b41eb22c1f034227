// Package pricing implements the option pricing kernel: the Black-Scholes
// closed form, a Cox-Ross-Rubinstein binomial lattice with early exercise,
// and an implied volatility solver over the closed form.
package pricing

import (
	"fmt"
	"math"

	"github.com/quantleap/quantd/internal/domain"
)

// Pricing method names accepted by the API.
const (
	MethodBlackScholes = "black_scholes"
	MethodBinomial     = "binomial"
)

// PricingInputs are the market inputs shared by every pricer.
type PricingInputs struct {
	S     float64 `json:"s"`     // spot price
	K     float64 `json:"k"`     // strike
	T     float64 `json:"t"`     // time to expiry in years
	R     float64 `json:"r"`     // annualized risk-free rate
	Q     float64 `json:"q"`     // continuous dividend yield
	Sigma float64 `json:"sigma"` // annualized volatility
}

// Validate checks the inputs shared by all pricers. T may be zero or negative
// (the contract is expired and prices at intrinsic); everything else must be
// positive where applicable and finite everywhere.
func (in PricingInputs) Validate() error {
	if err := in.validateMarket(); err != nil {
		return err
	}
	if in.Sigma <= 0 || !isFinite(in.Sigma) {
		return fmt.Errorf("%w: volatility must be positive, got %v", domain.ErrValidation, in.Sigma)
	}
	return nil
}

// validateMarket checks everything except volatility, so the implied vol
// solver can share it.
func (in PricingInputs) validateMarket() error {
	if in.S <= 0 || !isFinite(in.S) {
		return fmt.Errorf("%w: spot must be positive, got %v", domain.ErrValidation, in.S)
	}
	if in.K <= 0 || !isFinite(in.K) {
		return fmt.Errorf("%w: strike must be positive, got %v", domain.ErrValidation, in.K)
	}
	if !isFinite(in.T) {
		return fmt.Errorf("%w: time to expiry must be finite, got %v", domain.ErrValidation, in.T)
	}
	if !isFinite(in.R) {
		return fmt.Errorf("%w: risk-free rate must be finite, got %v", domain.ErrValidation, in.R)
	}
	if !isFinite(in.Q) {
		return fmt.Errorf("%w: dividend yield must be finite, got %v", domain.ErrValidation, in.Q)
	}
	return nil
}

// Greeks hold the option sensitivities. Vega and rho are reported per 1%
// move; theta per calendar day.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Vega  float64 `json:"vega"`
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// PriceResult is a single pricing outcome. Price decomposes into Intrinsic
// plus TimeValue. Converged reports whether the model produced a usable
// number; failures surface as errors, so a returned result always has it
// set.
type PriceResult struct {
	Price     float64 `json:"price"`
	Intrinsic float64 `json:"intrinsic"`
	TimeValue float64 `json:"time_value"`
	Greeks    Greeks  `json:"greeks"`
	Method    string  `json:"method"`
	Steps     int     `json:"steps,omitempty"` // binomial lattice steps, zero for closed form
	Converged bool    `json:"converged"`
}

func (r PriceResult) finite() bool {
	return isFinite(r.Price) &&
		isFinite(r.Greeks.Delta) && isFinite(r.Greeks.Gamma) &&
		isFinite(r.Greeks.Vega) && isFinite(r.Greeks.Theta) && isFinite(r.Greeks.Rho)
}

// validateOptionType rejects anything but CALL and PUT.
func validateOptionType(optType domain.OptionType) error {
	if optType != domain.OptionCall && optType != domain.OptionPut {
		return fmt.Errorf("%w: unknown option type %q", domain.ErrValidation, optType)
	}
	return nil
}

// intrinsicValue is the exercise value of the option at spot s.
func intrinsicValue(s, k float64, optType domain.OptionType) float64 {
	if optType == domain.OptionCall {
		return math.Max(s-k, 0)
	}
	return math.Max(k-s, 0)
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
