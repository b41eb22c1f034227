package pricing

import (
	"fmt"
	"math"

	"github.com/quantleap/quantd/internal/domain"
)

// normCDF is the standard normal CDF expressed through the error function.
func normCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// normPDF is the standard normal density.
func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2.0*math.Pi)
}

// BlackScholes prices a European option in closed form and returns the full
// Greek set. Expired contracts (T <= 0) price at intrinsic value with all
// Greeks zero. Vega and rho are per 1% move, theta per calendar day.
func BlackScholes(in PricingInputs, optType domain.OptionType) (PriceResult, error) {
	if err := in.Validate(); err != nil {
		return PriceResult{}, err
	}
	if err := validateOptionType(optType); err != nil {
		return PriceResult{}, err
	}

	if in.T <= 0 {
		intrinsic := intrinsicValue(in.S, in.K, optType)
		return PriceResult{
			Price:     intrinsic,
			Intrinsic: intrinsic,
			Method:    MethodBlackScholes,
			Converged: true,
		}, nil
	}

	sqrtT := math.Sqrt(in.T)
	d1 := (math.Log(in.S/in.K) + (in.R-in.Q+0.5*in.Sigma*in.Sigma)*in.T) / (in.Sigma * sqrtT)
	d2 := d1 - in.Sigma*sqrtT
	discQ := math.Exp(-in.Q * in.T)
	discR := math.Exp(-in.R * in.T)

	var price, delta, thetaAnnual, rho float64
	if optType == domain.OptionCall {
		price = in.S*discQ*normCDF(d1) - in.K*discR*normCDF(d2)
		delta = discQ * normCDF(d1)
		thetaAnnual = -(in.S*discQ*normPDF(d1)*in.Sigma)/(2.0*sqrtT) -
			in.R*in.K*discR*normCDF(d2) +
			in.Q*in.S*discQ*normCDF(d1)
		rho = in.K * in.T * discR * normCDF(d2) / 100.0
	} else {
		price = in.K*discR*normCDF(-d2) - in.S*discQ*normCDF(-d1)
		delta = discQ * (normCDF(d1) - 1.0)
		thetaAnnual = -(in.S*discQ*normPDF(d1)*in.Sigma)/(2.0*sqrtT) +
			in.R*in.K*discR*normCDF(-d2) -
			in.Q*in.S*discQ*normCDF(-d1)
		rho = -in.K * in.T * discR * normCDF(-d2) / 100.0
	}

	intrinsic := intrinsicValue(in.S, in.K, optType)
	result := PriceResult{
		Price:     price,
		Intrinsic: intrinsic,
		TimeValue: price - intrinsic,
		Greeks: Greeks{
			Delta: delta,
			Gamma: discQ * normPDF(d1) / (in.S * in.Sigma * sqrtT),
			Vega:  bsVega(in) / 100.0,
			Theta: thetaAnnual / 365.0,
			Rho:   rho,
		},
		Method:    MethodBlackScholes,
		Converged: true,
	}

	if !result.finite() {
		return PriceResult{}, fmt.Errorf("%w: black-scholes produced a non-finite value for S=%v K=%v T=%v sigma=%v",
			domain.ErrNumerical, in.S, in.K, in.T, in.Sigma)
	}
	return result, nil
}

// bsVega is dPrice/dSigma per unit of volatility (not per 1%). The implied
// vol Newton solver uses it as the derivative.
func bsVega(in PricingInputs) float64 {
	if in.T <= 0 {
		return 0
	}
	sqrtT := math.Sqrt(in.T)
	d1 := (math.Log(in.S/in.K) + (in.R-in.Q+0.5*in.Sigma*in.Sigma)*in.T) / (in.Sigma * sqrtT)
	return in.S * math.Exp(-in.Q*in.T) * normPDF(d1) * sqrtT
}
