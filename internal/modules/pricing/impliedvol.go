package pricing

import (
	"fmt"
	"math"

	"github.com/quantleap/quantd/internal/domain"
)

// Solver method names accepted by the API.
const (
	SolverBrent     = "brent"
	SolverBisection = "bisection"
	SolverNewton    = "newton"
)

const (
	ivTolerance     = 1e-6
	ivMaxIterations = 100

	// Volatility bracket searched by every solver.
	sigmaMin = 0.001
	sigmaMax = 5.0

	// Reported when the market price carries no time value.
	minImpliedVol = 0.01
)

// ImpliedVolInputs describe a quoted European option whose volatility is to
// be recovered.
type ImpliedVolInputs struct {
	S           float64 `json:"s"`
	K           float64 `json:"k"`
	T           float64 `json:"t"`
	R           float64 `json:"r"`
	Q           float64 `json:"q"`
	MarketPrice float64 `json:"market_price"`
}

// ImpliedVolResult is the solver outcome. FinalPrice is the model price at
// the reported vol. Converged=false with a nil error means the market price
// is unattainable inside the bracket.
type ImpliedVolResult struct {
	ImpliedVol float64 `json:"implied_vol"`
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	Method     string  `json:"method"`
	FinalPrice float64 `json:"final_price"`
	PriceError float64 `json:"price_error"`
}

// ImpliedVolatility recovers the Black-Scholes volatility matching a market
// price. Quotes at or below intrinsic return the minimum vol as converged;
// quotes above the sigma=5.0 price return converged=false.
func ImpliedVolatility(in ImpliedVolInputs, optType domain.OptionType, method string) (ImpliedVolResult, error) {
	base := PricingInputs{S: in.S, K: in.K, T: in.T, R: in.R, Q: in.Q, Sigma: 1.0}
	if err := base.validateMarket(); err != nil {
		return ImpliedVolResult{}, err
	}
	if err := validateOptionType(optType); err != nil {
		return ImpliedVolResult{}, err
	}
	if in.T <= 0 {
		return ImpliedVolResult{}, fmt.Errorf("%w: expired option has no implied volatility", domain.ErrValidation)
	}
	if in.MarketPrice < 0 || !isFinite(in.MarketPrice) {
		return ImpliedVolResult{}, fmt.Errorf("%w: market price must be non-negative, got %v", domain.ErrValidation, in.MarketPrice)
	}
	if method != SolverBrent && method != SolverBisection && method != SolverNewton {
		return ImpliedVolResult{}, fmt.Errorf("%w: unknown solver method %q", domain.ErrValidation, method)
	}

	priceAt := func(sigma float64) float64 {
		inputs := base
		inputs.Sigma = sigma
		res, err := BlackScholes(inputs, optType)
		if err != nil {
			return math.NaN()
		}
		return res.Price
	}

	// No time value in the quote: the vol is pinned at the floor.
	intrinsic := intrinsicValue(in.S, in.K, optType)
	if in.MarketPrice <= intrinsic+ivTolerance {
		floor := priceAt(minImpliedVol)
		return ImpliedVolResult{
			ImpliedVol: minImpliedVol,
			Converged:  true,
			Method:     method,
			FinalPrice: floor,
			PriceError: math.Abs(floor - in.MarketPrice),
		}, nil
	}

	// Quote above the top of the bracket is unattainable.
	if in.MarketPrice > priceAt(sigmaMax) {
		return ImpliedVolResult{Method: method}, nil
	}

	// Quote at or below the bottom of the bracket carries effectively zero
	// time value beyond discounting; pin at the floor.
	if in.MarketPrice <= priceAt(sigmaMin) {
		floor := priceAt(minImpliedVol)
		return ImpliedVolResult{
			ImpliedVol: minImpliedVol,
			Converged:  true,
			Method:     method,
			FinalPrice: floor,
			PriceError: math.Abs(floor - in.MarketPrice),
		}, nil
	}

	objective := func(sigma float64) float64 {
		return priceAt(sigma) - in.MarketPrice
	}

	var (
		root       float64
		iterations int
		converged  bool
	)
	switch method {
	case SolverBrent:
		root, iterations, converged = brentSolve(objective, sigmaMin, sigmaMax, ivTolerance, ivMaxIterations)
	case SolverBisection:
		root, iterations, converged = bisectionSolve(objective, sigmaMin, sigmaMax, ivTolerance, ivMaxIterations)
	case SolverNewton:
		vega := func(sigma float64) float64 {
			inputs := base
			inputs.Sigma = sigma
			return bsVega(inputs)
		}
		root, iterations, converged = newtonSolve(objective, vega, newtonGuess(in), sigmaMin, sigmaMax, ivTolerance, ivMaxIterations)
	}

	result := ImpliedVolResult{
		ImpliedVol: root,
		Converged:  converged,
		Iterations: iterations,
		Method:     method,
	}
	if converged {
		result.FinalPrice = priceAt(root)
		result.PriceError = math.Abs(result.FinalPrice - in.MarketPrice)
	}
	return result, nil
}

// newtonGuess is the Brenner-Subrahmanyam approximation, clamped into the
// bracket.
func newtonGuess(in ImpliedVolInputs) float64 {
	guess := math.Sqrt(2.0*math.Pi/in.T) * in.MarketPrice / in.S
	if guess < sigmaMin {
		return sigmaMin
	}
	if guess > sigmaMax {
		return sigmaMax
	}
	return guess
}

// brentSolve finds a root of f in [lo, hi] by Brent's method: inverse
// quadratic interpolation with secant and bisection safeguards.
func brentSolve(f func(float64) float64, lo, hi, tol float64, maxIter int) (float64, int, bool) {
	a, b := lo, hi
	fa, fb := f(a), f(b)
	if math.IsNaN(fa) || math.IsNaN(fb) || fa*fb > 0 {
		return 0, 0, false
	}
	if math.Abs(fa) < math.Abs(fb) {
		a, b = b, a
		fa, fb = fb, fa
	}

	c, fc := a, fa
	var d float64
	bisected := true

	for iter := 1; iter <= maxIter; iter++ {
		if fb == 0 || math.Abs(b-a) < tol {
			return b, iter, true
		}

		var s float64
		if fa != fc && fb != fc {
			// Inverse quadratic interpolation.
			s = a*fb*fc/((fa-fb)*(fa-fc)) +
				b*fa*fc/((fb-fa)*(fb-fc)) +
				c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			// Secant step.
			s = b - fb*(b-a)/(fb-fa)
		}

		lower, upper := (3.0*a+b)/4.0, b
		if lower > upper {
			lower, upper = upper, lower
		}
		useBisection := s < lower || s > upper ||
			(bisected && math.Abs(s-b) >= math.Abs(b-c)/2.0) ||
			(!bisected && math.Abs(s-b) >= math.Abs(c-d)/2.0) ||
			(bisected && math.Abs(b-c) < tol) ||
			(!bisected && math.Abs(c-d) < tol)
		if useBisection {
			s = (a + b) / 2.0
			bisected = true
		} else {
			bisected = false
		}

		fs := f(s)
		d = c
		c, fc = b, fb
		if fa*fs < 0 {
			b, fb = s, fs
		} else {
			a, fa = s, fs
		}
		if math.Abs(fa) < math.Abs(fb) {
			a, b = b, a
			fa, fb = fb, fa
		}

		if math.Abs(fb) <= tol {
			return b, iter, true
		}
	}
	return b, ivMaxIterations, math.Abs(fb) <= tol
}

// bisectionSolve halves [lo, hi] until f crosses within tol.
func bisectionSolve(f func(float64) float64, lo, hi, tol float64, maxIter int) (float64, int, bool) {
	fLo, fHi := f(lo), f(hi)
	if math.IsNaN(fLo) || math.IsNaN(fHi) || fLo*fHi > 0 {
		return 0, 0, false
	}
	if fLo == 0 {
		return lo, 0, true
	}
	if fHi == 0 {
		return hi, 0, true
	}

	for iter := 1; iter <= maxIter; iter++ {
		mid := (lo + hi) / 2.0
		fMid := f(mid)
		if math.Abs(fMid) <= tol || (hi-lo)/2.0 < tol {
			return mid, iter, true
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return (lo + hi) / 2.0, maxIter, false
}

// newtonSolve iterates with the analytic vega; a step outside the bracket or
// a vanishing derivative falls back to Brent on the full bracket.
func newtonSolve(f, vega func(float64) float64, guess, lo, hi, tol float64, maxIter int) (float64, int, bool) {
	x := guess
	for iter := 1; iter <= maxIter; iter++ {
		fx := f(x)
		if math.Abs(fx) <= tol {
			return x, iter, true
		}
		v := vega(x)
		if math.Abs(v) < 1e-10 {
			root, extra, ok := brentSolve(f, lo, hi, tol, maxIter)
			return root, iter + extra, ok
		}
		next := x - fx/v
		if next < lo || next > hi || math.IsNaN(next) {
			root, extra, ok := brentSolve(f, lo, hi, tol, maxIter)
			return root, iter + extra, ok
		}
		x = next
	}
	return x, maxIter, false
}
