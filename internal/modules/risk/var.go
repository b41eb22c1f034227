package risk

import (
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/pkg/formulas"
)

// TailRisk reports VaR and CVaR at the 95% and 99% levels under the
// historical, parametric-normal and Cornish-Fisher estimators. All figures
// are positive loss magnitudes.
type TailRisk struct {
	VaR95        float64 `json:"var_95"`
	VaR99        float64 `json:"var_99"`
	CVaR95       float64 `json:"cvar_95"`
	CVaR99       float64 `json:"cvar_99"`
	Parametric95 float64 `json:"parametric_95"`
	Parametric99 float64 `json:"parametric_99"`
	Modified95   float64 `json:"modified_95"`
	Modified99   float64 `json:"modified_99"`
	Observations int     `json:"observations"`
}

// ComputeTailRisk estimates tail risk from a daily return sample. At least
// two observations are required.
func ComputeTailRisk(returns []float64) (TailRisk, error) {
	if len(returns) < 2 {
		return TailRisk{}, fmt.Errorf("%w: need at least 2 returns for tail risk, got %d", domain.ErrDataUnavailable, len(returns))
	}
	for i, r := range returns {
		if !isFinite(r) {
			return TailRisk{}, fmt.Errorf("%w: return sample %d is %v", domain.ErrNumerical, i, r)
		}
	}

	mu := formulas.Mean(returns)
	sigma := formulas.StdDev(returns)
	skew := formulas.Skewness(returns)
	kurt := formulas.ExcessKurtosis(returns)

	tr := TailRisk{
		VaR95:        lossMagnitude(formulas.CalculateHistoricalVaR(returns, 0.95)),
		VaR99:        lossMagnitude(formulas.CalculateHistoricalVaR(returns, 0.99)),
		CVaR95:       lossMagnitude(formulas.CalculateCVaR(returns, 0.95)),
		CVaR99:       lossMagnitude(formulas.CalculateCVaR(returns, 0.99)),
		Parametric95: lossMagnitude(parametricQuantile(mu, sigma, 0.05)),
		Parametric99: lossMagnitude(parametricQuantile(mu, sigma, 0.01)),
		Modified95:   lossMagnitude(cornishFisherQuantile(mu, sigma, skew, kurt, 0.05)),
		Modified99:   lossMagnitude(cornishFisherQuantile(mu, sigma, skew, kurt, 0.01)),
		Observations: len(returns),
	}
	return tr, nil
}

// parametricQuantile is the normal lower-tail return quantile mu + z*sigma.
func parametricQuantile(mu, sigma, alpha float64) float64 {
	z := distuv.UnitNormal.Quantile(alpha)
	return mu + z*sigma
}

// cornishFisherQuantile adjusts the normal z-score for skew and excess
// kurtosis before scaling:
// z_cf = z + (z^2-1)S/6 + (z^3-3z)K/24 - (2z^3-5z)S^2/36.
func cornishFisherQuantile(mu, sigma, skew, kurt, alpha float64) float64 {
	z := distuv.UnitNormal.Quantile(alpha)
	zcf := z +
		(z*z-1)*skew/6 +
		(z*z*z-3*z)*kurt/24 -
		(2*z*z*z-5*z)*skew*skew/36
	return mu + zcf*sigma
}
