package risk

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/quantleap/quantd/internal/domain"
)

// minCorrelationSamples is the smallest common return history accepted for
// a correlation estimate.
const minCorrelationSamples = 20

// CorrelationResult holds the pairwise Pearson matrix over the sorted
// symbol list plus the portfolio-level concentration summaries.
type CorrelationResult struct {
	Symbols              []string    `json:"symbols"`
	Matrix               [][]float64 `json:"matrix"`
	DiversificationRatio float64     `json:"diversification_ratio"`
	EffectiveAssets      float64     `json:"effective_assets"`
	Observations         int         `json:"observations"`
}

// ComputeCorrelation builds the Pearson correlation matrix from per-symbol
// daily returns. Series are aligned by truncating each to the shortest
// common length, which must be at least 20 samples.
func ComputeCorrelation(returns map[string][]float64) (*CorrelationResult, error) {
	if len(returns) == 0 {
		return nil, fmt.Errorf("%w: no return series", domain.ErrValidation)
	}

	symbols := make([]string, 0, len(returns))
	common := math.MaxInt
	for sym, series := range returns {
		symbols = append(symbols, sym)
		if len(series) < common {
			common = len(series)
		}
	}
	sort.Strings(symbols)

	if common < minCorrelationSamples {
		return nil, fmt.Errorf("%w: common return history is %d samples, need at least %d",
			domain.ErrDataUnavailable, common, minCorrelationSamples)
	}

	// Column-per-symbol observation matrix over the trailing common window.
	data := mat.NewDense(common, len(symbols), nil)
	for j, sym := range symbols {
		series := returns[sym]
		tail := series[len(series)-common:]
		for i, v := range tail {
			if !isFinite(v) {
				return nil, fmt.Errorf("%w: %s return sample %d is %v", domain.ErrNumerical, sym, i, v)
			}
			data.Set(i, j, v)
		}
	}

	corr := mat.NewSymDense(len(symbols), nil)
	stat.CorrelationMatrix(corr, data, nil)

	n := len(symbols)
	matrix := make([][]float64, n)
	var offDiagAbs, offDiagSum float64
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			v := corr.At(i, j)
			if i == j {
				v = 1
			}
			matrix[i][j] = v
			if i != j {
				offDiagAbs += math.Abs(v)
				offDiagSum += v
			}
		}
	}

	result := &CorrelationResult{
		Symbols:              symbols,
		Matrix:               matrix,
		DiversificationRatio: 1,
		EffectiveAssets:      1,
		Observations:         common,
	}
	if n > 1 {
		pairs := float64(n * (n - 1))
		meanAbs := offDiagAbs / pairs
		meanRho := offDiagSum / pairs
		result.DiversificationRatio = 1 - meanAbs
		denom := 1 + float64(n-1)*meanRho
		if denom > 0 {
			result.EffectiveAssets = float64(n) * (1 - meanRho) / denom
		} else {
			result.EffectiveAssets = float64(n)
		}
		if result.EffectiveAssets < 1 {
			result.EffectiveAssets = 1
		}
	}
	return result, nil
}
