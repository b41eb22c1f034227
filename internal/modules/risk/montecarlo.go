package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/pkg/formulas"
)

// maxStoredPaths caps how many full simulation paths a result carries for
// charting; percentiles always use every simulation.
const maxStoredPaths = 100

// MonteCarloConfig drives a GBM projection. Drift and volatility are
// estimated per day from the supplied historical returns; the same Seed
// reproduces the same simulation.
type MonteCarloConfig struct {
	InitialValue float64   `json:"initial_value"`
	Returns      []float64 `json:"returns"`
	Horizon      int       `json:"horizon"`
	Simulations  int       `json:"simulations"`
	TargetReturn float64   `json:"target_return"`
	Seed         int64     `json:"seed"`
}

// Validate checks the simulation parameters.
func (c MonteCarloConfig) Validate() error {
	if c.InitialValue <= 0 {
		return fmt.Errorf("%w: initial value must be positive, got %.4f", domain.ErrValidation, c.InitialValue)
	}
	if len(c.Returns) < 2 {
		return fmt.Errorf("%w: need at least 2 historical returns, got %d", domain.ErrDataUnavailable, len(c.Returns))
	}
	if c.Horizon < 1 {
		return fmt.Errorf("%w: horizon must be at least 1 day, got %d", domain.ErrValidation, c.Horizon)
	}
	if c.Simulations < 1 {
		return fmt.Errorf("%w: need at least 1 simulation, got %d", domain.ErrValidation, c.Simulations)
	}
	return nil
}

// MonteCarloResult summarizes the terminal-return distribution of the
// simulated paths.
type MonteCarloResult struct {
	Percentiles     map[string]float64 `json:"percentiles"`
	ProbLoss        float64            `json:"prob_loss"`
	ProbTarget      float64            `json:"prob_target"`
	Paths           [][]float64        `json:"paths"`
	Horizon         int                `json:"horizon"`
	Simulations     int                `json:"simulations"`
	DailyDrift      float64            `json:"daily_drift"`
	DailyVolatility float64            `json:"daily_volatility"`
}

// RunMonteCarlo simulates geometric Brownian motion paths
// S_{t+1} = S_t * exp((mu - sigma^2/2) + sigma*Z) with a one-day step.
// Cancellation is checked between simulations.
func RunMonteCarlo(ctx context.Context, cfg MonteCarloConfig) (*MonteCarloResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, r := range cfg.Returns {
		if !isFinite(r) {
			return nil, fmt.Errorf("%w: historical return %d is %v", domain.ErrNumerical, i, r)
		}
	}

	mu := formulas.Mean(cfg.Returns)
	sigma := formulas.StdDev(cfg.Returns)
	drift := mu - 0.5*sigma*sigma

	norm := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)+1),
	}

	stored := cfg.Simulations
	if stored > maxStoredPaths {
		stored = maxStoredPaths
	}

	terminal := make([]float64, cfg.Simulations)
	paths := make([][]float64, 0, stored)
	for m := 0; m < cfg.Simulations; m++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: monte carlo aborted after %d simulations", domain.ErrCancelled, m)
		}

		var path []float64
		keep := m < stored
		if keep {
			path = make([]float64, 0, cfg.Horizon+1)
			path = append(path, cfg.InitialValue)
		}

		v := cfg.InitialValue
		for t := 0; t < cfg.Horizon; t++ {
			v *= math.Exp(drift + sigma*norm.Rand())
			if keep {
				path = append(path, v)
			}
		}
		terminal[m] = v/cfg.InitialValue - 1
		if keep {
			paths = append(paths, path)
		}
	}

	result := &MonteCarloResult{
		Percentiles: map[string]float64{
			"p5":  formulas.Quantile(terminal, 0.05),
			"p25": formulas.Quantile(terminal, 0.25),
			"p50": formulas.Quantile(terminal, 0.50),
			"p75": formulas.Quantile(terminal, 0.75),
			"p95": formulas.Quantile(terminal, 0.95),
		},
		Paths:           paths,
		Horizon:         cfg.Horizon,
		Simulations:     cfg.Simulations,
		DailyDrift:      mu,
		DailyVolatility: sigma,
	}
	for _, r := range terminal {
		if r < 0 {
			result.ProbLoss++
		}
		if r >= cfg.TargetReturn {
			result.ProbTarget++
		}
	}
	result.ProbLoss /= float64(cfg.Simulations)
	result.ProbTarget /= float64(cfg.Simulations)
	return result, nil
}
