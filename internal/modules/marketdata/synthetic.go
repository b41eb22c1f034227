package marketdata

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/quantleap/quantd/internal/domain"
)

// GBMConfig parameterizes the synthetic bar generator. Drift and Vol are
// annualized; the same Seed always reproduces the same path.
type GBMConfig struct {
	Start  time.Time `json:"start"`
	Days   int       `json:"days"`
	Price  float64   `json:"price"`
	Drift  float64   `json:"drift"`
	Vol    float64   `json:"vol"`
	Volume float64   `json:"volume"`
	Seed   int64     `json:"seed"`
}

// Validate checks the generator parameters.
func (c GBMConfig) Validate() error {
	if c.Days < 1 {
		return fmt.Errorf("%w: need at least 1 day, got %d", domain.ErrValidation, c.Days)
	}
	if c.Price <= 0 {
		return fmt.Errorf("%w: initial price must be positive, got %.4f", domain.ErrValidation, c.Price)
	}
	if c.Vol < 0 {
		return fmt.Errorf("%w: volatility must be non-negative, got %.4f", domain.ErrValidation, c.Vol)
	}
	if c.Volume < 0 {
		return fmt.Errorf("%w: volume must be non-negative, got %.4f", domain.ErrValidation, c.Volume)
	}
	return nil
}

// GenerateGBM returns a deterministic geometric Brownian motion bar path:
// close_{t+1} = close_t * exp((drift - vol^2/2)dt + vol*sqrt(dt)*Z) with
// dt = 1/252. Highs and lows pad the open/close range in proportion to the
// daily volatility so the OHLC invariants always hold.
func GenerateGBM(cfg GBMConfig) ([]domain.Bar, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	norm := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)+1),
	}

	dt := 1.0 / 252.0
	driftTerm := (cfg.Drift - 0.5*cfg.Vol*cfg.Vol) * dt
	volTerm := cfg.Vol * math.Sqrt(dt)
	spread := 0.5 * volTerm

	bars := make([]domain.Bar, cfg.Days)
	prev := cfg.Price
	for i := 0; i < cfg.Days; i++ {
		open := prev
		c := prev
		if i > 0 {
			c = prev * math.Exp(driftTerm+volTerm*norm.Rand())
		}
		high := math.Max(open, c) * (1 + spread)
		low := math.Min(open, c) * (1 - spread)

		bars[i] = domain.Bar{
			Date:   domain.Day(cfg.Start.AddDate(0, 0, i)),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  c,
			Volume: cfg.Volume,
		}
		prev = c
	}
	return bars, nil
}
