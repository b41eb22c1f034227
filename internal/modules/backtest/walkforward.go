package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quantleap/quantd/internal/domain"
)

// Default threshold grids searched when optimisation is on and the config
// names none.
var (
	defaultEntryGrid = []float64{0.4, 0.5, 0.6, 0.7}
	defaultExitGrid  = []float64{0.3, 0.4, 0.5}
)

// runWalkForward partitions the run period into rolling train/test windows
// and evaluates the strategy out of sample. Without optimisation the whole
// period is one window and the base run stands in for both sides; with
// optimisation each training window grid-searches the entry/exit threshold
// pair by Sharpe and carries the winner into the following test window.
func (e *Engine) runWalkForward(ctx context.Context, cfg BacktestConfig, data *runData, input RunInput, base *BacktestResult) (*WalkForwardResult, error) {
	wf := *cfg.WalkForward

	if !wf.Optimize {
		window := WalkForwardWindow{
			TrainStart:     cfg.StartDate,
			TrainEnd:       cfg.EndDate,
			TestStart:      cfg.StartDate,
			TestEnd:        cfg.EndDate,
			EntryThreshold: cfg.Strategy.EntryThreshold,
			ExitThreshold:  cfg.Strategy.ExitThreshold,
			TrainSharpe:    base.Metrics.SharpeRatio,
			TestSharpe:     base.Metrics.SharpeRatio,
			TestReturn:     base.Metrics.TotalReturn,
		}
		return &WalkForwardResult{
			Windows:          []WalkForwardWindow{window},
			Dates:            base.Dates,
			StitchedEquity:   base.EquityCurve,
			OverfittingScore: 0,
		}, nil
	}

	axis := base.Dates
	step := wf.StepDays
	if step <= 0 {
		step = wf.TestDays
	}

	type span struct{ trainLo, trainHi, testLo, testHi int }
	var spans []span
	for lo := 0; lo+wf.TrainDays+wf.TestDays <= len(axis); lo += step {
		spans = append(spans, span{
			trainLo: lo,
			trainHi: lo + wf.TrainDays,
			testLo:  lo + wf.TrainDays,
			testHi:  lo + wf.TrainDays + wf.TestDays,
		})
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: %d trading days cannot fit a %d+%d walk-forward window",
			domain.ErrDataUnavailable, len(axis), wf.TrainDays, wf.TestDays)
	}

	entryGrid := wf.EntryThresholds
	if len(entryGrid) == 0 {
		entryGrid = defaultEntryGrid
	}
	exitGrid := wf.ExitThresholds
	if len(exitGrid) == 0 {
		exitGrid = defaultExitGrid
	}

	result := &WalkForwardResult{
		Windows: make([]WalkForwardWindow, 0, len(spans)),
	}

	var divergence float64
	prevEnd := cfg.InitialCapital

	for wi, sp := range spans {
		if err := ctx.Err(); err != nil {
			return nil, mapContextErr(err, fmt.Sprintf("walk-forward window %d", wi+1))
		}

		bestSharpe := math.Inf(-1)
		bestEntry, bestExit := cfg.Strategy.EntryThreshold, cfg.Strategy.ExitThreshold
		for _, et := range entryGrid {
			for _, xt := range exitGrid {
				train, err := e.runSlice(ctx, cfg, data, input, axis[sp.trainLo], axis[sp.trainHi-1], sp.trainLo, sp.trainHi, et, xt, cfg.InitialCapital)
				if err != nil {
					return nil, err
				}
				if train.Metrics.SharpeRatio > bestSharpe {
					bestSharpe = train.Metrics.SharpeRatio
					bestEntry, bestExit = et, xt
				}
			}
		}

		test, err := e.runSlice(ctx, cfg, data, input, axis[sp.testLo], axis[sp.testHi-1], sp.testLo, sp.testHi, bestEntry, bestExit, prevEnd)
		if err != nil {
			return nil, err
		}

		result.Windows = append(result.Windows, WalkForwardWindow{
			TrainStart:     axis[sp.trainLo],
			TrainEnd:       axis[sp.trainHi-1],
			TestStart:      axis[sp.testLo],
			TestEnd:        axis[sp.testHi-1],
			EntryThreshold: bestEntry,
			ExitThreshold:  bestExit,
			TrainSharpe:    bestSharpe,
			TestSharpe:     test.Metrics.SharpeRatio,
			TestReturn:     test.Metrics.TotalReturn,
		})
		result.Dates = append(result.Dates, test.Dates...)
		result.StitchedEquity = append(result.StitchedEquity, test.EquityCurve...)
		prevEnd = test.FinalValue

		divergence += windowDivergence(bestSharpe, test.Metrics.SharpeRatio)

		if input.Progress != nil {
			input.Progress(wi+1, len(spans), fmt.Sprintf("Walk-forward window %d/%d", wi+1, len(spans)))
		}
	}

	result.OverfittingScore = divergence / float64(len(result.Windows))

	e.log.Info().
		Int("windows", len(result.Windows)).
		Float64("overfitting_score", result.OverfittingScore).
		Msg("Walk-forward analysis complete")

	return result, nil
}

// runSlice runs one train or test sub-period with overridden thresholds on
// the shared working set. Capital carries across test windows so the
// stitched curve is continuous.
func (e *Engine) runSlice(ctx context.Context, cfg BacktestConfig, data *runData, input RunInput, start, end time.Time, lo, hi int, entryThreshold, exitThreshold, capital float64) (*BacktestResult, error) {
	sub := cfg
	sub.WalkForward = nil
	sub.StartDate = start
	sub.EndDate = end
	sub.InitialCapital = capital
	sub.Strategy.EntryThreshold = entryThreshold
	sub.Strategy.ExitThreshold = exitThreshold

	return e.runPeriod(ctx, sub, data, sliceRange(input.BenchmarkReturns, lo, hi), sliceRange(input.RiskFreeRates, lo, hi), nil)
}

// windowDivergence normalises the train/test Sharpe gap of one window to
// [0,1]. A unit gap against a sub-unit train Sharpe saturates the score.
func windowDivergence(train, test float64) float64 {
	denom := math.Abs(train)
	if denom < 1 {
		denom = 1
	}
	d := math.Abs(train-test) / denom
	if d > 1 {
		return 1
	}
	return d
}

// sliceRange clips [lo, hi) to the series bounds, nil when out of range.
func sliceRange(series []float64, lo, hi int) []float64 {
	if lo >= len(series) {
		return nil
	}
	if hi > len(series) {
		hi = len(series)
	}
	return series[lo:hi]
}
