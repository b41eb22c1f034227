package jobs

import (
	"context"
	"fmt"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/backtest"
	"github.com/quantleap/quantd/internal/modules/risk"
)

// BacktestRunner executes backtest jobs through the backtest service.
type BacktestRunner struct {
	svc *backtest.Service
}

// NewBacktestRunner creates a backtest runner.
func NewBacktestRunner(svc *backtest.Service) *BacktestRunner {
	return &BacktestRunner{svc: svc}
}

// Run resolves data and executes the configured backtest.
func (r *BacktestRunner) Run(ctx context.Context, job *Job, progress *ProgressReporter) (any, error) {
	cfg, ok := job.Input().(backtest.BacktestConfig)
	if !ok {
		return nil, fmt.Errorf("%w: job %s carries no backtest config", domain.ErrValidation, job.ID)
	}
	progress.ReportMessage("resolving market data")
	return r.svc.Run(ctx, cfg, progress.Report)
}

// CompareRunner executes strategy-comparison jobs.
type CompareRunner struct {
	svc *backtest.Service
}

// NewCompareRunner creates a comparison runner.
func NewCompareRunner(svc *backtest.Service) *CompareRunner {
	return &CompareRunner{svc: svc}
}

// Run resolves data once and backtests every strategy in the request.
func (r *CompareRunner) Run(ctx context.Context, job *Job, progress *ProgressReporter) (any, error) {
	req, ok := job.Input().(backtest.CompareRequest)
	if !ok {
		return nil, fmt.Errorf("%w: job %s carries no comparison request", domain.ErrValidation, job.ID)
	}
	progress.ReportMessage("resolving market data")
	return r.svc.Compare(ctx, req, progress.Report)
}

// MonteCarloRunner executes GBM projection jobs.
type MonteCarloRunner struct{}

// NewMonteCarloRunner creates a Monte Carlo runner.
func NewMonteCarloRunner() *MonteCarloRunner {
	return &MonteCarloRunner{}
}

// Run simulates the configured paths.
func (r *MonteCarloRunner) Run(ctx context.Context, job *Job, progress *ProgressReporter) (any, error) {
	cfg, ok := job.Input().(risk.MonteCarloConfig)
	if !ok {
		return nil, fmt.Errorf("%w: job %s carries no monte carlo config", domain.ErrValidation, job.ID)
	}
	progress.ReportMessage(fmt.Sprintf("simulating %d paths", cfg.Simulations))
	return risk.RunMonteCarlo(ctx, cfg)
}

// StressInput is the payload of a stress-test job: scenarios applied to a
// snapshot of portfolio positions.
type StressInput struct {
	Scenarios []risk.StressScenario `json:"scenarios"`
	Positions []risk.StressPosition `json:"positions"`
}

// StressRunner executes scenario stress-test jobs.
type StressRunner struct{}

// NewStressRunner creates a stress-test runner.
func NewStressRunner() *StressRunner {
	return &StressRunner{}
}

// Run applies every scenario to the position book.
func (r *StressRunner) Run(ctx context.Context, job *Job, progress *ProgressReporter) (any, error) {
	input, ok := job.Input().(StressInput)
	if !ok {
		return nil, fmt.Errorf("%w: job %s carries no stress input", domain.ErrValidation, job.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: stress test aborted", domain.ErrCancelled)
	}
	progress.ReportMessage(fmt.Sprintf("applying %d scenarios", len(input.Scenarios)))
	return risk.RunStressTest(input.Scenarios, input.Positions)
}
