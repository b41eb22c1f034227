package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
)

// warmupCalendarDays of pre-start history are fetched with every run so
// the longest indicator lookback is warm by the first trading day.
const warmupCalendarDays = 365

// Service resolves market data for run descriptions and hands them to the
// engine. Job runners and the CLI go through here; the engine itself never
// fetches.
type Service struct {
	engine *Engine
	source domain.MarketDataSource
	log    zerolog.Logger
}

// NewService creates a backtest service over a market data source.
func NewService(engine *Engine, source domain.MarketDataSource, log zerolog.Logger) *Service {
	return &Service{
		engine: engine,
		source: source,
		log:    log.With().Str("component", "backtest_service").Logger(),
	}
}

// Run resolves prices, benchmark and risk-free series for the config and
// executes it.
func (s *Service) Run(ctx context.Context, cfg BacktestConfig, progress ProgressFunc) (*BacktestResult, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	panel, benchmark, riskFree, err := s.resolve(ctx, cfg.Symbols, cfg.StartDate, cfg.EndDate, cfg.Benchmark, cfg.RiskFreeSource)
	if err != nil {
		return nil, err
	}

	return s.engine.Run(ctx, RunInput{
		Config:           cfg,
		Panel:            panel,
		BenchmarkReturns: benchmark,
		RiskFreeRates:    riskFree,
		Progress:         progress,
	})
}

// CompareRequest is the wire shape of a strategy comparison: N strategies
// sharing one universe, period and cost model.
type CompareRequest struct {
	Strategies     []TradingStrategy `json:"strategies"`
	Symbols        []string          `json:"symbols"`
	StartDate      time.Time         `json:"start_date"`
	EndDate        time.Time         `json:"end_date"`
	InitialCapital float64           `json:"initial_capital"`
	Costs          CostModel         `json:"costs"`
	Benchmark      string            `json:"benchmark,omitempty"`
	RiskFreeSource string            `json:"risk_free_source,omitempty"`
}

// Normalize fills strategy defaults and canonicalizes dates.
func (r *CompareRequest) Normalize() {
	for i := range r.Strategies {
		r.Strategies[i].Normalize()
	}
	r.StartDate = domain.Day(r.StartDate)
	r.EndDate = domain.Day(r.EndDate)
}

// Validate checks the shared fields and every strategy.
func (r CompareRequest) Validate() error {
	if len(r.Strategies) < 2 {
		return fmt.Errorf("%w: comparison needs at least 2 strategies, got %d",
			domain.ErrValidation, len(r.Strategies))
	}
	probe := BacktestConfig{
		Strategy:       r.Strategies[0],
		Symbols:        r.Symbols,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		InitialCapital: r.InitialCapital,
		Costs:          r.Costs,
	}
	if err := probe.Validate(); err != nil {
		return err
	}
	for i, strategy := range r.Strategies[1:] {
		if err := strategy.Validate(); err != nil {
			return fmt.Errorf("strategy %d: %w", i+2, err)
		}
	}
	return nil
}

// Compare resolves market data once and runs the comparison.
func (s *Service) Compare(ctx context.Context, req CompareRequest, progress ProgressFunc) (*CompareResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	panel, benchmark, riskFree, err := s.resolve(ctx, req.Symbols, req.StartDate, req.EndDate, req.Benchmark, req.RiskFreeSource)
	if err != nil {
		return nil, err
	}

	return s.engine.Compare(ctx, CompareInput{
		Strategies:       req.Strategies,
		Symbols:          req.Symbols,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		InitialCapital:   req.InitialCapital,
		Costs:            req.Costs,
		Panel:            panel,
		BenchmarkReturns: benchmark,
		RiskFreeRates:    riskFree,
		Progress:         progress,
	})
}

// resolve fetches the price panel with warm-up padding plus the optional
// benchmark and risk-free series. A missing benchmark or rate series
// degrades the run rather than failing it.
func (s *Service) resolve(ctx context.Context, symbols []string, start, end time.Time, benchmark, riskFreeSource string) (*domain.PricePanel, []float64, []float64, error) {
	fetchStart := start.AddDate(0, 0, -warmupCalendarDays)
	panel, err := s.source.FetchPrices(ctx, symbols, fetchStart, end)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("fetch prices: %w", err)
	}

	var benchmarkReturns []float64
	if benchmark != "" {
		benchmarkReturns, err = s.source.FetchBenchmarkReturns(ctx, benchmark, start, end)
		if err != nil {
			s.log.Warn().Err(err).Str("benchmark", benchmark).Msg("Benchmark unavailable, running without")
			benchmarkReturns = nil
		}
	}

	var riskFree []float64
	if riskFreeSource != "" {
		riskFree, err = s.source.FetchRiskFreeRate(ctx, riskFreeSource, start, end)
		if err != nil {
			s.log.Warn().Err(err).Str("source", riskFreeSource).Msg("Risk-free rates unavailable, assuming zero")
			riskFree = nil
		}
	}

	return panel, benchmarkReturns, riskFree, nil
}
