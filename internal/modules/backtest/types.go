// Package backtest runs trading strategies over historical price panels:
// signal evaluation, position sizing, cost-modelled execution against a
// cash-constrained portfolio, daily snapshots, and the derived performance
// metrics. Walk-forward validation and multi-strategy comparison build on
// the single-run engine.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/risk"
	"github.com/quantleap/quantd/internal/modules/signals"
)

// Position sizing methods.
const (
	SizingEqualWeight   = "EQUAL_WEIGHT"
	SizingVolNormalized = "VOLATILITY_NORMALIZED"
	SizingKelly         = "KELLY_CRITERION"
	SizingFixedDollar   = "FIXED_DOLLAR"
	SizingRiskParity    = "RISK_PARITY"
)

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Sizing defaults, applied by Normalize when the strategy leaves a field
// at its zero value.
const (
	defaultPositionFraction = 0.10
	defaultMaxPositionSize  = 0.25
	defaultMaxPositions     = 10
	defaultTargetVolatility = 0.15
)

// TradingStrategy describes when to enter, when to exit, and how much to
// buy. Entry and exit rules blend into weighted composites in [0,1]; a
// side trades when its composite reaches its threshold. StopLossPct and
// TakeProfitPct are fractional (0.08 = 8%) and disabled at zero.
type TradingStrategy struct {
	Name            string         `json:"name"`
	EntryRules      []signals.Rule `json:"entry_rules"`
	ExitRules       []signals.Rule `json:"exit_rules"`
	EntryThreshold  float64        `json:"entry_threshold"`
	ExitThreshold   float64        `json:"exit_threshold"`
	SizingMethod    string         `json:"sizing_method"`
	MaxPositionSize float64        `json:"max_position_size"`
	MaxPositions    int            `json:"max_positions"`
	StopLossPct     float64        `json:"stop_loss_pct"`
	TakeProfitPct   float64        `json:"take_profit_pct"`
	MinHoldingDays  int            `json:"min_holding_days"`

	// TargetVolatility feeds VOLATILITY_NORMALIZED sizing; FixedDollar
	// feeds FIXED_DOLLAR. Both ignored by the other methods.
	TargetVolatility float64 `json:"target_volatility,omitempty"`
	FixedDollar      float64 `json:"fixed_dollar,omitempty"`

	// RebalanceDays spaces entry decisions that many trading days apart;
	// 0 or 1 evaluates entries every day. Exits, stop-losses and
	// take-profits are never gated.
	RebalanceDays int `json:"rebalance_days,omitempty"`

	// MaxSectorWeight caps the summed mark-to-market weight of positions
	// sharing a sector label from BacktestConfig.Sectors. Zero disables
	// the cap; unlabelled symbols are never capped.
	MaxSectorWeight float64 `json:"max_sector_weight,omitempty"`
}

// Normalize fills unset fields with the engine defaults.
func (s *TradingStrategy) Normalize() {
	if s.SizingMethod == "" {
		s.SizingMethod = SizingEqualWeight
	}
	if s.MaxPositionSize <= 0 {
		s.MaxPositionSize = defaultMaxPositionSize
	}
	if s.MaxPositions <= 0 {
		s.MaxPositions = defaultMaxPositions
	}
	if s.TargetVolatility <= 0 {
		s.TargetVolatility = defaultTargetVolatility
	}
}

// Validate checks the strategy fields.
func (s TradingStrategy) Validate() error {
	switch s.SizingMethod {
	case SizingEqualWeight, SizingVolNormalized, SizingKelly, SizingFixedDollar, SizingRiskParity:
	default:
		return fmt.Errorf("%w: unknown sizing method %q", domain.ErrValidation, s.SizingMethod)
	}
	if s.EntryThreshold < 0 || s.EntryThreshold > 1 {
		return fmt.Errorf("%w: entry threshold %.4f outside [0,1]", domain.ErrValidation, s.EntryThreshold)
	}
	if s.ExitThreshold < 0 || s.ExitThreshold > 1 {
		return fmt.Errorf("%w: exit threshold %.4f outside [0,1]", domain.ErrValidation, s.ExitThreshold)
	}
	if s.MaxPositionSize <= 0 || s.MaxPositionSize > 1 {
		return fmt.Errorf("%w: max position size %.4f outside (0,1]", domain.ErrValidation, s.MaxPositionSize)
	}
	if s.MaxPositions < 1 {
		return fmt.Errorf("%w: max positions %d below 1", domain.ErrValidation, s.MaxPositions)
	}
	if s.StopLossPct < 0 || s.TakeProfitPct < 0 {
		return fmt.Errorf("%w: negative stop-loss or take-profit", domain.ErrValidation)
	}
	if s.MinHoldingDays < 0 {
		return fmt.Errorf("%w: negative min holding days", domain.ErrValidation)
	}
	if s.RebalanceDays < 0 {
		return fmt.Errorf("%w: negative rebalance cadence", domain.ErrValidation)
	}
	if s.MaxSectorWeight < 0 || s.MaxSectorWeight > 1 {
		return fmt.Errorf("%w: max sector weight %.4f outside [0,1]", domain.ErrValidation, s.MaxSectorWeight)
	}
	if s.SizingMethod == SizingFixedDollar && s.FixedDollar < 0 {
		return fmt.Errorf("%w: negative fixed dollar amount", domain.ErrValidation)
	}
	if err := signals.ValidateRules(s.EntryRules); err != nil {
		return fmt.Errorf("entry rules: %w", err)
	}
	if err := signals.ValidateRules(s.ExitRules); err != nil {
		return fmt.Errorf("exit rules: %w", err)
	}
	return nil
}

// CostModel parameterizes execution friction. Zero values mean free,
// frictionless fills.
type CostModel struct {
	FixedPerTrade float64 `json:"fixed_per_trade"`
	PctPerTrade   float64 `json:"pct_per_trade"`
	SlippageBps   float64 `json:"slippage_bps"`
	SpreadBps     float64 `json:"spread_bps"`
	ImpactCoeff   float64 `json:"impact_coeff"`
}

// Validate rejects negative cost parameters.
func (c CostModel) Validate() error {
	if c.FixedPerTrade < 0 || c.PctPerTrade < 0 || c.SlippageBps < 0 || c.SpreadBps < 0 || c.ImpactCoeff < 0 {
		return fmt.Errorf("%w: cost model parameters must be non-negative", domain.ErrValidation)
	}
	return nil
}

// WalkForwardConfig partitions a run into rolling train/test windows.
// Day counts are trading days on the panel axis. When Optimize is set the
// engine grid-searches entry/exit thresholds on each training window and
// carries the best pair into the following test window; empty grids fall
// back to the default threshold grid.
type WalkForwardConfig struct {
	TrainDays       int       `json:"train_days"`
	TestDays        int       `json:"test_days"`
	StepDays        int       `json:"step_days"`
	Optimize        bool      `json:"optimize"`
	EntryThresholds []float64 `json:"entry_thresholds,omitempty"`
	ExitThresholds  []float64 `json:"exit_thresholds,omitempty"`
}

// Validate checks the window geometry.
func (w WalkForwardConfig) Validate() error {
	if w.TrainDays < 0 || w.TestDays < 0 || w.StepDays < 0 {
		return fmt.Errorf("%w: negative walk-forward window size", domain.ErrValidation)
	}
	if w.Optimize {
		if w.TrainDays < 2 {
			return fmt.Errorf("%w: walk-forward optimisation needs train_days >= 2", domain.ErrValidation)
		}
		if w.TestDays < 2 {
			return fmt.Errorf("%w: walk-forward optimisation needs test_days >= 2", domain.ErrValidation)
		}
		for _, t := range w.EntryThresholds {
			if t < 0 || t > 1 {
				return fmt.Errorf("%w: entry threshold grid value %.4f outside [0,1]", domain.ErrValidation, t)
			}
		}
		for _, t := range w.ExitThresholds {
			if t < 0 || t > 1 {
				return fmt.Errorf("%w: exit threshold grid value %.4f outside [0,1]", domain.ErrValidation, t)
			}
		}
	}
	return nil
}

// BacktestConfig is the full description of one run.
type BacktestConfig struct {
	Strategy       TradingStrategy    `json:"strategy"`
	Symbols        []string           `json:"symbols"`
	StartDate      time.Time          `json:"start_date"`
	EndDate        time.Time          `json:"end_date"`
	InitialCapital float64            `json:"initial_capital"`
	Costs          CostModel          `json:"costs"`
	Benchmark      string             `json:"benchmark,omitempty"`
	RiskFreeSource string             `json:"risk_free_source,omitempty"`
	WalkForward    *WalkForwardConfig `json:"walk_forward,omitempty"`

	// Sectors labels symbols for the strategy's sector weight cap.
	// Symbols missing from the map are treated as unlabelled.
	Sectors map[string]string `json:"sectors,omitempty"`
}

// MaxUniverseSize bounds the symbol universe of a single run.
const MaxUniverseSize = 1000

// Normalize fills strategy defaults and canonicalizes dates to civil days.
func (c *BacktestConfig) Normalize() {
	c.Strategy.Normalize()
	c.StartDate = domain.Day(c.StartDate)
	c.EndDate = domain.Day(c.EndDate)
}

// Validate checks the run description end to end.
func (c BacktestConfig) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: empty symbol universe", domain.ErrValidation)
	}
	if len(c.Symbols) > MaxUniverseSize {
		return fmt.Errorf("%w: universe has %d symbols, cap is %d", domain.ErrValidation, len(c.Symbols), MaxUniverseSize)
	}
	for _, sym := range c.Symbols {
		if sym == "" {
			return fmt.Errorf("%w: empty symbol in universe", domain.ErrValidation)
		}
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s",
			domain.ErrValidation, c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	if c.InitialCapital <= 0 || math.IsNaN(c.InitialCapital) || math.IsInf(c.InitialCapital, 0) {
		return fmt.Errorf("%w: initial capital must be positive and finite", domain.ErrValidation)
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Costs.Validate(); err != nil {
		return err
	}
	if c.WalkForward != nil {
		if err := c.WalkForward.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Position is one open long position.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      float64   `json:"quantity"`
	EntryPrice    float64   `json:"entry_price"`
	EntryDate     time.Time `json:"entry_date"`
	CurrentPrice  float64   `json:"current_price"`
	MarketValue   float64   `json:"market_value"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Weight        float64   `json:"weight"`
	HoldingDays   int       `json:"holding_days"`
}

// Trade is one executed order leg. RealizedPnL and ReturnPct are populated
// on SELL legs only.
type Trade struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Quantity       float64   `json:"quantity"`
	ExecutedPrice  float64   `json:"executed_price"`
	Timestamp      time.Time `json:"timestamp"`
	Commission     float64   `json:"commission"`
	Slippage       float64   `json:"slippage"`
	SpreadCost     float64   `json:"spread_cost"`
	MarketImpact   float64   `json:"market_impact"`
	SignalStrength float64   `json:"signal_strength"`
	RealizedPnL    *float64  `json:"realized_pnl,omitempty"`
	ReturnPct      *float64  `json:"return_pct,omitempty"`
}

// PortfolioSnapshot is the end-of-day portfolio state. The engine is
// long-only, so gross and net exposure coincide and leverage stays in [0,1].
type PortfolioSnapshot struct {
	Date               time.Time `json:"date"`
	Cash               float64   `json:"cash"`
	PositionsValue     float64   `json:"positions_value"`
	TotalValue         float64   `json:"total_value"`
	NumPositions       int       `json:"num_positions"`
	DailyReturn        float64   `json:"daily_return"`
	DailyReturnPct     float64   `json:"daily_return_pct"`
	BenchmarkReturnPct *float64  `json:"benchmark_return_pct,omitempty"`
	GrossExposure      float64   `json:"gross_exposure"`
	NetExposure        float64   `json:"net_exposure"`
	Leverage           float64   `json:"leverage"`
}

// BacktestResult is the full output of one run.
type BacktestResult struct {
	Config         BacktestConfig          `json:"config"`
	Metrics        risk.PerformanceMetrics `json:"metrics"`
	Dates          []time.Time             `json:"dates"`
	EquityCurve    []float64               `json:"equity_curve"`
	Trades         []Trade                 `json:"trades"`
	Snapshots      []PortfolioSnapshot     `json:"snapshots"`
	FinalPositions []Position              `json:"final_positions"`
	FinalValue     float64                 `json:"final_value"`
	WalkForward    *WalkForwardResult      `json:"walk_forward,omitempty"`
}

// WalkForwardWindow records one train/test split and the configuration
// chosen on it.
type WalkForwardWindow struct {
	TrainStart     time.Time `json:"train_start"`
	TrainEnd       time.Time `json:"train_end"`
	TestStart      time.Time `json:"test_start"`
	TestEnd        time.Time `json:"test_end"`
	EntryThreshold float64   `json:"entry_threshold"`
	ExitThreshold  float64   `json:"exit_threshold"`
	TrainSharpe    float64   `json:"train_sharpe"`
	TestSharpe     float64   `json:"test_sharpe"`
	TestReturn     float64   `json:"test_return"`
}

// WalkForwardResult aggregates the rolling windows: the stitched
// out-of-sample equity curve and the train/test divergence score in [0,1]
// (0 = in and out of sample agree, 1 = maximal divergence).
type WalkForwardResult struct {
	Windows          []WalkForwardWindow `json:"windows"`
	Dates            []time.Time         `json:"dates"`
	StitchedEquity   []float64           `json:"stitched_equity"`
	OverfittingScore float64             `json:"overfitting_score"`
}
