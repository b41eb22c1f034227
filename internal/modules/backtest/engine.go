package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/indicators"
	"github.com/quantleap/quantd/internal/modules/risk"
	"github.com/quantleap/quantd/internal/modules/signals"
	"github.com/quantleap/quantd/pkg/formulas"
)

// indicatorFanout caps concurrent per-symbol indicator computation inside
// one run. Runs already execute on a bounded worker pool.
const indicatorFanout = 4

// ProgressFunc receives (done, total, message) as a run advances, once per
// trading day. Implementations must not block.
type ProgressFunc func(done, total int, message string)

// RunInput bundles a run description with its resolved market data. The
// panel may carry history before the start date; indicators and sizing
// lookbacks consume it while trading stays inside [start, end]. The
// benchmark and risk-free series align to the run's trading-day axis by
// index and may be shorter or empty.
type RunInput struct {
	Config           BacktestConfig
	Panel            *domain.PricePanel
	BenchmarkReturns []float64
	RiskFreeRates    []float64
	Progress         ProgressFunc
}

// Engine executes backtest runs. Stateless; one engine serves all jobs.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "backtest").Logger()}
}

// Run executes the configured strategy over the panel and derives the full
// result block. When a walk-forward config is present the rolling
// train/test analysis is attached on top of the base run.
func (e *Engine) Run(ctx context.Context, input RunInput) (*BacktestResult, error) {
	cfg := input.Config
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Indicators and composites depend on the rules, not the thresholds,
	// so one working set serves the base run and every walk-forward slice.
	data, err := e.prepare(ctx, cfg.Strategy, cfg.Symbols, input.Panel)
	if err != nil {
		return nil, err
	}

	result, err := e.runPeriod(ctx, cfg, data, input.BenchmarkReturns, input.RiskFreeRates, input.Progress)
	if err != nil {
		return nil, err
	}

	if cfg.WalkForward != nil {
		wf, err := e.runWalkForward(ctx, cfg, data, input, result)
		if err != nil {
			return nil, err
		}
		result.WalkForward = wf
	}
	return result, nil
}

// runData is the immutable per-run working set: per-symbol close columns
// and entry/exit composite series, all on the full panel axis so pre-start
// history feeds warm-up.
type runData struct {
	panel   *domain.PricePanel
	symbols []string
	closes  map[string][]float64
	entry   map[string][]float64
	exit    map[string][]float64
}

// prepare precomputes indicators and composites for every tradable
// universe symbol. Symbols absent from the panel are dropped; dropping all
// of them is a data error.
func (e *Engine) prepare(ctx context.Context, strategy TradingStrategy, universe []string, panel *domain.PricePanel) (*runData, error) {
	if panel == nil || panel.Len() == 0 {
		return nil, fmt.Errorf("%w: empty price panel", domain.ErrDataUnavailable)
	}

	seen := make(map[string]bool, len(universe))
	symbols := make([]string, 0, len(universe))
	for _, sym := range universe {
		if seen[sym] {
			continue
		}
		seen[sym] = true
		if _, ok := panel.SymbolIndex(sym); !ok {
			e.log.Debug().Str("symbol", sym).Msg("Symbol absent from panel, skipping")
			continue
		}
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no universe symbol has data in the panel", domain.ErrDataUnavailable)
	}

	data := &runData{
		panel:   panel,
		closes:  make(map[string][]float64, len(symbols)),
		entry:   make(map[string][]float64, len(symbols)),
		exit:    make(map[string][]float64, len(symbols)),
	}

	limit := indicatorFanout
	if n := runtime.GOMAXPROCS(0); n < limit {
		limit = n
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bars, barRows := panel.SymbolBars(symbol)
			if len(bars) == 0 {
				return nil
			}

			set, err := indicators.Compute(bars)
			if err != nil {
				return fmt.Errorf("indicators for %s: %w", symbol, err)
			}
			aligned := indicators.AlignToPanel(set, barRows, panel.Len())

			entry := signals.CompositeSeries(aligned, strategy.EntryRules, panel.Len())
			exit := signals.CompositeSeries(aligned, strategy.ExitRules, panel.Len())

			j, _ := panel.SymbolIndex(symbol)
			closes := make([]float64, panel.Len())
			for i := range closes {
				if panel.Valid[i][j] {
					closes[i] = panel.Close[i][j]
				} else {
					closes[i] = math.NaN()
				}
			}

			mu.Lock()
			data.closes[symbol] = closes
			data.entry[symbol] = entry
			data.exit[symbol] = exit
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, mapContextErr(err, "signal preparation")
	}

	for _, sym := range symbols {
		if _, ok := data.closes[sym]; ok {
			data.symbols = append(data.symbols, sym)
		}
	}
	if len(data.symbols) == 0 {
		return nil, fmt.Errorf("%w: no universe symbol has bars in the panel", domain.ErrDataUnavailable)
	}
	return data, nil
}

// tradingRows resolves the panel rows inside [start, end].
func tradingRows(panel *domain.PricePanel, start, end time.Time) []int {
	lo := sort.Search(panel.Len(), func(i int) bool { return !panel.Dates[i].Before(start) })
	hi := sort.Search(panel.Len(), func(i int) bool { return panel.Dates[i].After(end) })
	if lo >= hi {
		return nil
	}
	rows := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		rows = append(rows, i)
	}
	return rows
}

// runPeriod is the single-pass event loop: one iteration per trading day,
// exits before entries, execution through the cost model, end-of-day marks
// and snapshot. Orders act on the prior close's composite; the close that
// completes a signal cannot itself be traded.
func (e *Engine) runPeriod(ctx context.Context, cfg BacktestConfig, data *runData, benchmark, riskFree []float64, progress ProgressFunc) (*BacktestResult, error) {
	started := time.Now()
	panel := data.panel

	rows := tradingRows(panel, cfg.StartDate, cfg.EndDate)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no trading days between %s and %s",
			domain.ErrDataUnavailable, cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"))
	}

	n := len(rows)
	strategy := cfg.Strategy

	pf := NewPortfolio(cfg.InitialCapital)
	sizer := NewSizer(strategy, data.closes)

	trades := make([]Trade, 0)
	closed := make([]ClosedTrade, 0)
	snapshots := make([]PortfolioSnapshot, 0, n)
	equity := make([]float64, 0, n)
	dates := make([]time.Time, 0, n)

	prevTotal := cfg.InitialCapital

	for k, row := range rows {
		date := panel.Dates[row]
		if err := ctx.Err(); err != nil {
			return nil, mapContextErr(err, fmt.Sprintf("day %s", date.Format("2006-01-02")))
		}

		pf.Age()

		// Today's tradable prices.
		prices := make(map[string]float64, len(data.symbols))
		volumes := make(map[string]float64, len(data.symbols))
		for _, sym := range data.symbols {
			j, _ := panel.SymbolIndex(sym)
			if price, ok := panel.CloseAt(row, j); ok {
				prices[sym] = price
				if vol, ok := panel.VolumeAt(row, j); ok {
					volumes[sym] = vol
				} else {
					volumes[sym] = math.NaN()
				}
			}
		}

		// The first panel row has no completed signal to act on.
		signalRow := row - 1
		exitedToday := make(map[string]bool)

		if signalRow >= 0 {
			// Exits first: freed cash funds same-day entries, and a symbol
			// firing both sides resolves to the exit.
			for _, sym := range data.symbols {
				pos := pf.Position(sym)
				if pos == nil {
					continue
				}
				price, ok := prices[sym]
				if !ok {
					continue
				}

				exitSignal := data.exit[sym][signalRow]
				unrealized := 0.0
				if pos.EntryPrice > 0 {
					unrealized = (price - pos.EntryPrice) / pos.EntryPrice
				}

				sell := false
				switch {
				case strategy.StopLossPct > 0 && unrealized <= -strategy.StopLossPct:
					sell = true
				case strategy.TakeProfitPct > 0 && unrealized >= strategy.TakeProfitPct:
					sell = true
				case exitSignal > 0 && exitSignal >= strategy.ExitThreshold && pos.HoldingDays >= strategy.MinHoldingDays:
					sell = true
				}
				if !sell {
					continue
				}

				exec, err := cfg.Costs.Sell(pos.Quantity, pos.Quantity, price, volumes[sym])
				if err != nil {
					return nil, err
				}
				if exec.Quantity <= 0 {
					continue
				}

				pnl, returnPct := pf.ApplySell(sym, exec)
				trades = append(trades, Trade{
					ID:             uuid.New().String(),
					Symbol:         sym,
					Side:           SideSell,
					Quantity:       exec.Quantity,
					ExecutedPrice:  exec.ExecutedPrice,
					Timestamp:      date,
					Commission:     exec.Commission,
					Slippage:       exec.Slippage,
					SpreadCost:     exec.SpreadCost,
					MarketImpact:   exec.MarketImpact,
					SignalStrength: exitSignal,
					RealizedPnL:    &pnl,
					ReturnPct:      &returnPct,
				})
				closed = append(closed, ClosedTrade{Row: row, ReturnPct: returnPct})
				exitedToday[sym] = true
			}

			// Entries act only on rebalance days; the exits above are never
			// gated by the cadence.
			if strategy.RebalanceDays <= 1 || k%strategy.RebalanceDays == 0 {
				held := make([]string, 0, pf.OpenCount())
				for _, sym := range data.symbols {
					if pf.Position(sym) != nil {
						held = append(held, sym)
					}
				}

				for _, sym := range data.symbols {
					if pf.Position(sym) != nil || exitedToday[sym] {
						continue
					}
					if pf.OpenCount() >= strategy.MaxPositions {
						break
					}
					price, ok := prices[sym]
					if !ok {
						continue
					}

					entrySignal := data.entry[sym][signalRow]
					if entrySignal <= 0 || entrySignal < strategy.EntryThreshold {
						continue
					}

					fraction := sizer.Fraction(sym, signalRow, pf.TotalValue(), held, closed)
					if strategy.MaxSectorWeight > 0 {
						if sector := cfg.Sectors[sym]; sector != "" {
							sectorWeight := pf.SectorValue(cfg.Sectors, sector) / pf.TotalValue()
							if sectorWeight+fraction > strategy.MaxSectorWeight+1e-9 {
								continue
							}
						}
					}
					quantity := math.Floor(fraction * pf.TotalValue() / price)
					if quantity <= 0 {
						continue
					}

					exec, err := cfg.Costs.Buy(quantity, price, volumes[sym], pf.Cash())
					if err != nil {
						return nil, err
					}
					if exec.Quantity <= 0 {
						continue
					}

					pf.ApplyBuy(sym, exec, date)
					held = append(held, sym)
					trades = append(trades, Trade{
						ID:             uuid.New().String(),
						Symbol:         sym,
						Side:           SideBuy,
						Quantity:       exec.Quantity,
						ExecutedPrice:  exec.ExecutedPrice,
						Timestamp:      date,
						Commission:     exec.Commission,
						Slippage:       exec.Slippage,
						SpreadCost:     exec.SpreadCost,
						MarketImpact:   exec.MarketImpact,
						SignalStrength: entrySignal,
					})
				}
			}
		}

		// End-of-day marks and snapshot.
		for sym, price := range prices {
			pf.Mark(sym, price)
		}
		pf.Remark()

		total := pf.TotalValue()
		if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
			return nil, fmt.Errorf("%w: portfolio value became %v on %s",
				domain.ErrNumerical, total, date.Format("2006-01-02"))
		}

		dailyPnL := 0.0
		dailyReturn := 0.0
		if k > 0 && prevTotal > 0 {
			dailyPnL = total - prevTotal
			dailyReturn = dailyPnL / prevTotal
		}

		exposure := pf.PositionsValue()
		snap := PortfolioSnapshot{
			Date:           date,
			Cash:           pf.Cash(),
			PositionsValue: exposure,
			TotalValue:     total,
			NumPositions:   pf.OpenCount(),
			DailyReturn:    dailyPnL,
			DailyReturnPct: dailyReturn,
			GrossExposure:  exposure,
			NetExposure:    exposure,
			Leverage:       exposure / total,
		}
		if k < len(benchmark) {
			b := benchmark[k]
			snap.BenchmarkReturnPct = &b
		}
		snapshots = append(snapshots, snap)
		equity = append(equity, total)
		dates = append(dates, date)
		prevTotal = total

		if progress != nil {
			progress(k+1, n, fmt.Sprintf("Processed %s", date.Format("2006-01-02")))
		}
	}

	result := &BacktestResult{
		Config:         cfg,
		Dates:          dates,
		EquityCurve:    equity,
		Trades:         trades,
		Snapshots:      snapshots,
		FinalPositions: pf.Snapshot(),
		FinalValue:     equity[len(equity)-1],
	}

	if len(equity) >= 2 {
		metrics, err := risk.ComputeMetrics(risk.MetricsInput{
			EquityCurve:      equity,
			BenchmarkReturns: truncate(benchmark, len(equity)),
			RiskFreeRate:     formulas.Mean(riskFree),
			TradeReturns:     closedReturns(trades),
			TotalTrades:      len(trades),
		})
		if err != nil {
			return nil, err
		}
		result.Metrics = metrics
	} else {
		e.log.Debug().Msg("Run too short for performance metrics")
	}

	e.log.Info().
		Str("strategy", strategy.Name).
		Int("days", n).
		Int("symbols", len(data.symbols)).
		Int("trades", len(trades)).
		Float64("final_value", result.FinalValue).
		Dur("elapsed", time.Since(started)).
		Msg("Backtest run complete")

	return result, nil
}

// closedReturns extracts realized round-trip returns from the trade log.
func closedReturns(trades []Trade) []float64 {
	out := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.Side == SideSell && t.ReturnPct != nil {
			out = append(out, *t.ReturnPct)
		}
	}
	return out
}

func truncate(series []float64, n int) []float64 {
	if len(series) > n {
		return series[:n]
	}
	return series
}

// mapContextErr converts context termination into the engine's error
// taxonomy; other errors pass through.
func mapContextErr(err error, where string) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: backtest timed out during %s", domain.ErrDeadline, where)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: backtest aborted during %s", domain.ErrCancelled, where)
	}
	return err
}
