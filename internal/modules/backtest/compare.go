package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/risk"
)

// compareFanout caps concurrent strategy runs inside one comparison; each
// run fans out its own indicator computation on top.
const compareFanout = 2

// CompareInput runs several strategies over one shared universe and
// period. Market data is resolved once and reused by every run.
type CompareInput struct {
	Strategies       []TradingStrategy
	Symbols          []string
	StartDate        time.Time
	EndDate          time.Time
	InitialCapital   float64
	Costs            CostModel
	Panel            *domain.PricePanel
	BenchmarkReturns []float64
	RiskFreeRates    []float64
	Progress         ProgressFunc
}

// StrategyRanking is one comparison row. Rank 1 is the highest Sharpe.
type StrategyRanking struct {
	Rank        int                     `json:"rank"`
	Strategy    string                  `json:"strategy"`
	Metrics     risk.PerformanceMetrics `json:"metrics"`
	FinalValue  float64                 `json:"final_value"`
	TotalTrades int                     `json:"total_trades"`
}

// CompareResult ranks the compared strategies by Sharpe ratio.
type CompareResult struct {
	StartDate      time.Time         `json:"start_date"`
	EndDate        time.Time         `json:"end_date"`
	InitialCapital float64           `json:"initial_capital"`
	Rankings       []StrategyRanking `json:"rankings"`
}

// Compare runs every strategy over the shared panel and ranks the results
// by Sharpe, ties broken by total return then name. Any failing run fails
// the comparison.
func (e *Engine) Compare(ctx context.Context, input CompareInput) (*CompareResult, error) {
	if len(input.Strategies) < 2 {
		return nil, fmt.Errorf("%w: comparison needs at least 2 strategies, got %d",
			domain.ErrValidation, len(input.Strategies))
	}

	names := make([]string, len(input.Strategies))
	for i, s := range input.Strategies {
		names[i] = s.Name
		if names[i] == "" {
			names[i] = fmt.Sprintf("strategy-%d", i+1)
		}
	}

	rankings := make([]StrategyRanking, len(input.Strategies))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(compareFanout)

	for i := range input.Strategies {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			cfg := BacktestConfig{
				Strategy:       input.Strategies[i],
				Symbols:        input.Symbols,
				StartDate:      input.StartDate,
				EndDate:        input.EndDate,
				InitialCapital: input.InitialCapital,
				Costs:          input.Costs,
			}
			cfg.Strategy.Name = names[i]

			result, err := e.Run(gctx, RunInput{
				Config:           cfg,
				Panel:            input.Panel,
				BenchmarkReturns: input.BenchmarkReturns,
				RiskFreeRates:    input.RiskFreeRates,
			})
			if err != nil {
				return fmt.Errorf("strategy %s: %w", names[i], err)
			}

			mu.Lock()
			rankings[i] = StrategyRanking{
				Strategy:    names[i],
				Metrics:     result.Metrics,
				FinalValue:  result.FinalValue,
				TotalTrades: len(result.Trades),
			}
			done++
			completed := done
			mu.Unlock()

			if input.Progress != nil {
				input.Progress(completed, len(input.Strategies), fmt.Sprintf("Completed %s", names[i]))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, mapContextErr(err, "strategy comparison")
	}

	sort.SliceStable(rankings, func(a, b int) bool {
		if rankings[a].Metrics.SharpeRatio != rankings[b].Metrics.SharpeRatio {
			return rankings[a].Metrics.SharpeRatio > rankings[b].Metrics.SharpeRatio
		}
		if rankings[a].Metrics.TotalReturn != rankings[b].Metrics.TotalReturn {
			return rankings[a].Metrics.TotalReturn > rankings[b].Metrics.TotalReturn
		}
		return rankings[a].Strategy < rankings[b].Strategy
	})
	for i := range rankings {
		rankings[i].Rank = i + 1
	}

	e.log.Info().
		Int("strategies", len(rankings)).
		Str("best", rankings[0].Strategy).
		Msg("Strategy comparison complete")

	return &CompareResult{
		StartDate:      domain.Day(input.StartDate),
		EndDate:        domain.Day(input.EndDate),
		InitialCapital: input.InitialCapital,
		Rankings:       rankings,
	}, nil
}
