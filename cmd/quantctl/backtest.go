package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/modules/backtest"
	"github.com/quantleap/quantd/internal/modules/marketdata"
)

var (
	backtestBars     string
	backtestStrategy string
	backtestCapital  float64
	backtestSymbol   string
	backtestJSON     bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest a strategy over a local CSV of daily bars",
	Long: `Run a single-symbol backtest against bars read from a CSV file
(header: date,open,high,low,close,volume) with the strategy described in
a JSON file. The run spans the full date range of the file. Ctrl-C
cancels the run.

Example usage:
  quantctl backtest --bars aapl.csv --strategy momentum.json
  quantctl backtest --bars spy.csv --strategy meanrev.json --capital 250000 --json`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestBars, "bars", "", "CSV file of daily bars")
	backtestCmd.Flags().StringVar(&backtestStrategy, "strategy", "", "JSON file describing the trading strategy")
	backtestCmd.Flags().Float64Var(&backtestCapital, "capital", 100_000, "Initial capital")
	backtestCmd.Flags().StringVar(&backtestSymbol, "symbol", "", "Symbol name for the series (default: bars file name)")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "Emit the full result as JSON")

	_ = backtestCmd.MarkFlagRequired("bars")
	_ = backtestCmd.MarkFlagRequired("strategy")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bars, err := loadBars(backtestBars)
	if err != nil {
		return err
	}
	strategy, err := loadStrategy(backtestStrategy)
	if err != nil {
		return err
	}

	symbol := strings.ToUpper(strings.TrimSpace(backtestSymbol))
	if symbol == "" {
		base := filepath.Base(backtestBars)
		symbol = strings.ToUpper(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	log := cliLogger()
	svc := backtest.NewService(backtest.NewEngine(log), &fileSource{symbol: symbol, bars: bars}, log)

	result, err := svc.Run(ctx, backtest.BacktestConfig{
		Strategy:       strategy,
		Symbols:        []string{symbol},
		StartDate:      bars[0].Date,
		EndDate:        bars[len(bars)-1].Date,
		InitialCapital: backtestCapital,
	}, nil)
	if err != nil {
		return err
	}

	if backtestJSON {
		return printJSON(result)
	}
	return printBacktestReport(result, symbol, len(bars))
}

// loadBars reads and sorts the CSV bar file. Open failures map to the data
// exit code; malformed content is a validation failure inside ParseCSV.
func loadBars(path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: bars file: %v", domain.ErrDataUnavailable, err)
	}
	defer f.Close()

	bars, err := marketdata.ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("bars file %s: %w", path, err)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func loadStrategy(path string) (backtest.TradingStrategy, error) {
	var strategy backtest.TradingStrategy
	f, err := os.Open(path)
	if err != nil {
		return strategy, fmt.Errorf("%w: strategy file: %v", domain.ErrDataUnavailable, err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&strategy); err != nil {
		return strategy, fmt.Errorf("%w: strategy file %s: %v", domain.ErrValidation, path, err)
	}
	return strategy, nil
}

func printBacktestReport(result *backtest.BacktestResult, symbol string, barCount int) error {
	m := result.Metrics

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Symbol\t%s\n", symbol)
	fmt.Fprintf(w, "Period\t%s to %s (%d bars)\n",
		result.Config.StartDate.Format("2006-01-02"),
		result.Config.EndDate.Format("2006-01-02"),
		barCount)
	fmt.Fprintf(w, "Strategy\t%s\n", result.Config.Strategy.Name)
	fmt.Fprintf(w, "Initial capital\t%.2f\n", result.Config.InitialCapital)
	fmt.Fprintf(w, "Final value\t%.2f\n", result.FinalValue)
	fmt.Fprintf(w, "Total return\t%.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(w, "CAGR\t%.2f%%\n", m.CAGR*100)
	fmt.Fprintf(w, "Volatility\t%.2f%%\n", m.Volatility*100)
	fmt.Fprintf(w, "Sharpe\t%.3f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Sortino\t%.3f\n", m.SortinoRatio)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "VaR 95\t%.2f%%\n", m.VaR95*100)
	fmt.Fprintf(w, "Trades\t%d\n", m.TotalTrades)
	fmt.Fprintf(w, "Win rate\t%.1f%%\n", m.WinRate*100)
	if m.ProfitFactor > 0 {
		fmt.Fprintf(w, "Profit factor\t%.3f\n", m.ProfitFactor)
	}
	fmt.Fprintf(w, "Open positions\t%d\n", len(result.FinalPositions))
	return w.Flush()
}

// fileSource serves one symbol's bars from a local file. Benchmark, rate
// and chain lookups are offline, so the run degrades to no benchmark and a
// zero risk-free rate.
type fileSource struct {
	symbol string
	bars   []domain.Bar
}

func (f *fileSource) FetchPrices(_ context.Context, symbols []string, start, end time.Time) (*domain.PricePanel, error) {
	window := make([]domain.Bar, 0, len(f.bars))
	for _, bar := range f.bars {
		if bar.Date.Before(start) || bar.Date.After(end) {
			continue
		}
		window = append(window, bar)
	}
	if len(window) == 0 {
		return nil, fmt.Errorf("%w: no bars between %s and %s",
			domain.ErrDataUnavailable, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return domain.NewPricePanel(map[string][]domain.Bar{f.symbol: window})
}

func (f *fileSource) FetchBenchmarkReturns(context.Context, string, time.Time, time.Time) ([]float64, error) {
	return nil, fmt.Errorf("%w: no benchmark series offline", domain.ErrDataUnavailable)
}

func (f *fileSource) FetchRiskFreeRate(context.Context, string, time.Time, time.Time) ([]float64, error) {
	return nil, fmt.Errorf("%w: no risk-free series offline", domain.ErrDataUnavailable)
}

func (f *fileSource) FetchOptionsChain(context.Context, string, *time.Time) ([]domain.OptionContract, error) {
	return nil, fmt.Errorf("%w: no options chain offline", domain.ErrDataUnavailable)
}
