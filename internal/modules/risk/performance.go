// Package risk computes performance metrics, drawdowns, tail risk,
// correlation structure, Monte Carlo projections and stress scenarios over
// equity curves and return series.
package risk

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/pkg/formulas"
)

// PerformanceMetrics is the full metric block attached to backtest results
// and served by the metrics endpoint.
type PerformanceMetrics struct {
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`
	CAGR             float64 `json:"cagr"`
	Volatility       float64 `json:"volatility"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	SortinoRatio     float64 `json:"sortino_ratio"`
	CalmarRatio      float64 `json:"calmar_ratio"`
	OmegaRatio       float64 `json:"omega_ratio"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	DrawdownDuration int     `json:"drawdown_duration"`
	CurrentDrawdown  float64 `json:"current_drawdown"`
	VaR95            float64 `json:"var_95"`
	CVaR95           float64 `json:"cvar_95"`
	Skewness         float64 `json:"skewness"`
	Kurtosis         float64 `json:"kurtosis"`
	Alpha            float64 `json:"alpha"`
	Beta             float64 `json:"beta"`
	InformationRatio float64 `json:"information_ratio"`
	TrackingError    float64 `json:"tracking_error"`
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
}

// MetricsInput bundles everything ComputeMetrics needs. BenchmarkReturns
// and TradeReturns may be empty; TotalTrades covers both sides of every
// executed trade while TradeReturns holds only closed (realized) returns.
type MetricsInput struct {
	EquityCurve      []float64 `json:"equity_curve"`
	BenchmarkReturns []float64 `json:"benchmark_returns,omitempty"`
	RiskFreeRate     float64   `json:"risk_free_rate"`
	TradeReturns     []float64 `json:"trade_returns,omitempty"`
	TotalTrades      int       `json:"total_trades"`
}

// ComputeMetrics derives the full performance block from an equity curve.
// The curve needs at least two samples; non-finite samples are rejected
// with ErrNumerical.
func ComputeMetrics(input MetricsInput) (PerformanceMetrics, error) {
	var m PerformanceMetrics

	equity := input.EquityCurve
	if len(equity) < 2 {
		return m, fmt.Errorf("%w: equity curve has %d samples, need at least 2", domain.ErrDataUnavailable, len(equity))
	}
	for i, v := range equity {
		if !isFinite(v) || v <= 0 {
			return m, fmt.Errorf("%w: equity curve sample %d is %v", domain.ErrNumerical, i, v)
		}
	}

	returns := formulas.CalculateReturns(equity)

	m.TotalReturn = equity[len(equity)-1]/equity[0] - 1
	m.AnnualizedReturn = formulas.CalculateAnnualReturn(returns)
	m.CAGR = math.Pow(equity[len(equity)-1]/equity[0], formulas.TradingDaysPerYear/float64(len(equity)-1)) - 1
	m.Volatility = formulas.AnnualizedVolatility(returns)

	rf := input.RiskFreeRate
	rfDaily := rf / formulas.TradingDaysPerYear

	m.SharpeRatio = safeRatio(m.AnnualizedReturn-rf, m.Volatility)
	m.SortinoRatio = safeRatio(m.AnnualizedReturn-rf, downsideDeviation(returns, rfDaily))
	m.OmegaRatio = omega(returns, 0)

	dd := ComputeDrawdown(equity)
	m.MaxDrawdown = dd.MaxDrawdown
	m.DrawdownDuration = dd.MaxDuration
	m.CurrentDrawdown = dd.CurrentDrawdown
	m.CalmarRatio = safeRatio(m.AnnualizedReturn, math.Abs(dd.MaxDrawdown))

	m.VaR95 = lossMagnitude(formulas.CalculateHistoricalVaR(returns, 0.95))
	m.CVaR95 = lossMagnitude(formulas.CalculateCVaR(returns, 0.95))
	m.Skewness = formulas.Skewness(returns)
	m.Kurtosis = formulas.ExcessKurtosis(returns)

	if len(input.BenchmarkReturns) > 0 {
		m.Alpha, m.Beta, m.InformationRatio, m.TrackingError = benchmarkStats(returns, input.BenchmarkReturns, rf)
	}

	m.TotalTrades = input.TotalTrades
	fillTradeStats(&m, input.TradeReturns)

	return m, nil
}

// benchmarkStats aligns the two return series by index, truncating to the
// shorter one, and derives CAPM alpha/beta plus the information ratio.
func benchmarkStats(portfolio, benchmark []float64, rf float64) (alpha, beta, ir, te float64) {
	n := len(portfolio)
	if len(benchmark) < n {
		n = len(benchmark)
	}
	if n < 2 {
		return 0, 0, 0, 0
	}
	p := portfolio[:n]
	b := benchmark[:n]

	varB := formulas.Variance(b)
	if varB > 0 {
		beta = formulas.Covariance(p, b) / varB
	}

	benchAnnual := formulas.CalculateAnnualReturn(b)
	portAnnual := formulas.CalculateAnnualReturn(p)
	alpha = portAnnual - (rf + beta*(benchAnnual-rf))

	excess := make([]float64, n)
	for i := range excess {
		excess[i] = p[i] - b[i]
	}
	te = formulas.StdDev(excess) * math.Sqrt(formulas.TradingDaysPerYear)
	ir = safeRatio(formulas.Mean(excess)*formulas.TradingDaysPerYear, te)
	return alpha, beta, ir, te
}

func fillTradeStats(m *PerformanceMetrics, tradeReturns []float64) {
	var grossWin, grossLoss float64
	for _, r := range tradeReturns {
		switch {
		case r > 0:
			m.WinningTrades++
			grossWin += r
		case r < 0:
			m.LosingTrades++
			grossLoss += -r
		}
	}
	if closed := len(tradeReturns); closed > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(closed)
	}
	switch {
	case grossLoss > 0:
		m.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		m.ProfitFactor = math.Inf(1)
	}
}

// downsideDeviation is the annualized root mean square of returns below the
// daily target.
func downsideDeviation(returns []float64, target float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		if r < target {
			d := r - target
			sum += d * d
		}
	}
	return math.Sqrt(sum/float64(len(returns))) * math.Sqrt(formulas.TradingDaysPerYear)
}

// omega is the ratio of gains over tau to losses under tau; zero losses
// yield 0 like every other zero-denominator ratio here.
func omega(returns []float64, tau float64) float64 {
	var gains, losses float64
	for _, r := range returns {
		if r > tau {
			gains += r - tau
		} else {
			losses += tau - r
		}
	}
	return safeRatio(gains, losses)
}

func safeRatio(num, den float64) float64 {
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return num / den
}

// lossMagnitude converts a return-space quantile to a positive loss figure.
func lossMagnitude(q float64) float64 {
	if q < 0 {
		return -q
	}
	return 0
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// performanceMetricsJSON mirrors PerformanceMetrics with a nullable profit
// factor, since JSON cannot carry +Inf.
type performanceMetricsJSON struct {
	TotalReturn      float64  `json:"total_return"`
	AnnualizedReturn float64  `json:"annualized_return"`
	CAGR             float64  `json:"cagr"`
	Volatility       float64  `json:"volatility"`
	SharpeRatio      float64  `json:"sharpe_ratio"`
	SortinoRatio     float64  `json:"sortino_ratio"`
	CalmarRatio      float64  `json:"calmar_ratio"`
	OmegaRatio       float64  `json:"omega_ratio"`
	MaxDrawdown      float64  `json:"max_drawdown"`
	DrawdownDuration int      `json:"drawdown_duration"`
	CurrentDrawdown  float64  `json:"current_drawdown"`
	VaR95            float64  `json:"var_95"`
	CVaR95           float64  `json:"cvar_95"`
	Skewness         float64  `json:"skewness"`
	Kurtosis         float64  `json:"kurtosis"`
	Alpha            float64  `json:"alpha"`
	Beta             float64  `json:"beta"`
	InformationRatio float64  `json:"information_ratio"`
	TrackingError    float64  `json:"tracking_error"`
	TotalTrades      int      `json:"total_trades"`
	WinningTrades    int      `json:"winning_trades"`
	LosingTrades     int      `json:"losing_trades"`
	WinRate          float64  `json:"win_rate"`
	ProfitFactor     *float64 `json:"profit_factor"`
}

// MarshalJSON encodes an infinite profit factor as null.
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	out := performanceMetricsJSON{
		TotalReturn:      m.TotalReturn,
		AnnualizedReturn: m.AnnualizedReturn,
		CAGR:             m.CAGR,
		Volatility:       m.Volatility,
		SharpeRatio:      m.SharpeRatio,
		SortinoRatio:     m.SortinoRatio,
		CalmarRatio:      m.CalmarRatio,
		OmegaRatio:       m.OmegaRatio,
		MaxDrawdown:      m.MaxDrawdown,
		DrawdownDuration: m.DrawdownDuration,
		CurrentDrawdown:  m.CurrentDrawdown,
		VaR95:            m.VaR95,
		CVaR95:           m.CVaR95,
		Skewness:         m.Skewness,
		Kurtosis:         m.Kurtosis,
		Alpha:            m.Alpha,
		Beta:             m.Beta,
		InformationRatio: m.InformationRatio,
		TrackingError:    m.TrackingError,
		TotalTrades:      m.TotalTrades,
		WinningTrades:    m.WinningTrades,
		LosingTrades:     m.LosingTrades,
		WinRate:          m.WinRate,
	}
	if isFinite(m.ProfitFactor) {
		pf := m.ProfitFactor
		out.ProfitFactor = &pf
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a null profit factor as +Inf.
func (m *PerformanceMetrics) UnmarshalJSON(data []byte) error {
	var in performanceMetricsJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = PerformanceMetrics{
		TotalReturn:      in.TotalReturn,
		AnnualizedReturn: in.AnnualizedReturn,
		CAGR:             in.CAGR,
		Volatility:       in.Volatility,
		SharpeRatio:      in.SharpeRatio,
		SortinoRatio:     in.SortinoRatio,
		CalmarRatio:      in.CalmarRatio,
		OmegaRatio:       in.OmegaRatio,
		MaxDrawdown:      in.MaxDrawdown,
		DrawdownDuration: in.DrawdownDuration,
		CurrentDrawdown:  in.CurrentDrawdown,
		VaR95:            in.VaR95,
		CVaR95:           in.CVaR95,
		Skewness:         in.Skewness,
		Kurtosis:         in.Kurtosis,
		Alpha:            in.Alpha,
		Beta:             in.Beta,
		InformationRatio: in.InformationRatio,
		TrackingError:    in.TrackingError,
		TotalTrades:      in.TotalTrades,
		WinningTrades:    in.WinningTrades,
		LosingTrades:     in.LosingTrades,
		WinRate:          in.WinRate,
	}
	if in.ProfitFactor != nil {
		m.ProfitFactor = *in.ProfitFactor
	} else if in.WinningTrades > 0 && in.LosingTrades == 0 {
		m.ProfitFactor = math.Inf(1)
	}
	return nil
}
