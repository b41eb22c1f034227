package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantleap/quantd/internal/domain"
)

// MockMarketDataSource is a scriptable domain.MarketDataSource. Tests load
// it with fixture data, inject failures per method, and inspect the
// recorded requests afterwards. Safe for concurrent use.
type MockMarketDataSource struct {
	mu sync.RWMutex

	panel     *domain.PricePanel
	benchmark []float64
	riskFree  []float64
	options   []domain.OptionContract

	pricesErr    error
	benchmarkErr error
	riskFreeErr  error
	optionsErr   error

	lastSymbols []string
	lastStart   time.Time
	lastEnd     time.Time
	priceCalls  int
}

// NewMockMarketDataSource creates an empty mock source. Without a panel,
// FetchPrices reports missing data.
func NewMockMarketDataSource() *MockMarketDataSource {
	return &MockMarketDataSource{}
}

// SetPanel sets the panel returned by FetchPrices.
func (m *MockMarketDataSource) SetPanel(panel *domain.PricePanel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panel = panel
}

// SetBenchmarkReturns sets the series returned by FetchBenchmarkReturns.
func (m *MockMarketDataSource) SetBenchmarkReturns(returns []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.benchmark = returns
}

// SetRiskFreeRates sets the series returned by FetchRiskFreeRate.
func (m *MockMarketDataSource) SetRiskFreeRates(rates []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskFree = rates
}

// SetOptionsChain sets the contracts returned by FetchOptionsChain.
func (m *MockMarketDataSource) SetOptionsChain(contracts []domain.OptionContract) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options = contracts
}

// SetPricesError makes FetchPrices fail.
func (m *MockMarketDataSource) SetPricesError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pricesErr = err
}

// SetBenchmarkError makes FetchBenchmarkReturns fail.
func (m *MockMarketDataSource) SetBenchmarkError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.benchmarkErr = err
}

// SetRiskFreeError makes FetchRiskFreeRate fail.
func (m *MockMarketDataSource) SetRiskFreeError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riskFreeErr = err
}

// SetOptionsError makes FetchOptionsChain fail.
func (m *MockMarketDataSource) SetOptionsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optionsErr = err
}

// FetchPrices returns the configured panel and records the request.
func (m *MockMarketDataSource) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*domain.PricePanel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.priceCalls++
	m.lastSymbols = append([]string(nil), symbols...)
	m.lastStart = start
	m.lastEnd = end

	if m.pricesErr != nil {
		return nil, m.pricesErr
	}
	if m.panel == nil {
		return nil, fmt.Errorf("%w: mock source has no panel", domain.ErrDataUnavailable)
	}
	return m.panel, nil
}

// FetchBenchmarkReturns returns the configured benchmark series.
func (m *MockMarketDataSource) FetchBenchmarkReturns(ctx context.Context, benchmark string, start, end time.Time) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.benchmarkErr != nil {
		return nil, m.benchmarkErr
	}
	return m.benchmark, nil
}

// FetchRiskFreeRate returns the configured risk-free series.
func (m *MockMarketDataSource) FetchRiskFreeRate(ctx context.Context, source string, start, end time.Time) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.riskFreeErr != nil {
		return nil, m.riskFreeErr
	}
	return m.riskFree, nil
}

// FetchOptionsChain returns the configured contracts, filtered to the
// expiry when one is given.
func (m *MockMarketDataSource) FetchOptionsChain(ctx context.Context, symbol string, expiry *time.Time) ([]domain.OptionContract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.optionsErr != nil {
		return nil, m.optionsErr
	}
	if expiry == nil {
		return m.options, nil
	}
	day := domain.Day(*expiry)
	filtered := make([]domain.OptionContract, 0, len(m.options))
	for _, c := range m.options {
		if domain.Day(c.Expiry).Equal(day) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// LastPriceRequest returns the arguments of the most recent FetchPrices
// call.
func (m *MockMarketDataSource) LastPriceRequest() (symbols []string, start, end time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSymbols, m.lastStart, m.lastEnd
}

// PriceCalls returns how many times FetchPrices ran.
func (m *MockMarketDataSource) PriceCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.priceCalls
}

var _ domain.MarketDataSource = (*MockMarketDataSource)(nil)

// FixedClock pins Today to one date.
type FixedClock struct {
	Date time.Time
}

// Today returns the pinned civil date.
func (c FixedClock) Today() time.Time { return domain.Day(c.Date) }

var _ domain.Clock = FixedClock{}
