package indicators

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantleap/quantd/internal/domain"
	qtesting "github.com/quantleap/quantd/internal/testing"
)

func TestService_ComputeSymbol_Validation(t *testing.T) {
	svc := NewService(nil, 4, zerolog.Nop())

	_, err := svc.ComputeSymbol("", qtesting.TrendBars(qtesting.FixtureStart, 30, 100, 1))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.ComputeSymbol("AAPL", nil)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	bad := qtesting.TrendBars(qtesting.FixtureStart, 30, 100, 1)
	bad[5].Low = bad[5].High + 10
	_, err = svc.ComputeSymbol("AAPL", bad)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_ComputeSymbol_NilCache(t *testing.T) {
	svc := NewService(nil, 4, zerolog.Nop())

	set, err := svc.ComputeSymbol("AAPL", qtesting.TrendBars(qtesting.FixtureStart, 40, 100, 1))
	require.NoError(t, err)
	assert.Len(t, set, len(AllIndicators()))
}

func TestService_ComputeSymbol_UsesCache(t *testing.T) {
	db := qtesting.NewTestDB(t, "cache")

	cache := NewCache(db, time.Hour, zerolog.Nop())
	svc := NewService(cache, 4, zerolog.Nop())

	bars := qtesting.TrendBars(qtesting.FixtureStart, 40, 100, 1)

	first, err := svc.ComputeSymbol("AAPL", bars)
	require.NoError(t, err)

	count, err := cache.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "first computation must populate the cache")

	second, err := svc.ComputeSymbol("AAPL", bars)
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for name, want := range first {
		got := second[name]
		assert.Equal(t, want.Warmup, got.Warmup, name)
		v1, ok1 := want.Last()
		v2, ok2 := got.Last()
		require.Equal(t, ok1, ok2, name)
		if ok1 {
			assert.InDelta(t, v1, v2, 1e-12, name)
		}
	}

	count, err = cache.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "cache hit must not add entries")
}

func TestService_ComputePanel(t *testing.T) {
	history := qtesting.History(qtesting.FixtureStart, map[string][]float64{
		"AAPL": linearCloses(60, 100, 1),
		"MSFT": linearCloses(60, 200, 2),
	})
	panel, err := domain.NewPricePanel(history)
	require.NoError(t, err)

	svc := NewService(nil, 4, zerolog.Nop())
	result, err := svc.ComputePanel(context.Background(), panel)
	require.NoError(t, err)

	require.Len(t, result.Sets, 2)
	assert.Equal(t, panel.Dates, result.Dates)

	for _, symbol := range []string{"AAPL", "MSFT"} {
		set := result.Sets[symbol]
		require.NotNil(t, set, symbol)
		for _, name := range AllIndicators() {
			assert.Equal(t, panel.Len(), set[name].Len(), "%s/%s must align to the panel axis", symbol, name)
		}
	}

	// Aligned values match a direct single-symbol computation.
	direct, err := svc.ComputeSymbol("AAPL", history["AAPL"])
	require.NoError(t, err)
	wantSMA, ok := direct[SMA20].At(19)
	require.True(t, ok)
	gotSMA, ok := result.Sets["AAPL"][SMA20].At(19)
	require.True(t, ok)
	assert.InDelta(t, wantSMA, gotSMA, 1e-12)
}

func TestService_ComputePanel_SparseSymbol(t *testing.T) {
	// MSFT starts 10 days late; its indicator rows before listing stay
	// unavailable while AAPL's are unaffected.
	aapl := qtesting.BarsFromCloses(qtesting.FixtureStart, linearCloses(60, 100, 1), 1000)
	msft := qtesting.BarsFromCloses(qtesting.FixtureStart.AddDate(0, 0, 10), linearCloses(50, 200, 2), 1000)

	panel, err := domain.NewPricePanel(map[string][]domain.Bar{"AAPL": aapl, "MSFT": msft})
	require.NoError(t, err)
	require.Equal(t, 60, panel.Len())

	svc := NewService(nil, 4, zerolog.Nop())
	result, err := svc.ComputePanel(context.Background(), panel)
	require.NoError(t, err)

	msftSMA := result.Sets["MSFT"][SMA20]
	for i := 0; i < 10+19; i++ {
		_, ok := msftSMA.At(i)
		assert.False(t, ok, "MSFT sma_20 must be unavailable at row %d", i)
	}
	_, ok := msftSMA.At(10 + 19)
	assert.True(t, ok, "MSFT sma_20 must become available once warmed")

	_, ok = result.Sets["AAPL"][SMA20].At(19)
	assert.True(t, ok)
}

func TestService_ComputePanel_Cancelled(t *testing.T) {
	history := qtesting.History(qtesting.FixtureStart, map[string][]float64{
		"AAPL": linearCloses(60, 100, 1),
	})
	panel, err := domain.NewPricePanel(history)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(nil, 4, zerolog.Nop())
	_, err = svc.ComputePanel(ctx, panel)
	assert.ErrorIs(t, err, domain.ErrCancelled)
}

func TestService_ComputePanel_Empty(t *testing.T) {
	svc := NewService(nil, 4, zerolog.Nop())
	_, err := svc.ComputePanel(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func linearCloses(n int, base, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = base + float64(i)*step
	}
	return closes
}
