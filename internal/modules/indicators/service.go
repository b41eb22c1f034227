package indicators

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantleap/quantd/internal/domain"
)

// Service computes indicator sets, consulting the shared cache on repeat
// requests. Panel computation fans out per symbol up to the configured
// limit. Backtest runs do not go through the Service; they precompute with
// the package kernels and hold the result for the job's lifetime.
type Service struct {
	cache     *Cache
	maxFanout int
	log       zerolog.Logger
}

// NewService creates an indicator service. cache may be nil, which disables
// cross-request caching.
func NewService(cache *Cache, maxFanout int, log zerolog.Logger) *Service {
	if maxFanout < 1 {
		maxFanout = 1
	}
	return &Service{
		cache:     cache,
		maxFanout: maxFanout,
		log:       log.With().Str("component", "indicators").Logger(),
	}
}

func (s *Service) fanout() int {
	limit := runtime.GOMAXPROCS(0)
	if s.maxFanout < limit {
		limit = s.maxFanout
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// ComputeSymbol computes the indicator set for one symbol's bar history,
// returning a cached copy when the same bars were seen before.
func (s *Service) ComputeSymbol(symbol string, bars []domain.Bar) (IndicatorSet, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", domain.ErrValidation)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: symbol %s has no bars", domain.ErrDataUnavailable, symbol)
	}
	if err := domain.ValidateBars(symbol, bars); err != nil {
		return nil, err
	}

	var barsHash string
	if s.cache != nil {
		barsHash = HashBars(bars)
		if set, ok := s.cache.Get(symbol, barsHash); ok {
			s.log.Debug().Str("symbol", symbol).Msg("Indicator cache hit")
			return set, nil
		}
	}

	set, err := Compute(bars)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(symbol, barsHash, set); err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache indicator set")
		}
	}
	return set, nil
}

// ComputePanel computes indicator sets for every panel symbol, re-aligned
// to the panel's date axis. Symbols compute concurrently up to
// min(GOMAXPROCS, MaxFanout) workers.
func (s *Service) ComputePanel(ctx context.Context, panel *domain.PricePanel) (*IndicatorPanel, error) {
	if panel == nil || panel.Len() == 0 {
		return nil, fmt.Errorf("%w: empty price panel", domain.ErrDataUnavailable)
	}

	out := &IndicatorPanel{
		Dates:   panel.Dates,
		Symbols: panel.Symbols,
		Sets:    make(map[string]IndicatorSet, len(panel.Symbols)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fanout())

	for _, symbol := range panel.Symbols {
		symbol := symbol
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bars, rows := panel.SymbolBars(symbol)
			if len(bars) == 0 {
				return nil
			}

			set, err := s.ComputeSymbol(symbol, bars)
			if err != nil {
				return fmt.Errorf("indicators for %s: %w", symbol, err)
			}

			aligned := AlignToPanel(set, rows, panel.Len())
			mu.Lock()
			out.Sets[symbol] = aligned
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return nil, fmt.Errorf("%w: panel computation aborted", domain.ErrCancelled)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: panel computation timed out", domain.ErrDeadline)
		}
		return nil, err
	}
	return out, nil
}

// LatestValues returns the most recent available value per indicator for a
// computed set, for summary endpoints.
func LatestValues(set IndicatorSet) map[string]float64 {
	latest := make(map[string]float64, len(set))
	for name, series := range set {
		if v, ok := series.Last(); ok && !math.IsNaN(v) {
			latest[name] = v
		}
	}
	return latest
}
