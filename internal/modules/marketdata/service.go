package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/internal/events"
)

// Ingest sources recorded on BARS_INGESTED events.
const (
	SourceCSV       = "csv"
	SourceJSON      = "json"
	SourceSynthetic = "synthetic"
)

// Service wraps the store with ingest bookkeeping and event emission.
type Service struct {
	store  *Store
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a market data service. events may be nil.
func NewService(store *Store, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		events: eventManager,
		log:    log.With().Str("component", "marketdata").Logger(),
	}
}

// Store exposes the underlying store for callers that need the full
// MarketDataSource surface.
func (s *Service) Store() *Store {
	return s.store
}

// IngestBars validates and upserts a symbol's bars, then announces them.
func (s *Service) IngestBars(ctx context.Context, symbol string, bars []domain.Bar, source string) (int, error) {
	count, err := s.store.UpsertBars(ctx, symbol, bars)
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Str("symbol", symbol).
		Int("bars", count).
		Str("source", source).
		Msg("Ingested bars")

	if s.events != nil {
		s.events.EmitTyped(events.BarsIngested, "marketdata", &events.BarsIngestedData{
			Symbol: symbol,
			Bars:   count,
			Source: source,
		})
	}
	return count, nil
}

// GenerateSynthetic produces a seeded GBM path for a symbol and ingests it.
func (s *Service) GenerateSynthetic(ctx context.Context, symbol string, cfg GBMConfig) (int, error) {
	bars, err := GenerateGBM(cfg)
	if err != nil {
		return 0, err
	}
	return s.IngestBars(ctx, symbol, bars, SourceSynthetic)
}

// Bars returns a symbol's stored bars over [start, end].
func (s *Service) Bars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return s.store.GetBars(ctx, symbol, start, end)
}

// Symbols lists every stored symbol.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	return s.store.Symbols(ctx)
}

// IngestOptionContracts stores listed contracts for chain lookups.
func (s *Service) IngestOptionContracts(ctx context.Context, contracts []domain.OptionContract) (int, error) {
	return s.store.UpsertOptionContracts(ctx, contracts)
}

// OptionsChain returns the stored contracts for a symbol, optionally
// filtered by expiry.
func (s *Service) OptionsChain(ctx context.Context, symbol string, expiry *time.Time) ([]domain.OptionContract, error) {
	return s.store.FetchOptionsChain(ctx, symbol, expiry)
}
