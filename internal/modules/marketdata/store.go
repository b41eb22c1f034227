// Package marketdata persists daily OHLCV histories in market.db and serves
// them as dense price panels. The Store implements domain.MarketDataSource.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantleap/quantd/internal/database"
	"github.com/quantleap/quantd/internal/domain"
	"github.com/quantleap/quantd/pkg/formulas"
)

// Store reads and writes market.db. A constant risk-free rate from config
// backs FetchRiskFreeRate when no stored curve matches the requested source.
type Store struct {
	db           *database.DB
	riskFreeRate float64
	log          zerolog.Logger
}

// NewStore creates a market data store.
func NewStore(db *database.DB, riskFreeRate float64, log zerolog.Logger) *Store {
	return &Store{
		db:           db,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "marketdata").Logger(),
	}
}

// UpsertBars writes a symbol's bars, replacing rows that share a date.
// Returns the number of bars written.
func (s *Store) UpsertBars(ctx context.Context, symbol string, bars []domain.Bar) (int, error) {
	if symbol == "" {
		return 0, fmt.Errorf("%w: empty symbol", domain.ErrValidation)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("%w: no bars for %s", domain.ErrValidation, symbol)
	}
	if err := domain.ValidateBars(symbol, bars); err != nil {
		return 0, err
	}

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bars (symbol, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx,
				symbol, domain.Day(b.Date).Unix(),
				b.Open, b.High, b.Low, b.Close, b.Volume,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert bars for %s: %w", symbol, err)
	}
	return len(bars), nil
}

// GetBars returns a symbol's bars over [start, end] in date order.
func (s *Store) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM bars
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, domain.Day(start).Unix(), domain.Day(end).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var unix int64
		var b domain.Bar
		if err := rows.Scan(&unix, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w", symbol, err)
		}
		b.Date = time.Unix(unix, 0).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists every symbol with stored bars.
func (s *Store) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM bars ORDER BY symbol ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// BarCount returns the number of stored bars for a symbol.
func (s *Store) BarCount(ctx context.Context, symbol string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bars WHERE symbol = ?", symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", symbol, err)
	}
	return count, nil
}

// FetchPrices assembles a dense price panel for the symbols over [start,
// end]. Symbols with no stored bars in the window are left out of the
// panel; an entirely empty result is ErrDataUnavailable.
func (s *Store) FetchPrices(ctx context.Context, symbols []string, start, end time.Time) (*domain.PricePanel, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", domain.ErrValidation)
	}

	history := make(map[string][]domain.Bar, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := s.GetBars(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			s.log.Debug().Str("symbol", symbol).Msg("No bars in window, omitting from panel")
			continue
		}
		history[symbol] = bars
	}

	if len(history) == 0 {
		return nil, fmt.Errorf("%w: no bars for any requested symbol in [%s, %s]",
			domain.ErrDataUnavailable, start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return domain.NewPricePanel(history)
}

// FetchBenchmarkReturns returns the benchmark's daily close-to-close
// returns over [start, end] on its own trading calendar.
func (s *Store) FetchBenchmarkReturns(ctx context.Context, benchmark string, start, end time.Time) ([]float64, error) {
	bars, err := s.GetBars(ctx, benchmark, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) < 2 {
		return nil, fmt.Errorf("%w: benchmark %s has %d bars in window, need at least 2",
			domain.ErrDataUnavailable, benchmark, len(bars))
	}
	return formulas.CalculateReturns(domain.Closes(bars)), nil
}

// FetchRiskFreeRate returns the stored daily annualized rate series for the
// source, or a flat series at the configured fallback rate when none is
// stored.
func (s *Store) FetchRiskFreeRate(ctx context.Context, source string, start, end time.Time) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rate FROM risk_free_rates
		WHERE source = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, source, domain.Day(start).Unix(), domain.Day(end).Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query risk-free rates: %w", err)
	}
	defer rows.Close()

	var rates []float64
	for rows.Next() {
		var rate float64
		if err := rows.Scan(&rate); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(rates) > 0 {
		return rates, nil
	}

	// Flat fallback, one sample per civil day in the window.
	days := int(domain.Day(end).Sub(domain.Day(start)).Hours()/24) + 1
	if days < 1 {
		return nil, fmt.Errorf("%w: empty rate window", domain.ErrValidation)
	}
	rates = make([]float64, days)
	for i := range rates {
		rates[i] = s.riskFreeRate
	}
	return rates, nil
}

// UpsertRiskFreeRate stores one daily annualized rate observation.
func (s *Store) UpsertRiskFreeRate(ctx context.Context, source string, date time.Time, rate float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_free_rates (source, date, rate)
		VALUES (?, ?, ?)
		ON CONFLICT(source, date) DO UPDATE SET rate = excluded.rate
	`, source, domain.Day(date).Unix(), rate)
	if err != nil {
		return fmt.Errorf("failed to upsert risk-free rate: %w", err)
	}
	return nil
}

// UpsertOptionContracts stores listed option contracts, replacing duplicates.
func (s *Store) UpsertOptionContracts(ctx context.Context, contracts []domain.OptionContract) (int, error) {
	if len(contracts) == 0 {
		return 0, fmt.Errorf("%w: no contracts", domain.ErrValidation)
	}

	err := database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO option_contracts (underlying, strike, expiry, type, style)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(underlying, strike, expiry, type) DO UPDATE SET style = excluded.style
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range contracts {
			if c.Underlying == "" || c.Strike <= 0 {
				return fmt.Errorf("%w: contract needs an underlying and a positive strike", domain.ErrValidation)
			}
			if _, err := stmt.ExecContext(ctx,
				c.Underlying, c.Strike, domain.Day(c.Expiry).Unix(), string(c.Type), string(c.Style),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert option contracts: %w", err)
	}
	return len(contracts), nil
}

// FetchOptionsChain returns the contracts listed on a symbol, optionally
// filtered to one expiry.
func (s *Store) FetchOptionsChain(ctx context.Context, symbol string, expiry *time.Time) ([]domain.OptionContract, error) {
	query := `
		SELECT underlying, strike, expiry, type, style
		FROM option_contracts
		WHERE underlying = ?
	`
	args := []interface{}{symbol}
	if expiry != nil {
		query += " AND expiry = ?"
		args = append(args, domain.Day(*expiry).Unix())
	}
	query += " ORDER BY expiry ASC, strike ASC, type ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query options chain for %s: %w", symbol, err)
	}
	defer rows.Close()

	var contracts []domain.OptionContract
	for rows.Next() {
		var c domain.OptionContract
		var unix int64
		var typ, style string
		if err := rows.Scan(&c.Underlying, &c.Strike, &unix, &typ, &style); err != nil {
			return nil, err
		}
		c.Expiry = time.Unix(unix, 0).UTC()
		c.Type = domain.OptionType(typ)
		c.Style = domain.OptionStyle(style)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}
