package indicators

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/quantleap/quantd/internal/database"
	"github.com/quantleap/quantd/internal/domain"
)

// Cache persists computed indicator sets in cache.db, keyed by symbol and
// a content hash of the input bars. Entries expire after the configured TTL
// and are reclaimed by Sweep. Payloads are msgpack blobs; NaN survives the
// round trip, which JSON could not give us.
type Cache struct {
	db  *database.DB
	ttl time.Duration
	log zerolog.Logger
}

// NewCache creates an indicator cache on the given database handle.
func NewCache(db *database.DB, ttl time.Duration, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		ttl: ttl,
		log: log.With().Str("component", "indicator_cache").Logger(),
	}
}

// HashBars returns a stable content hash of a bar history. Any change to a
// date or an OHLCV value produces a different key.
func HashBars(bars []domain.Bar) string {
	h := sha256.New()
	var buf [8]byte
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	for _, b := range bars {
		write(uint64(b.Date.Unix()))
		write(math.Float64bits(b.Open))
		write(math.Float64bits(b.High))
		write(math.Float64bits(b.Low))
		write(math.Float64bits(b.Close))
		write(math.Float64bits(b.Volume))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

type cachedSeries struct {
	Values []float64 `msgpack:"v"`
	Warmup int       `msgpack:"w"`
}

type cachedSet struct {
	Series map[string]cachedSeries `msgpack:"s"`
}

// Get returns the cached indicator set for (symbol, barsHash), false on a
// miss or an expired entry.
func (c *Cache) Get(symbol, barsHash string) (IndicatorSet, bool) {
	var payload []byte
	var expiresAt int64
	err := c.db.QueryRow(
		"SELECT payload, expires_at FROM indicator_cache WHERE symbol = ? AND bars_hash = ?",
		symbol, barsHash,
	).Scan(&payload, &expiresAt)
	if err != nil {
		return nil, false
	}
	if time.Now().Unix() >= expiresAt {
		return nil, false
	}

	var stored cachedSet
	if err := msgpack.Unmarshal(payload, &stored); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("Discarding undecodable indicator cache entry")
		return nil, false
	}

	set := make(IndicatorSet, len(stored.Series))
	for name, s := range stored.Series {
		set[name] = domain.NewSeries(s.Values, s.Warmup)
	}
	return set, true
}

// Set stores a computed indicator set under (symbol, barsHash), replacing
// any previous entry for the same key.
func (c *Cache) Set(symbol, barsHash string, set IndicatorSet) error {
	stored := cachedSet{Series: make(map[string]cachedSeries, len(set))}
	for name, s := range set {
		stored.Series[name] = cachedSeries{Values: s.Values, Warmup: s.Warmup}
	}
	payload, err := msgpack.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode indicator cache entry: %w", err)
	}

	now := time.Now()
	_, err = c.db.Exec(`
		INSERT INTO indicator_cache (symbol, bars_hash, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol, bars_hash) DO UPDATE SET
			payload = excluded.payload,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, symbol, barsHash, payload, now.Unix(), now.Add(c.ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to store indicator cache entry: %w", err)
	}
	return nil
}

// Sweep deletes expired entries and returns how many were removed.
func (c *Cache) Sweep() (int64, error) {
	res, err := c.db.Exec("DELETE FROM indicator_cache WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep indicator cache: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Debug().Int64("removed", removed).Msg("Swept expired indicator cache entries")
	}
	return removed, nil
}

// Count returns the number of live cache entries.
func (c *Cache) Count() (int64, error) {
	var count int64
	err := c.db.QueryRow(
		"SELECT COUNT(*) FROM indicator_cache WHERE expires_at > ?",
		time.Now().Unix(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count indicator cache entries: %w", err)
	}
	return count, nil
}
