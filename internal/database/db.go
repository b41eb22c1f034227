// Package database opens and tunes the SQLite files backing the engine:
// bar history (market.db), the job ledger (jobs.db) and the indicator
// cache (cache.db). Schemas ship embedded in the binary.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

//go:embed schemas/*.sql
var schemaFS embed.FS

// Profile selects the durability/speed trade-off a database runs under.
type Profile string

const (
	// ProfileLedger fsyncs every write. Job rows and result blobs must
	// survive a hard kill.
	ProfileLedger Profile = "ledger"
	// ProfileCache skips fsync entirely; everything in it can be
	// recomputed.
	ProfileCache Profile = "cache"
	// ProfileStandard fsyncs at WAL checkpoints.
	ProfileStandard Profile = "standard"
)

// Config describes one database file to open.
type Config struct {
	Path    string
	Profile Profile
	Name    string // schema key and log label: "market", "jobs", "cache"
}

// DB is an opened, tuned SQLite handle.
type DB struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// New opens the database file, creating its directory if needed, and
// applies the profile's PRAGMA set. The connection is verified with a
// short ping before it is returned.
func New(cfg Config) (*DB, error) {
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path %q: %w", cfg.Path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory for %s: %w", cfg.Name, err)
	}
	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}

	conn, err := sql.Open("sqlite", dsn(abs, cfg.Profile))
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Name, err)
	}
	tunePool(conn, cfg.Profile)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, path: abs, profile: cfg.Profile, name: cfg.Name}, nil
}

// dsn appends the profile's PRAGMA set to the file path in the query-string
// form the modernc driver parses. WAL journaling is common to all profiles.
func dsn(path string, profile Profile) string {
	pragmas := []string{"journal_mode(WAL)"}
	switch profile {
	case ProfileLedger:
		pragmas = append(pragmas, "synchronous(FULL)", "auto_vacuum(NONE)")
	case ProfileCache:
		pragmas = append(pragmas, "synchronous(OFF)", "auto_vacuum(FULL)", "temp_store(MEMORY)")
	default:
		pragmas = append(pragmas, "synchronous(NORMAL)", "auto_vacuum(INCREMENTAL)", "temp_store(MEMORY)")
	}
	pragmas = append(pragmas,
		"foreign_keys(1)",
		"wal_autocheckpoint(1000)",
		"cache_size(-64000)", // 64 MB
	)

	var b strings.Builder
	b.WriteString(path)
	for i, p := range pragmas {
		if i == 0 {
			b.WriteString("?_pragma=")
		} else {
			b.WriteString("&_pragma=")
		}
		b.WriteString(p)
	}
	return b.String()
}

// tunePool sizes the connection pool for a long-running process. The cache
// database sees less traffic and gets a smaller pool.
func tunePool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)
	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// Migrate applies the schema embedded for this database's name inside one
// transaction. Names without a bundled schema are left untouched, and the
// schemas themselves guard with IF NOT EXISTS, so Migrate is idempotent.
func (db *DB) Migrate() error {
	schema, err := schemaFS.ReadFile("schemas/" + db.name + "_schema.sql")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read embedded schema for %s: %w", db.name, err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction for %s: %w", db.name, err)
	}
	if _, err := tx.Exec(string(schema)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply schema for %s: %w", db.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema for %s: %w", db.name, err)
	}
	return nil
}

// Conn exposes the underlying pool for callers that need raw database/sql
// access, such as WithTransaction.
func (db *DB) Conn() *sql.DB { return db.conn }

// Close closes the connection pool.
func (db *DB) Close() error { return db.conn.Close() }

// QuickCheck pings the database. Used by the health endpoint and the
// checkpoint job; it deliberately skips the expensive integrity_check.
func (db *DB) QuickCheck(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WALCheckpoint forces a checkpoint so the WAL file cannot grow without
// bound between autocheckpoints. Mode defaults to TRUNCATE, which also
// resets the WAL file to its minimal size.
func (db *DB) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	if _, err := db.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("wal checkpoint %s for %s: %w", mode, db.name, err)
	}
	return nil
}

func (db *DB) Exec(query string, args ...any) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

func (db *DB) Query(query string, args ...any) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

func (db *DB) QueryRow(query string, args ...any) *sql.Row {
	return db.conn.QueryRow(query, args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic. A panic is converted into the returned
// error rather than propagated with the transaction open.
func WithTransaction(db *sql.DB, fn func(*sql.Tx) error) (err error) {
	if db == nil {
		return errors.New("database connection is nil")
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rbErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("commit transaction: %w", commitErr)
		}
	}()

	return fn(tx)
}

// Stats are the size figures surfaced on the system status endpoint.
type Stats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	FreelistCount int64
}

// GetStats reads file sizes from disk and page counters from SQLite.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	if info, err := os.Stat(db.path); err == nil {
		stats.SizeBytes = info.Size()
	}
	if info, err := os.Stat(db.path + "-wal"); err == nil {
		stats.WALSizeBytes = info.Size()
	}
	if err := db.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("page count for %s: %w", db.name, err)
	}
	if err := db.conn.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistCount); err != nil {
		return nil, fmt.Errorf("freelist count for %s: %w", db.name, err)
	}
	return stats, nil
}
