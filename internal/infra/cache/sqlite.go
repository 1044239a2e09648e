// Package cache keeps catalog track metadata in SQLite so repeated lookups
// skip the network.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the schema version written by Open.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is used when NewDB is given an empty path.
	DefaultDBPath = "data/spotmpd.db"
)

var errClosed = errors.New("cache database not open")

// migrations[i] upgrades a schema at version i to version i+1.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tracks (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL,
		album         TEXT NOT NULL DEFAULT '',
		artists       TEXT NOT NULL DEFAULT '[]',
		album_artists TEXT NOT NULL DEFAULT '[]',
		duration_ms   INTEGER NOT NULL DEFAULT 0,
		release_date  TEXT NOT NULL DEFAULT '',
		fetched_at    TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tracks_fetched ON tracks(fetched_at);
	CREATE TABLE IF NOT EXISTS cache_meta (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
}

// DB is the track cache database. It is safe for concurrent use.
type DB struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewDB returns an unopened cache at path.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{path: path}
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Open creates the database file if needed and brings its schema up to date.
func (d *DB) Open() error {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}
	// One connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to migrate cache schema: %w", err)
	}

	d.mu.Lock()
	d.db = db
	d.mu.Unlock()

	log.Debug().Str("path", d.path).Msg("Cache database opened")
	return nil
}

// Close closes the database. Closing twice is a no-op.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func migrate(db *sql.DB) error {
	from := schemaVersion(db)
	if from > len(migrations) {
		// Written by a newer build. The cache can always be refetched.
		log.Warn().Int("version", from).Msg("Unknown cache schema, rebuilding")
		if _, err := db.Exec("DROP TABLE IF EXISTS tracks; DROP TABLE IF EXISTS cache_meta"); err != nil {
			return err
		}
		from = 0
	}

	for v := from; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("version %d: %w", v+1, err)
		}
		if err := setMeta(db, "schema_version", strconv.Itoa(v+1)); err != nil {
			return err
		}
		log.Info().Int("version", v+1).Msg("Cache schema migrated")
	}
	return nil
}

// schemaVersion reports 0 for a fresh database.
func schemaVersion(db *sql.DB) int {
	v, err := getMeta(db, "schema_version")
	if err != nil || v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func setMeta(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT INTO cache_meta (key, value, updated_at) VALUES (?1, ?2, ?3)
		ON CONFLICT(key) DO UPDATE SET value = ?2, updated_at = ?3`,
		key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

func getMeta(db *sql.DB, key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// GetStats reports the cached track count, schema version and last purge.
func (d *DB) GetStats() (*Stats, error) {
	db, err := d.conn()
	if err != nil {
		return nil, err
	}

	var stats Stats
	if err := db.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&stats.TrackCount); err != nil {
		return nil, fmt.Errorf("failed to count tracks: %w", err)
	}
	stats.SchemaVersion, _ = getMeta(db, "schema_version")
	if lastPurge, _ := getMeta(db, "last_purge"); lastPurge != "" {
		stats.LastPurge, _ = time.Parse(time.RFC3339, lastPurge)
	}
	return &stats, nil
}

// Clear drops every cached track and keeps the schema.
func (d *DB) Clear() error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	if _, err := db.Exec("DELETE FROM tracks"); err != nil {
		return fmt.Errorf("failed to clear tracks: %w", err)
	}
	log.Info().Str("path", d.path).Msg("Track cache cleared")
	return nil
}

func (d *DB) conn() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, errClosed
	}
	return d.db, nil
}

func (d *DB) setMeta(key, value string) error {
	db, err := d.conn()
	if err != nil {
		return err
	}
	return setMeta(db, key, value)
}
