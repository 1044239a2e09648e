package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/spotmpd/internal/domain/streaming"
)

// DefaultTTL is how long a cached track stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// TrackDAO stores catalog tracks. It implements streaming.TrackStore.
type TrackDAO struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

var _ streaming.TrackStore = (*TrackDAO)(nil)

// NewTrackDAO creates a track DAO. A non-positive ttl means DefaultTTL.
func NewTrackDAO(db *DB, ttl time.Duration) *TrackDAO {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TrackDAO{db: db, ttl: ttl, now: time.Now}
}

// GetTrack returns a fresh cached track. Expired rows are reported as misses.
func (dao *TrackDAO) GetTrack(id string) (streaming.Track, bool, error) {
	db, err := dao.db.conn()
	if err != nil {
		return streaming.Track{}, false, err
	}

	var (
		t                     streaming.Track
		artists, albumArtists string
		fetchedAt             string
	)
	err = db.QueryRow(`
		SELECT id, title, album, artists, album_artists, duration_ms, release_date, fetched_at
		FROM tracks WHERE id = ?
	`, id).Scan(&t.ID, &t.Title, &t.Album, &artists, &albumArtists, &t.Duration, &t.ReleaseDate, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return streaming.Track{}, false, nil
	}
	if err != nil {
		return streaming.Track{}, false, fmt.Errorf("failed to read track %s: %w", id, err)
	}

	fetched, err := time.Parse(time.RFC3339, fetchedAt)
	if err != nil || dao.now().Sub(fetched) > dao.ttl {
		return streaming.Track{}, false, nil
	}

	if err := json.Unmarshal([]byte(artists), &t.Artists); err != nil {
		return streaming.Track{}, false, fmt.Errorf("corrupt artists for %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(albumArtists), &t.AlbumArtists); err != nil {
		return streaming.Track{}, false, fmt.Errorf("corrupt album artists for %s: %w", id, err)
	}

	return t, true, nil
}

// PutTrack inserts or refreshes a track.
func (dao *TrackDAO) PutTrack(t streaming.Track) error {
	db, err := dao.db.conn()
	if err != nil {
		return err
	}

	artists, err := json.Marshal(nonNil(t.Artists))
	if err != nil {
		return err
	}
	albumArtists, err := json.Marshal(nonNil(t.AlbumArtists))
	if err != nil {
		return err
	}

	now := dao.now().UTC().Format(time.RFC3339)
	_, err = db.Exec(`
		INSERT INTO tracks (id, title, album, artists, album_artists, duration_ms, release_date, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, album = excluded.album, artists = excluded.artists,
			album_artists = excluded.album_artists, duration_ms = excluded.duration_ms,
			release_date = excluded.release_date, fetched_at = excluded.fetched_at
	`, t.ID, t.Title, t.Album, string(artists), string(albumArtists), t.Duration, t.ReleaseDate, now)
	if err != nil {
		return fmt.Errorf("failed to store track %s: %w", t.ID, err)
	}
	return nil
}

// PurgeExpired deletes tracks older than the TTL and returns how many were removed.
func (dao *TrackDAO) PurgeExpired() (int64, error) {
	db, err := dao.db.conn()
	if err != nil {
		return 0, err
	}

	cutoff := dao.now().Add(-dao.ttl).UTC().Format(time.RFC3339)
	res, err := db.Exec("DELETE FROM tracks WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tracks: %w", err)
	}

	n, _ := res.RowsAffected()
	if err := dao.db.setMeta("last_purge", dao.now().UTC().Format(time.RFC3339)); err != nil {
		log.Warn().Err(err).Msg("Failed to record cache purge")
	}
	log.Info().Int64("removed", n).Msg("Expired tracks purged")
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
