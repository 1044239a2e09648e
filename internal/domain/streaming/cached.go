package streaming

import (
	"context"

	"github.com/rs/zerolog/log"
)

// TrackStore persists resolved track metadata between lookups.
type TrackStore interface {
	GetTrack(id string) (Track, bool, error)
	PutTrack(t Track) error
}

// CachedCatalog wraps a Catalog with a track metadata cache.
// Playlist reads always go to the underlying catalog.
type CachedCatalog struct {
	Catalog
	store TrackStore
}

// NewCachedCatalog creates a cached catalog. A nil store disables caching.
func NewCachedCatalog(c Catalog, store TrackStore) *CachedCatalog {
	return &CachedCatalog{
		Catalog: c,
		store:   store,
	}
}

// LookupTrack returns the cached track if present, otherwise resolves it
// through the catalog and stores the result.
func (c *CachedCatalog) LookupTrack(ctx context.Context, id string) (Track, error) {
	if c.store == nil {
		return c.Catalog.LookupTrack(ctx, id)
	}

	track, ok, err := c.store.GetTrack(id)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Track cache read failed, falling back to catalog")
	} else if ok {
		return track, nil
	}

	track, err = c.Catalog.LookupTrack(ctx, id)
	if err != nil {
		return Track{}, err
	}

	if err := c.store.PutTrack(track); err != nil {
		log.Warn().Err(err).Str("id", id).Msg("Track cache write failed")
	}
	return track, nil
}

// PlaylistTracks resolves playlist tracks and warms the cache with them.
func (c *CachedCatalog) PlaylistTracks(ctx context.Context, userID, playlistID string) ([]Track, error) {
	tracks, err := c.Catalog.PlaylistTracks(ctx, userID, playlistID)
	if err != nil || c.store == nil {
		return tracks, err
	}
	for _, t := range tracks {
		if err := c.store.PutTrack(t); err != nil {
			log.Debug().Err(err).Str("id", t.ID).Msg("Track cache write failed")
			break
		}
	}
	return tracks, nil
}
