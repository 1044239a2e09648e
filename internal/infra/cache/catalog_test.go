package cache

import (
	"context"

	"github.com/edumarques81/spotmpd/internal/domain/streaming"
)

// countingCatalog resolves every id to a fixed track and counts lookups.
type countingCatalog struct {
	calls *int
}

func (c countingCatalog) LookupTrack(_ context.Context, id string) (streaming.Track, error) {
	*c.calls++
	return streaming.Track{ID: id, Title: "X", Artists: []string{"Y"}}, nil
}

func (countingCatalog) CurrentUserPlaylists(context.Context) ([]streaming.Playlist, error) {
	return nil, nil
}

func (countingCatalog) PlaylistTracks(context.Context, string, string) ([]streaming.Track, error) {
	return nil, nil
}

func (countingCatalog) CurrentUser(context.Context) (string, error) {
	return "u", nil
}
