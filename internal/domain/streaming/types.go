// Package streaming provides the track model and the catalog interface for
// streaming service integrations.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by a Catalog when a track or playlist does not exist.
var ErrNotFound = errors.New("not found")

// epochModified is reported as Last-Modified when the catalog has no date.
const epochModified = "1970-01-01T00:00:00Z"

// Track describes one playable catalog item.
type Track struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Album        string   `json:"album"`
	Artists      []string `json:"artists"`
	AlbumArtists []string `json:"albumArtists"`
	Duration     int      `json:"duration"` // Duration in milliseconds
	ReleaseDate  string   `json:"releaseDate,omitempty"`
}

// Clone returns a deep copy of the track.
func (t Track) Clone() Track {
	c := t
	c.Artists = append([]string(nil), t.Artists...)
	c.AlbumArtists = append([]string(nil), t.AlbumArtists...)
	return c
}

// Seconds returns the duration in whole seconds.
func (t Track) Seconds() int {
	return t.Duration / 1000
}

// Tags renders the track as MPD song tags for queue position pos.
func (t Track) Tags(pos int) []string {
	tags := t.FileTags()
	return append(tags,
		fmt.Sprintf("Pos: %d", pos),
		fmt.Sprintf("Id: %d", pos),
	)
}

// FileTags renders the track as MPD song tags without queue position,
// as used for stored playlist listings.
func (t Track) FileTags() []string {
	modified := t.ReleaseDate
	if modified == "" {
		modified = epochModified
	}
	secs := t.Seconds()
	return []string{
		"file: " + t.ID,
		"Last-Modified: " + modified,
		"Artist: " + strings.Join(t.Artists, ";"),
		"AlbumArtist: " + strings.Join(t.AlbumArtists, ";"),
		"Title: " + t.Title,
		"Album: " + t.Album,
		fmt.Sprintf("Time: %d", secs),
		fmt.Sprintf("duration: %d", secs),
	}
}

// Playlist is a stored playlist owned by the catalog user.
type Playlist struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId,omitempty"`
}

// Catalog is the remote music catalog the server resolves tracks against.
type Catalog interface {
	// LookupTrack resolves a track by its catalog id.
	LookupTrack(ctx context.Context, id string) (Track, error)

	// CurrentUserPlaylists lists the playlists of the authenticated user.
	CurrentUserPlaylists(ctx context.Context) ([]Playlist, error)

	// PlaylistTracks lists the playable tracks of a playlist.
	PlaylistTracks(ctx context.Context, userID, playlistID string) ([]Track, error)

	// CurrentUser returns the id of the authenticated user.
	CurrentUser(ctx context.Context) (string, error)
}

// FindPlaylist returns the first playlist of the current user named name.
func FindPlaylist(ctx context.Context, c Catalog, name string) (Playlist, error) {
	playlists, err := c.CurrentUserPlaylists(ctx)
	if err != nil {
		return Playlist{}, err
	}
	for _, p := range playlists {
		if p.Name == name {
			return p, nil
		}
	}
	return Playlist{}, fmt.Errorf("playlist %q: %w", name, ErrNotFound)
}
