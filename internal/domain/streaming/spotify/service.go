// Package spotify implements the streaming catalog on top of the Spotify Web API.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/edumarques81/spotmpd/internal/domain/streaming"
)

const (
	// playlistPageSize is the maximum page size for playlist endpoints.
	playlistPageSize = 50

	// itemPageSize is the maximum page size for playlist item endpoints.
	itemPageSize = 100
)

// Config holds Spotify-specific configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenFile    string
}

// Service implements streaming.Catalog against the Spotify Web API.
type Service struct {
	client *spotify.Client

	mu     sync.Mutex
	userID string
}

var _ streaming.Catalog = (*Service)(nil)

// NewAuthenticator builds the OAuth authenticator for the scopes the catalog needs.
func NewAuthenticator(cfg Config) *spotifyauth.Authenticator {
	return spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
			spotifyauth.ScopeUserReadPrivate,
		),
	)
}

// NewService creates a catalog that authenticates with the saved token.
// The token is refreshed transparently by the oauth2 transport.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	token, err := LoadToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load spotify token (run `spotmpd auth` first): %w", err)
	}

	auth := NewAuthenticator(cfg)
	return NewServiceWithHTTPClient(auth.Client(ctx, token)), nil
}

// NewServiceWithHTTPClient creates a catalog on an already authenticated HTTP client.
func NewServiceWithHTTPClient(httpClient *http.Client, opts ...spotify.ClientOption) *Service {
	return &Service{
		client: spotify.New(httpClient, opts...),
	}
}

// LookupTrack resolves a track by its Spotify id.
func (s *Service) LookupTrack(ctx context.Context, id string) (streaming.Track, error) {
	full, err := s.client.GetTrack(ctx, spotify.ID(id))
	if err != nil {
		return streaming.Track{}, fmt.Errorf("failed to get track %s: %w", id, mapError(err))
	}
	log.Debug().Str("id", id).Str("title", full.Name).Msg("Resolved track")
	return convertTrack(full), nil
}

// CurrentUserPlaylists lists all playlists of the authenticated user.
func (s *Service) CurrentUserPlaylists(ctx context.Context) ([]streaming.Playlist, error) {
	page, err := s.client.CurrentUsersPlaylists(ctx, spotify.Limit(playlistPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", mapError(err))
	}

	var playlists []streaming.Playlist
	for {
		for _, p := range page.Playlists {
			playlists = append(playlists, streaming.Playlist{
				ID:      string(p.ID),
				Name:    p.Name,
				OwnerID: p.Owner.ID,
			})
		}

		err := s.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to page playlists: %w", mapError(err))
		}
	}

	return playlists, nil
}

// PlaylistTracks lists the playable tracks of a playlist. Local files and
// podcast episodes are skipped.
func (s *Service) PlaylistTracks(ctx context.Context, userID, playlistID string) ([]streaming.Track, error) {
	page, err := s.client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(itemPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %s: %w", playlistID, mapError(err))
	}

	var tracks []streaming.Track
	for {
		for _, item := range page.Items {
			if item.IsLocal || item.Track.Track == nil {
				continue
			}
			tracks = append(tracks, convertTrack(item.Track.Track))
		}

		err := s.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to page playlist %s: %w", playlistID, mapError(err))
		}
	}

	log.Debug().
		Str("user", userID).
		Str("playlist", playlistID).
		Int("tracks", len(tracks)).
		Msg("Resolved playlist")
	return tracks, nil
}

// CurrentUser returns the id of the authenticated user. The id is fetched once.
func (s *Service) CurrentUser(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userID != "" {
		return s.userID, nil
	}

	user, err := s.client.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", mapError(err))
	}
	s.userID = user.ID
	return s.userID, nil
}

func convertTrack(t *spotify.FullTrack) streaming.Track {
	return streaming.Track{
		ID:           string(t.ID),
		Title:        t.Name,
		Album:        t.Album.Name,
		Artists:      artistNames(t.Artists),
		AlbumArtists: artistNames(t.Album.Artists),
		Duration:     int(t.Duration),
		ReleaseDate:  t.Album.ReleaseDate,
	}
}

func artistNames(artists []spotify.SimpleArtist) []string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return names
}

// mapError translates Spotify 404s into streaming.ErrNotFound.
func mapError(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("%s: %w", apiErr.Message, streaming.ErrNotFound)
	}
	return err
}
