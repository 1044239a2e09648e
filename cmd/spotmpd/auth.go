package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/edumarques81/spotmpd/internal/config"
	"github.com/edumarques81/spotmpd/internal/domain/streaming/spotify"
)

// authorize runs the OAuth authorization code flow: it prints the consent
// URL, waits for the redirect on the configured callback address and saves
// the resulting token.
func authorize(ctx context.Context, cfg config.Config) error {
	redirect, err := url.Parse(cfg.SpotifyRedirectURL)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("invalid redirect URL %q", cfg.SpotifyRedirectURL)
	}

	spotifyCfg := spotifyConfig(cfg)
	auth := spotify.NewAuthenticator(spotifyCfg)
	state := uuid.NewString()

	tokens := make(chan *oauth2.Token, 1)
	errs := make(chan error, 1)

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "authorization failed", http.StatusForbidden)
			report(errs, fmt.Errorf("failed to exchange authorization code: %w", err))
			return
		}
		fmt.Fprintln(w, "spotmpd is authorized, you can close this window.")
		report(tokens, token)
	})

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to listen for the OAuth callback: %w", err)
	}
	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(errs, err)
		}
	}()
	defer server.Close()

	log.Info().Msg("Open this URL to authorize spotmpd:")
	log.Info().Msg(auth.AuthURL(state))

	select {
	case token := <-tokens:
		if err := spotify.SaveToken(spotifyCfg.TokenFile, token); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		log.Info().Str("file", spotifyCfg.TokenFile).Msg("Token saved")
		return nil
	case err := <-errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func spotifyConfig(cfg config.Config) spotify.Config {
	return spotify.Config{
		ClientID:     cfg.SpotifyClientID,
		ClientSecret: cfg.SpotifyClientSecret,
		RedirectURL:  cfg.SpotifyRedirectURL,
		TokenFile:    cfg.TokenFile,
	}
}

// report delivers the first result and drops later ones.
func report[T any](ch chan<- T, v T) {
	select {
	case ch <- v:
	default:
	}
}
