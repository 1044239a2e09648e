// Package main is the entry point for spotmpd, an MPD protocol server backed
// by the Spotify catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/spotmpd/internal/config"
	"github.com/edumarques81/spotmpd/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg, loadErr := config.Load(".env")

	root := &cobra.Command{
		Use:           "spotmpd",
		Short:         "MPD protocol server for a Spotify-backed playback queue",
		Version:       version.GetInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			return setupLogging(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cfg.BindFlags(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "auth",
		Short: "Authorize spotmpd against a Spotify account and save the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.SpotifyClientID == "" || cfg.SpotifyClientSecret == "" {
				return fmt.Errorf("spotify client id and secret are required (SPOTIFY_ID, SPOTIFY_SECRET)")
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return authorize(ctx, cfg)
		},
	})

	root.AddCommand(newCacheCmd(&cfg))

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			log.Info().Msg(version.GetInfo().String())
		},
	})

	return root
}
