package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/edumarques81/spotmpd/internal/config"
	"github.com/edumarques81/spotmpd/internal/infra/cache"
)

// newCacheCmd inspects and maintains the track cache. cfg is read when the
// subcommand runs so flags have been applied.
func newCacheCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the track metadata cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print track cache statistics",
		RunE: func(c *cobra.Command, args []string) error {
			return withCache(cfg, func(db *cache.DB) error {
				stats, err := db.GetStats()
				if err != nil {
					return err
				}
				printStats(c.OutOrStdout(), db.Path(), stats)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached track",
		RunE: func(c *cobra.Command, args []string) error {
			return withCache(cfg, (*cache.DB).Clear)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove tracks older than the cache TTL",
		RunE: func(c *cobra.Command, args []string) error {
			return withCache(cfg, func(db *cache.DB) error {
				n, err := cache.NewTrackDAO(db, cfg.CacheTTL).PurgeExpired()
				if err != nil {
					return err
				}
				fmt.Fprintf(c.OutOrStdout(), "purged %d tracks\n", n)
				return nil
			})
		},
	})

	return cmd
}

func withCache(cfg *config.Config, fn func(*cache.DB) error) error {
	if cfg.CacheDB == "" {
		return fmt.Errorf("track cache is disabled (--cache-db is empty)")
	}
	db := cache.NewDB(cfg.CacheDB)
	if err := db.Open(); err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func printStats(w io.Writer, path string, stats *cache.Stats) {
	fmt.Fprintf(w, "path:           %s\n", path)
	fmt.Fprintf(w, "schema version: %s\n", stats.SchemaVersion)
	fmt.Fprintf(w, "tracks:         %d\n", stats.TrackCount)
	if stats.LastPurge.IsZero() {
		fmt.Fprintln(w, "last purge:     never")
	} else {
		fmt.Fprintf(w, "last purge:     %s\n", stats.LastPurge.Local().Format(time.RFC3339))
	}
}
