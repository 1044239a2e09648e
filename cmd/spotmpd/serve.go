package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/spotmpd/internal/config"
	"github.com/edumarques81/spotmpd/internal/domain/device"
	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/domain/player"
	"github.com/edumarques81/spotmpd/internal/domain/queue"
	"github.com/edumarques81/spotmpd/internal/domain/streaming"
	"github.com/edumarques81/spotmpd/internal/domain/streaming/spotify"
	"github.com/edumarques81/spotmpd/internal/infra/cache"
	"github.com/edumarques81/spotmpd/internal/infra/mpd"
	"github.com/edumarques81/spotmpd/internal/transport/mpdproto"
	"github.com/edumarques81/spotmpd/internal/transport/socketio"
	"github.com/edumarques81/spotmpd/internal/version"
)

const shutdownTimeout = 5 * time.Second

// serve wires the catalog, renderer, queue and servers and runs them until
// ctx is cancelled or a component fails.
func serve(ctx context.Context, cfg config.Config) error {
	info := version.GetInfo()
	log.Info().Msgf("%s", info.String())
	log.Info().
		Str("listen", cfg.Listen).
		Str("http", cfg.HTTPAddr).
		Str("renderer", cfg.Renderer).
		Int("max_connections", cfg.MaxConnections).
		Str("cache", cfg.CacheDB).
		Msg("Configuration")

	catalog, closeCatalog, err := newCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCatalog()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		errOnce sync.Once
		runErr  error
	)
	fail := func(err error) {
		errOnce.Do(func() { runErr = err })
		cancel()
	}
	spawn := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn()
			switch {
			case err == nil:
			case ctx.Err() != nil:
				log.Debug().Err(err).Str("component", name).Msg("Component stopped")
			default:
				log.Error().Err(err).Str("component", name).Msg("Component failed")
				fail(fmt.Errorf("%s: %w", name, err))
			}
		}()
	}

	pump := player.NewPump()
	spawn("intent pump", func() error {
		pump.Run(ctx)
		return nil
	})

	bus := idle.NewBus()
	q := queue.New(pump, queue.WithNotifier(bus))

	events, runRenderer := newRenderer(cfg, q)
	spawn("renderer", func() error {
		return runRenderer(ctx, pump.Intents())
	})

	worker := queue.NewWorker(q, events)
	spawn("queue worker", func() error {
		return worker.Run(ctx)
	})

	mpdServer := mpdproto.NewServer(
		&mpdproto.Client{Queue: q, Catalog: catalog, Bus: bus},
		mpdproto.DefaultRegistry(),
		mpdproto.Options{
			MaxConnections:     cfg.MaxConnections,
			CommandListMax:     cfg.CommandListMax,
			CommandListTimeout: cfg.CommandListTimeout,
			WriteTimeout:       cfg.WriteTimeout,
		},
	)
	spawn("mpd server", func() error {
		return mpdServer.ListenAndServe(ctx, cfg.Listen)
	})

	if cfg.HTTPAddr != "" {
		identity, err := device.LoadIdentity(cfg.DeviceFile)
		if err != nil {
			log.Warn().Err(err).Msg("Using a temporary device identity")
			identity, _ = device.LoadIdentity("")
		}

		sio, err := socketio.NewServer(q, catalog, identity, cfg.MaxConnections)
		if err != nil {
			fail(fmt.Errorf("failed to create Socket.io server: %w", err))
		} else {
			defer sio.Close()
			spawn("socket.io watcher", func() error {
				sio.Watch(ctx, bus)
				return nil
			})
			spawn("http server", func() error {
				return serveHTTP(ctx, cfg.HTTPAddr, newHTTPHandler(q, mpdServer, sio))
			})
		}
	}

	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	wg.Wait()
	log.Info().Msg("Server stopped")
	return runErr
}

// newCatalog builds the Spotify catalog, fronted by the SQLite track cache
// when one is configured.
func newCatalog(ctx context.Context, cfg config.Config) (streaming.Catalog, func(), error) {
	service, err := spotify.NewService(ctx, spotifyConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	if cfg.CacheDB == "" {
		return service, func() {}, nil
	}

	db := cache.NewDB(cfg.CacheDB)
	if err := db.Open(); err != nil {
		return nil, nil, fmt.Errorf("failed to open track cache: %w", err)
	}

	dao := cache.NewTrackDAO(db, cfg.CacheTTL)
	if n, err := dao.PurgeExpired(); err != nil {
		log.Warn().Err(err).Msg("Failed to purge expired cache entries")
	} else if n > 0 {
		log.Info().Int64("purged", n).Msg("Expired cache entries removed")
	}
	if stats, err := db.GetStats(); err == nil {
		log.Info().Int("tracks", stats.TrackCount).Str("path", db.Path()).Msg("Track cache opened")
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close track cache")
		}
	}
	return streaming.NewCachedCatalog(service, dao), closeDB, nil
}

// newRenderer returns the renderer's event stream and its run function.
func newRenderer(cfg config.Config, q *queue.Queue) (<-chan player.Event, func(context.Context, <-chan player.Intent) error) {
	if cfg.Renderer == config.RendererMPD {
		r := mpd.NewRenderer(mpd.Config{
			Host:        cfg.MPDHost,
			Port:        cfg.MPDPort,
			Password:    cfg.MPDPassword,
			URITemplate: cfg.MPDURITemplate,
		})
		return r.Events(), r.Run
	}

	// The loopback renderer ends tracks after the duration the queue holds.
	l := player.NewLoopback(func(trackID string) time.Duration {
		d, ok := q.TrackDuration(trackID)
		if !ok {
			log.Warn().Str("track", trackID).Msg("Loaded track is no longer queued")
		}
		return d
	})
	return l.Events(), func(ctx context.Context, intents <-chan player.Intent) error {
		l.Run(ctx, intents)
		return nil
	}
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
