// Package mpd drives an upstream MPD (or Mopidy) as the playback renderer,
// using the gompd client.
package mpd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/spotmpd/internal/domain/player"
)

// DefaultURITemplate maps catalog ids to Mopidy-Spotify URIs.
const DefaultURITemplate = "spotify:track:%s"

// maxVolume is the upper bound of MPD's setvol.
const maxVolume = 100

// Config holds connection settings for the upstream MPD.
type Config struct {
	Host        string
	Port        int
	Password    string
	URITemplate string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Renderer forwards playback intents to an upstream MPD and reports its
// player state changes as events.
type Renderer struct {
	cfg Config

	mu     sync.Mutex
	client *mpd.Client

	events chan player.Event
	tr     translator
}

// NewRenderer creates a renderer. Nothing is dialled until Run.
func NewRenderer(cfg Config) *Renderer {
	if cfg.URITemplate == "" {
		cfg.URITemplate = DefaultURITemplate
	}
	return &Renderer{
		cfg:    cfg,
		events: make(chan player.Event, 16),
	}
}

// Events returns the event stream. It is closed when Run returns.
func (r *Renderer) Events() <-chan player.Event {
	return r.events
}

// URI returns the upstream URI for a catalog track id.
func (r *Renderer) URI(trackID string) string {
	if strings.Contains(r.cfg.URITemplate, "%s") {
		return fmt.Sprintf(r.cfg.URITemplate, trackID)
	}
	return r.cfg.URITemplate + trackID
}

// Run connects, watches the upstream player subsystem and applies intents
// until ctx is cancelled or intents closes.
func (r *Renderer) Run(ctx context.Context, intents <-chan player.Intent) error {
	defer close(r.events)
	defer r.Close()

	if err := r.Connect(); err != nil {
		return err
	}

	watcher, err := mpd.NewWatcher("tcp", r.cfg.Addr(), r.cfg.Password, "player")
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Seed the translator with the upstream state.
	if state, err := r.state(); err == nil {
		r.tr.last = state
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case i, ok := <-intents:
			if !ok {
				return nil
			}
			r.tr.requested(i.Kind)
			if err := r.apply(i); err != nil {
				log.Error().Err(err).Str("intent", i.String()).Msg("MPD renderer intent failed")
			}

		case _, ok := <-watcher.Event:
			if !ok {
				return fmt.Errorf("MPD watcher closed")
			}
			state, err := r.state()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to read MPD state")
				continue
			}
			if ev, emit := r.tr.observe(state); emit {
				select {
				case r.events <- ev:
				case <-ctx.Done():
					return nil
				}
			}

		case err := <-watcher.Error:
			log.Error().Err(err).Msg("MPD watcher error")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Connect establishes the command connection.
func (r *Renderer) Connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectLocked()
}

func (r *Renderer) connectLocked() error {
	addr := r.cfg.Addr()
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if r.cfg.Password != "" {
		if err := client.Command("password %s", r.cfg.Password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	r.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// withClient runs fn on a live connection, reconnecting once if the
// connection was lost.
func (r *Renderer) withClient(fn func(*mpd.Client) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return fmt.Errorf("not connected")
	}
	if err := r.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		r.client.Close()
		r.client = nil
		if err := r.connectLocked(); err != nil {
			return err
		}
	}
	return fn(r.client)
}

// Close closes the command connection.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}

func (r *Renderer) apply(i player.Intent) error {
	return r.withClient(func(c *mpd.Client) error {
		switch i.Kind {
		case player.IntentLoad:
			if err := c.Clear(); err != nil {
				return err
			}
			return c.Add(r.URI(i.TrackID))
		case player.IntentPlay:
			return c.Play(-1)
		case player.IntentPause:
			return c.Pause(true)
		case player.IntentStop:
			return c.Stop()
		case player.IntentSetVolume:
			return c.SetVolume(clampVolume(i.Volume))
		}
		return fmt.Errorf("unknown intent %v", i)
	})
}

func (r *Renderer) state() (string, error) {
	var state string
	err := r.withClient(func(c *mpd.Client) error {
		attrs, err := c.Status()
		if err != nil {
			return err
		}
		state = attrs["state"]
		return nil
	})
	return state, err
}

func clampVolume(v uint16) int {
	return min(int(v), maxVolume)
}
