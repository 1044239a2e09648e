// Package config holds the runtime configuration: defaults, then a .env
// file, then the environment, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Renderer kinds.
const (
	RendererLoopback = "loopback"
	RendererMPD      = "mpd"
)

// Config is the full server configuration.
type Config struct {
	// MPD protocol server
	Listen             string
	MaxConnections     int
	CommandListMax     int
	CommandListTimeout time.Duration
	WriteTimeout       time.Duration

	// HTTP sidecar (health, version, Socket.io). Empty disables it.
	HTTPAddr string

	// Playback
	Renderer       string
	MPDHost        string
	MPDPort        int
	MPDPassword    string
	MPDURITemplate string

	// Spotify catalog
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURL  string
	TokenFile           string

	// DeviceFile stores the server identity shown to web clients.
	DeviceFile string

	// Track cache. Empty CacheDB disables it.
	CacheDB  string
	CacheTTL time.Duration

	// Logging
	Debug   bool
	LogFile string
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Listen:             ":6600",
		MaxConnections:     10,
		CommandListMax:     1024,
		CommandListTimeout: 30 * time.Second,
		WriteTimeout:       30 * time.Second,
		Renderer:           RendererLoopback,
		MPDHost:            "localhost",
		MPDPort:            6601,
		MPDURITemplate:     "spotify:track:%s",
		SpotifyRedirectURL: "http://127.0.0.1:8888/callback",
		TokenFile:          "data/spotify-token.json",
		DeviceFile:         "data/device.json",
		CacheDB:            "data/spotmpd.db",
		CacheTTL:           7 * 24 * time.Hour,
	}
}

// Load builds a config from defaults, the given .env files (missing files
// are skipped) and the environment. Variables already set in the process
// environment win over .env entries.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	e := envReader{}

	e.str("SPOTMPD_LISTEN", &c.Listen)
	e.integer("SPOTMPD_MAX_CONNECTIONS", &c.MaxConnections)
	e.integer("SPOTMPD_COMMAND_LIST_MAX", &c.CommandListMax)
	e.duration("SPOTMPD_COMMAND_LIST_TIMEOUT", &c.CommandListTimeout)
	e.duration("SPOTMPD_WRITE_TIMEOUT", &c.WriteTimeout)
	e.str("SPOTMPD_HTTP", &c.HTTPAddr)

	e.str("SPOTMPD_RENDERER", &c.Renderer)
	e.str("SPOTMPD_MPD_HOST", &c.MPDHost)
	e.integer("SPOTMPD_MPD_PORT", &c.MPDPort)
	e.str("SPOTMPD_MPD_PASSWORD", &c.MPDPassword)
	e.str("SPOTMPD_MPD_URI_TEMPLATE", &c.MPDURITemplate)

	e.str("SPOTIFY_ID", &c.SpotifyClientID)
	e.str("SPOTIFY_SECRET", &c.SpotifyClientSecret)
	e.str("SPOTIFY_REDIRECT_URL", &c.SpotifyRedirectURL)
	e.str("SPOTMPD_TOKEN_FILE", &c.TokenFile)

	e.str("SPOTMPD_DEVICE_FILE", &c.DeviceFile)
	e.str("SPOTMPD_CACHE_DB", &c.CacheDB)
	e.duration("SPOTMPD_CACHE_TTL", &c.CacheTTL)

	e.boolean("SPOTMPD_DEBUG", &c.Debug)
	e.str("SPOTMPD_LOG_FILE", &c.LogFile)

	return e.err
}

// BindFlags registers one flag per setting, defaulting to the current values.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&c.Listen, "listen", "l", c.Listen, "MPD protocol listen address")
	fs.IntVar(&c.MaxConnections, "max-connections", c.MaxConnections, "maximum concurrent non-loopback clients (0 = unlimited)")
	fs.IntVar(&c.CommandListMax, "command-list-max", c.CommandListMax, "maximum commands in one command list")
	fs.DurationVar(&c.CommandListTimeout, "command-list-timeout", c.CommandListTimeout, "maximum time to receive a command list")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "response write timeout")
	fs.StringVar(&c.HTTPAddr, "http", c.HTTPAddr, "HTTP/Socket.io listen address (empty disables)")

	fs.StringVar(&c.Renderer, "renderer", c.Renderer, "playback renderer: loopback or mpd")
	fs.StringVar(&c.MPDHost, "mpd-host", c.MPDHost, "upstream MPD host for the mpd renderer")
	fs.IntVar(&c.MPDPort, "mpd-port", c.MPDPort, "upstream MPD port for the mpd renderer")
	fs.StringVar(&c.MPDPassword, "mpd-password", c.MPDPassword, "upstream MPD password")
	fs.StringVar(&c.MPDURITemplate, "mpd-uri-template", c.MPDURITemplate, "URI sent to the upstream MPD for a track id")

	fs.StringVar(&c.SpotifyClientID, "spotify-id", c.SpotifyClientID, "Spotify application client id")
	fs.StringVar(&c.SpotifyClientSecret, "spotify-secret", c.SpotifyClientSecret, "Spotify application client secret")
	fs.StringVar(&c.SpotifyRedirectURL, "spotify-redirect", c.SpotifyRedirectURL, "OAuth redirect URL registered for the application")
	fs.StringVar(&c.TokenFile, "token-file", c.TokenFile, "path of the saved Spotify OAuth token")

	fs.StringVar(&c.DeviceFile, "device-file", c.DeviceFile, "file holding the server identity")
	fs.StringVar(&c.CacheDB, "cache-db", c.CacheDB, "SQLite track cache path (empty disables)")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "track cache entry lifetime")

	fs.BoolVarP(&c.Debug, "debug", "d", c.Debug, "enable debug logging")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "also write logs to this rotated file")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
			return fmt.Errorf("invalid http address %q: %w", c.HTTPAddr, err)
		}
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections must not be negative, got %d", c.MaxConnections)
	}
	if c.CommandListMax <= 0 {
		return fmt.Errorf("command list max must be positive, got %d", c.CommandListMax)
	}
	if c.CommandListTimeout <= 0 {
		return fmt.Errorf("command list timeout must be positive, got %s", c.CommandListTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("write timeout must not be negative, got %s", c.WriteTimeout)
	}

	switch c.Renderer {
	case RendererLoopback:
	case RendererMPD:
		if c.MPDHost == "" {
			return errors.New("mpd renderer needs an mpd host")
		}
		if c.MPDPort <= 0 || c.MPDPort > 65535 {
			return fmt.Errorf("invalid mpd port %d", c.MPDPort)
		}
	default:
		return fmt.Errorf("unknown renderer %q (want %s or %s)", c.Renderer, RendererLoopback, RendererMPD)
	}

	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		return errors.New("spotify client id and secret are required (SPOTIFY_ID, SPOTIFY_SECRET)")
	}
	if c.TokenFile == "" {
		return errors.New("token file is required")
	}
	if c.CacheDB != "" && c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	}
	return nil
}

// envReader overwrites fields from set variables and keeps the first parse
// error.
type envReader struct {
	err error
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
