package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edumarques81/spotmpd/internal/domain/streaming"
	"github.com/edumarques81/spotmpd/internal/infra/cache"
)

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"listen", "renderer", "http", "cache-db", "device-file", "token-file", "debug"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("flag --%s not registered", name)
		}
	}
	for _, sub := range []string{"auth", "cache", "version"} {
		if cmd, _, err := root.Find([]string{sub}); err != nil || cmd.Name() != sub {
			t.Errorf("subcommand %s not found: %v", sub, err)
		}
	}
}

func TestServeRequiresCredentials(t *testing.T) {
	t.Setenv("SPOTIFY_ID", "")
	t.Setenv("SPOTIFY_SECRET", "")

	root := newRootCmd()
	root.SetArgs([]string{"--listen", "127.0.0.1:0"})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "client id and secret") {
		t.Errorf("Execute() error = %v", err)
	}
}

func TestInvalidFlagValue(t *testing.T) {
	t.Setenv("SPOTIFY_ID", "id")
	t.Setenv("SPOTIFY_SECRET", "secret")

	root := newRootCmd()
	root.SetArgs([]string{"--renderer", "alsa"})

	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "unknown renderer") {
		t.Errorf("Execute() error = %v", err)
	}
}

func TestCacheCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	db := cache.NewDB(path)
	if err := db.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	dao := cache.NewTrackDAO(db, 0)
	dao.PutTrack(streaming.Track{ID: "a", Title: "A"})
	dao.PutTrack(streaming.Track{ID: "b", Title: "B"})
	db.Close()

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetArgs(append(args, "--cache-db", path))
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: error = %v", args, err)
		}
		return out.String()
	}

	if out := run("cache", "stats"); !strings.Contains(out, "tracks:         2") {
		t.Errorf("stats output = %q", out)
	}
	run("cache", "clear")
	if out := run("cache", "stats"); !strings.Contains(out, "tracks:         0") {
		t.Errorf("stats after clear = %q", out)
	}
	if out := run("cache", "purge"); !strings.Contains(out, "purged 0 tracks") {
		t.Errorf("purge output = %q", out)
	}
}

func TestCacheCommandDisabled(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"cache", "stats", "--cache-db", ""})
	if err := root.Execute(); err == nil {
		t.Error("cache stats with an empty --cache-db should fail")
	}
}
