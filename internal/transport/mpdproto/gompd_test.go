package mpdproto

import (
	"testing"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/edumarques81/spotmpd/internal/domain/player"
)

// These tests drive the server with a stock MPD client library.

func dialMPD(t *testing.T, h *harness) *mpd.Client {
	t.Helper()
	client, err := mpd.Dial("tcp", h.addr)
	if err != nil {
		t.Fatalf("mpd.Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestMPDClientStatusAndQueue(t *testing.T) {
	h := newHarness(t, Options{})
	client := dialMPD(t, h)

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	attrs, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if attrs["state"] != "stop" || attrs["playlistlength"] != "0" {
		t.Errorf("Status() = %v", attrs)
	}

	if err := client.Add("spotify:track:track123"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := client.Play(-1); err != nil {
		t.Fatalf("Play() error = %v", err)
	}

	songs, err := client.PlaylistInfo(-1, -1)
	if err != nil {
		t.Fatalf("PlaylistInfo() error = %v", err)
	}
	if len(songs) != 1 || songs[0]["file"] != "track123" || songs[0]["Title"] != "Highway" {
		t.Errorf("PlaylistInfo() = %v", songs)
	}

	song, err := client.CurrentSong()
	if err != nil {
		t.Fatalf("CurrentSong() error = %v", err)
	}
	if song["file"] != "track123" {
		t.Errorf("CurrentSong() = %v", song)
	}

	if err := client.SetVolume(30); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	if v := h.queue.Volume(); v != 30 {
		t.Errorf("Volume() = %d, want 30", v)
	}
}

func TestMPDClientCommandList(t *testing.T) {
	h := newHarness(t, Options{})
	client := dialMPD(t, h)

	cl := client.BeginCommandList()
	cl.Add("track123")
	cl.Add("track456")
	cl.Play(1)
	if err := cl.End(); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	if h.queue.Len() != 2 {
		t.Errorf("Len() = %d, want 2", h.queue.Len())
	}
	if got := h.queue.CurrentIndex(); got != 1 {
		t.Errorf("CurrentIndex() = %d, want 1", got)
	}
	intents := h.sink.take()
	if len(intents) != 2 || intents[0] != player.Load("track456") || intents[1] != player.Play() {
		t.Errorf("intents = %v", intents)
	}
}

func TestMPDClientError(t *testing.T) {
	h := newHarness(t, Options{})
	client := dialMPD(t, h)

	if err := client.Play(3); err == nil {
		t.Error("Play() on empty queue succeeded")
	}
	// The connection survives an ACK.
	if err := client.Ping(); err != nil {
		t.Errorf("Ping() after ACK error = %v", err)
	}
}

func TestMPDWatcher(t *testing.T) {
	h := newHarness(t, Options{})

	w, err := mpd.NewWatcher("tcp", h.addr, "", "mixer")
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	// Changes made before the watcher enters idle are still delivered.
	h.queue.SetVolume(10)

	select {
	case subsystem := <-w.Event:
		if subsystem != "mixer" {
			t.Errorf("event = %q, want mixer", subsystem)
		}
	case err := <-w.Error:
		t.Fatalf("watcher error = %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("no mixer event")
	}
}
