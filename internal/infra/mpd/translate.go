package mpd

import "github.com/edumarques81/spotmpd/internal/domain/player"

// translator turns observed upstream player states into events. A stop that
// nobody asked for, right after playing, is the end of the track.
type translator struct {
	last          string
	stopRequested bool
	loadPending   bool
}

func (t *translator) requested(kind player.IntentKind) {
	switch kind {
	case player.IntentStop:
		t.stopRequested = true
	case player.IntentLoad:
		// clear stops the upstream player.
		t.stopRequested = true
		t.loadPending = true
	}
}

func (t *translator) observe(state string) (player.Event, bool) {
	prev := t.last
	t.last = state

	switch state {
	case "play":
		if prev == "play" && !t.loadPending {
			return 0, false
		}
		t.loadPending = false
		t.stopRequested = false
		return player.EventPlaying, true

	case "pause":
		if prev == "pause" {
			return 0, false
		}
		return player.EventPaused, true

	case "stop":
		if prev == "stop" {
			t.stopRequested = false
			return 0, false
		}
		requested := t.stopRequested
		t.stopRequested = false
		if prev == "play" && !requested {
			return player.EventEndOfTrack, true
		}
		return player.EventStopped, true
	}
	return 0, false
}
