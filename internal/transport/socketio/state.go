package socketio

import (
	"fmt"
	"strings"

	"github.com/edumarques81/spotmpd/internal/domain/player"
	"github.com/edumarques81/spotmpd/internal/domain/queue"
)

// stateCompareKeys are the fields that make a state push worth sending.
// seek is left out: clients interpolate it between pushes.
var stateCompareKeys = []string{
	"status", "position", "title", "artist", "album", "uri",
	"duration", "volume", "random", "repeat",
}

// State renders the queue as a Volumio-style player state.
func State(q *queue.Queue) map[string]interface{} {
	snap := q.Snapshot()

	state := map[string]interface{}{
		"status":       string(snap.Status),
		"position":     snap.Cursor,
		"title":        "",
		"artist":       "",
		"album":        "",
		"uri":          "",
		"trackType":    "spotify",
		"service":      "spotify",
		"seek":         snap.Elapsed.Milliseconds(),
		"duration":     snap.Duration,
		"volume":       int(snap.Volume),
		"random":       false,
		"repeat":       false,
		"repeatSingle": false,
		"consume":      false,
		"samplerate":   "44.1 kHz",
		"bitdepth":     "24 bit",
		"channels":     2,
		"bitrate":      "320 kbps",
	}

	if track, _, ok := q.Current(); ok {
		state["title"] = track.Title
		state["artist"] = strings.Join(track.Artists, ", ")
		state["album"] = track.Album
		state["uri"] = "spotify:track:" + track.ID
	}
	if snap.Status == player.StatusStop {
		state["seek"] = int64(0)
	}
	return state
}

// QueueItems renders the queue as a list of Volumio-style items.
func QueueItems(q *queue.Queue) []map[string]interface{} {
	tracks := q.Tracks()
	items := make([]map[string]interface{}, len(tracks))
	for i, t := range tracks {
		items[i] = map[string]interface{}{
			"uri":      "spotify:track:" + t.ID,
			"name":     t.Title,
			"title":    t.Title,
			"artist":   strings.Join(t.Artists, ", "),
			"album":    t.Album,
			"duration": t.Seconds(),
			"service":  "spotify",
			"type":     "song",
		}
	}
	return items
}

// isStateSame reports whether state matches the last broadcast on every
// compared key.
func (s *Server) isStateSame(state map[string]interface{}) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.lastState == nil {
		return false
	}
	for _, key := range stateCompareKeys {
		if fmt.Sprint(state[key]) != fmt.Sprint(s.lastState[key]) {
			return false
		}
	}
	return true
}

func (s *Server) saveLastState(state map[string]interface{}) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.lastState = state
}
