// Package player provides the playback intent and event model shared by the
// queue and the renderers that actually play audio.
package player

import "fmt"

// Status is the confirmed playback state of the renderer.
type Status string

// Status constants for player state, as labelled on the MPD wire.
const (
	StatusStop  Status = "stop"
	StatusPlay  Status = "play"
	StatusPause Status = "pause"
)

// IntentKind enumerates the instructions a renderer accepts.
type IntentKind int

const (
	// IntentLoad loads a track without starting it.
	IntentLoad IntentKind = iota
	// IntentPlay starts or resumes playback.
	IntentPlay
	// IntentPause pauses playback.
	IntentPause
	// IntentStop stops playback.
	IntentStop
	// IntentSetVolume sets the absolute volume.
	IntentSetVolume
)

// String returns the intent name.
func (k IntentKind) String() string {
	switch k {
	case IntentLoad:
		return "load"
	case IntentPlay:
		return "play"
	case IntentPause:
		return "pause"
	case IntentStop:
		return "stop"
	case IntentSetVolume:
		return "setvol"
	default:
		return fmt.Sprintf("intent(%d)", int(k))
	}
}

// Intent is an outbound instruction to the renderer.
type Intent struct {
	Kind    IntentKind
	TrackID string // IntentLoad only
	Volume  uint16 // IntentSetVolume only
}

// Load returns a load intent for the track.
func Load(trackID string) Intent { return Intent{Kind: IntentLoad, TrackID: trackID} }

// Play returns a play intent.
func Play() Intent { return Intent{Kind: IntentPlay} }

// Pause returns a pause intent.
func Pause() Intent { return Intent{Kind: IntentPause} }

// Stop returns a stop intent.
func Stop() Intent { return Intent{Kind: IntentStop} }

// SetVolume returns a volume intent.
func SetVolume(v uint16) Intent { return Intent{Kind: IntentSetVolume, Volume: v} }

// String formats the intent for logs and test failures.
func (i Intent) String() string {
	switch i.Kind {
	case IntentLoad:
		return "load(" + i.TrackID + ")"
	case IntentSetVolume:
		return fmt.Sprintf("setvol(%d)", i.Volume)
	default:
		return i.Kind.String()
	}
}

// Event is an inbound notification from the renderer.
type Event int

const (
	// EventPlaying reports that playback started or resumed.
	EventPlaying Event = iota
	// EventPaused reports that playback paused.
	EventPaused
	// EventStopped reports that playback stopped.
	EventStopped
	// EventEndOfTrack reports that the loaded track finished on its own.
	EventEndOfTrack
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventStopped:
		return "stopped"
	case EventEndOfTrack:
		return "end-of-track"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}
