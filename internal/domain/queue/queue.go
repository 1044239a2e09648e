// Package queue holds the shared playback queue: the ordered track list, the
// now-playing cursor, the confirmed playback state and the derived elapsed
// time. Playback intents are sent to a renderer through a player.IntentSink
// and confirmed asynchronously by the Worker.
package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/domain/player"
	"github.com/edumarques81/spotmpd/internal/domain/streaming"
)

// ErrBadIndex is returned for a position outside the queue.
var ErrBadIndex = errors.New("bad song index")

// noCursor marks the absence of a current track.
const noCursor = -1

// defaultVolume is the volume a new queue starts with.
const defaultVolume = 100

// Notifier receives subsystem change notifications.
type Notifier interface {
	Broadcast(subsystems ...idle.Subsystem)
}

// Option configures a Queue.
type Option func(*Queue)

// WithNotifier sets the notifier for playlist, player and mixer changes.
func WithNotifier(n Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

// WithClock replaces the wall clock used for elapsed time.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue is the process-wide playback queue. It is safe for concurrent use.
//
// seqMu guards the track sequence, the cursor and the playlist version, and
// serializes every operation that sends intents so one call's Load and Play
// are never interleaved with another call's. playMu guards the playback
// aggregate (status, elapsed snapshot, since). When both are needed seqMu is
// taken first.
type Queue struct {
	seqMu   sync.RWMutex
	tracks  []streaming.Track
	cursor  int
	version uint32

	playMu  sync.Mutex
	status  player.Status
	elapsed time.Duration
	since   *time.Time

	volume atomic.Uint32

	sink     player.IntentSink
	notifier Notifier
	now      func() time.Time
}

// New creates an empty, stopped queue that sends intents to sink.
func New(sink player.IntentSink, opts ...Option) *Queue {
	q := &Queue{
		cursor:  noCursor,
		version: 1,
		status:  player.StatusStop,
		sink:    sink,
		now:     time.Now,
	}
	q.volume.Store(defaultVolume)

	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Snapshot is a consistent view of the queue for status reporting.
type Snapshot struct {
	Cursor   int // -1 when there is no current track
	Length   int
	Version  uint32
	Status   player.Status
	Volume   uint16
	Elapsed  time.Duration
	Duration int // whole seconds of the current track, 0 without one
}

// HasCurrent reports whether a current track is selected.
func (s Snapshot) HasCurrent() bool {
	return s.Cursor != noCursor
}

// Snapshot reads cursor, length, status, elapsed and duration in one pass.
func (q *Queue) Snapshot() Snapshot {
	q.seqMu.RLock()
	defer q.seqMu.RUnlock()

	snap := Snapshot{
		Cursor:  q.cursor,
		Length:  len(q.tracks),
		Version: q.version,
		Volume:  q.Volume(),
	}
	if q.cursor != noCursor {
		snap.Duration = q.tracks[q.cursor].Seconds()
	}

	q.playMu.Lock()
	snap.Status = q.status
	snap.Elapsed = q.elapsedLocked()
	q.playMu.Unlock()

	return snap
}

// Tracks returns a deep copy of the sequence.
func (q *Queue) Tracks() []streaming.Track {
	q.seqMu.RLock()
	defer q.seqMu.RUnlock()

	out := make([]streaming.Track, len(q.tracks))
	for i, t := range q.tracks {
		out[i] = t.Clone()
	}
	return out
}

// Current returns a copy of the current track and its position.
func (q *Queue) Current() (streaming.Track, int, bool) {
	q.seqMu.RLock()
	defer q.seqMu.RUnlock()

	if q.cursor == noCursor {
		return streaming.Track{}, noCursor, false
	}
	return q.tracks[q.cursor].Clone(), q.cursor, true
}

// CurrentIndex returns the cursor, or -1 without a current track.
func (q *Queue) CurrentIndex() int {
	q.seqMu.RLock()
	defer q.seqMu.RUnlock()
	return q.cursor
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	q.seqMu.RLock()
	defer q.seqMu.RUnlock()
	return len(q.tracks)
}

// Status returns the last confirmed playback state.
func (q *Queue) Status() player.Status {
	q.playMu.Lock()
	defer q.playMu.Unlock()
	return q.status
}

// Elapsed returns the playback position of the current track.
func (q *Queue) Elapsed() time.Duration {
	q.playMu.Lock()
	defer q.playMu.Unlock()
	return q.elapsedLocked()
}

func (q *Queue) elapsedLocked() time.Duration {
	if q.since == nil {
		return q.elapsed
	}
	return q.elapsed + q.now().Sub(*q.since)
}

// TrackDuration returns the duration of a queued track by catalog id. It
// reports false when no queued track has that id.
func (q *Queue) TrackDuration(id string) (time.Duration, bool) {
	q.seqMu.RLock()
	defer q.seqMu.RUnlock()

	for _, t := range q.tracks {
		if t.ID == id {
			return time.Duration(t.Duration) * time.Millisecond, true
		}
	}
	return 0, false
}

// Volume returns the stored volume (0-65535).
func (q *Queue) Volume() uint16 {
	return uint16(q.volume.Load())
}

// Append adds a track to the end of the queue and returns its position.
func (q *Queue) Append(t streaming.Track) int {
	q.seqMu.Lock()
	q.tracks = append(q.tracks, t.Clone())
	q.version++
	pos := len(q.tracks) - 1
	q.seqMu.Unlock()

	log.Debug().Str("track", t.ID).Int("pos", pos).Msg("Track appended")
	q.notify(idle.Playlist)
	return pos
}

// Remove deletes the track at position i. Removing the current track plays
// the track that takes its place, or stops when it was the last one.
func (q *Queue) Remove(i int) error {
	q.seqMu.Lock()

	if i < 0 || i >= len(q.tracks) {
		q.seqMu.Unlock()
		return ErrBadIndex
	}

	q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
	q.version++

	switch {
	case len(q.tracks) == 0:
		q.stopLocked()
	case q.cursor == i:
		if q.cursor == len(q.tracks) {
			q.stopLocked()
		} else if err := q.playIDLocked(i); err != nil {
			log.Warn().Err(err).Int("pos", i).Msg("Failed to play replacement track")
		}
	case q.cursor > i:
		q.cursor--
	}
	q.seqMu.Unlock()

	q.notify(idle.Playlist)
	return nil
}

// Clear stops playback and empties the queue.
func (q *Queue) Clear() {
	q.seqMu.Lock()
	q.stopLocked()
	q.tracks = nil
	q.version++
	q.seqMu.Unlock()

	q.notify(idle.Playlist)
}

// PlayID loads and plays the track at position i.
func (q *Queue) PlayID(i int) error {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	return q.playIDLocked(i)
}

// Play resumes the current track. Without a current track it starts the
// queue from the first position.
func (q *Queue) Play() {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()

	if q.cursor == noCursor && len(q.tracks) > 0 {
		_ = q.playIDLocked(0)
		return
	}
	q.send(player.Play())
}

// Pause asks the renderer to pause.
func (q *Queue) Pause() {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	q.send(player.Pause())
}

// TogglePlayback pauses when playing and plays otherwise.
func (q *Queue) TogglePlayback() {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()

	if q.Status() == player.StatusPlay {
		q.send(player.Pause())
	} else {
		q.send(player.Play())
	}
}

// Stop clears the cursor and stops the renderer.
func (q *Queue) Stop() {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	q.stopLocked()
}

// Next plays the following track, or stops at the end of the queue.
func (q *Queue) Next() {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()

	if q.cursor != noCursor && q.cursor+1 < len(q.tracks) {
		// Bounds checked above.
		_ = q.playIDLocked(q.cursor + 1)
		return
	}
	q.stopLocked()
}

// Previous plays the preceding track. At the first track (or without a
// cursor) it stops the renderer but keeps the cursor, unlike Stop.
func (q *Queue) Previous() {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()

	if q.cursor > 0 {
		_ = q.playIDLocked(q.cursor - 1)
		return
	}
	q.send(player.Stop())
}

// SetVolume stores an absolute volume and forwards it to the renderer.
func (q *Queue) SetVolume(v uint16) {
	q.seqMu.Lock()
	q.volume.Store(uint32(v))
	q.send(player.SetVolume(v))
	q.seqMu.Unlock()

	q.notify(idle.Mixer)
}

// AdjustVolume adds delta to the volume with 16-bit wrapping arithmetic and
// returns the new value.
func (q *Queue) AdjustVolume(delta int16) uint16 {
	q.seqMu.Lock()
	v := uint16(q.volume.Load()) + uint16(delta)
	q.volume.Store(uint32(v))
	q.send(player.SetVolume(v))
	q.seqMu.Unlock()

	q.notify(idle.Mixer)
	return v
}

// playIDLocked requires seqMu held for writing.
func (q *Queue) playIDLocked(i int) error {
	if i < 0 || i >= len(q.tracks) {
		return ErrBadIndex
	}

	q.send(player.Load(q.tracks[i].ID))
	q.cursor = i

	q.playMu.Lock()
	q.elapsed = 0
	q.since = nil
	q.playMu.Unlock()

	q.send(player.Play())
	return nil
}

// stopLocked requires seqMu held for writing.
func (q *Queue) stopLocked() {
	q.cursor = noCursor
	q.send(player.Stop())
}

func (q *Queue) send(i player.Intent) {
	if q.sink == nil {
		return
	}
	q.sink.Send(i)
}

func (q *Queue) notify(subsystems ...idle.Subsystem) {
	if q.notifier == nil {
		return
	}
	q.notifier.Broadcast(subsystems...)
}
