package player

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// DurationFunc reports how long a track plays. Zero means unknown and the
// track never ends on its own.
type DurationFunc func(trackID string) time.Duration

// Loopback is an in-process renderer. It plays nothing, but confirms every
// intent with the event a real player would report and signals end of track
// once the loaded track's duration has elapsed.
type Loopback struct {
	durationOf DurationFunc
	events     chan Event
	volume     atomic.Uint32

	loaded    string
	total     time.Duration
	remaining time.Duration
	playing   bool
	startedAt time.Time
	timer     *time.Timer
}

// NewLoopback creates a loopback renderer.
func NewLoopback(durationOf DurationFunc) *Loopback {
	if durationOf == nil {
		durationOf = func(string) time.Duration { return 0 }
	}
	return &Loopback{
		durationOf: durationOf,
		events:     make(chan Event, 16),
	}
}

// Events returns the event stream. It is closed when Run returns.
func (l *Loopback) Events() <-chan Event {
	return l.events
}

// Volume returns the last volume set.
func (l *Loopback) Volume() uint16 {
	return uint16(l.volume.Load())
}

// Run consumes intents until the channel closes or ctx is cancelled.
func (l *Loopback) Run(ctx context.Context, intents <-chan Intent) {
	defer close(l.events)
	defer l.stopTimer()

	for {
		var expired <-chan time.Time
		if l.timer != nil {
			expired = l.timer.C
		}

		select {
		case <-ctx.Done():
			return
		case i, ok := <-intents:
			if !ok {
				return
			}
			log.Debug().Str("intent", i.String()).Msg("Loopback intent")
			if ev, emit := l.apply(i); emit && !l.emit(ctx, ev) {
				return
			}
		case <-expired:
			l.timer = nil
			l.playing = false
			l.remaining = l.total
			log.Debug().Str("track", l.loaded).Msg("Loopback end of track")
			if !l.emit(ctx, EventEndOfTrack) {
				return
			}
		}
	}
}

func (l *Loopback) apply(i Intent) (Event, bool) {
	switch i.Kind {
	case IntentLoad:
		l.stopTimer()
		l.loaded = i.TrackID
		l.total = l.durationOf(i.TrackID)
		l.remaining = l.total
		l.playing = false
		return 0, false

	case IntentPlay:
		if l.loaded == "" || l.playing {
			return 0, false
		}
		l.playing = true
		l.startedAt = time.Now()
		if l.total > 0 {
			l.timer = time.NewTimer(l.remaining)
		}
		return EventPlaying, true

	case IntentPause:
		if !l.playing {
			return 0, false
		}
		l.stopTimer()
		l.remaining -= time.Since(l.startedAt)
		if l.remaining < 0 {
			l.remaining = 0
		}
		l.playing = false
		return EventPaused, true

	case IntentStop:
		l.stopTimer()
		l.playing = false
		l.remaining = l.total
		return EventStopped, true

	case IntentSetVolume:
		l.volume.Store(uint32(i.Volume))
		return 0, false
	}
	return 0, false
}

func (l *Loopback) emit(ctx context.Context, ev Event) bool {
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Loopback) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
