package queue

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/spotmpd/internal/domain/idle"
	"github.com/edumarques81/spotmpd/internal/domain/player"
)

// ErrEventSourceClosed is returned by Worker.Run when the renderer's event
// stream ends. Without events the queue can no longer track playback.
var ErrEventSourceClosed = errors.New("player event source closed")

// Worker applies renderer events to a Queue.
type Worker struct {
	queue  *Queue
	events <-chan player.Event
}

// NewWorker creates a worker consuming events for q.
func NewWorker(q *Queue, events <-chan player.Event) *Worker {
	return &Worker{queue: q, events: events}
}

// Run consumes events until ctx is cancelled (returning nil) or the event
// stream closes (returning ErrEventSourceClosed).
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Msg("Queue worker started")
	defer log.Info().Msg("Queue worker stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.events:
			if !ok {
				return ErrEventSourceClosed
			}
			w.queue.HandleEvent(ev)
		}
	}
}

// HandleEvent records a confirmed playback event. Status, elapsed snapshot
// and since change in one critical section.
func (q *Queue) HandleEvent(ev player.Event) {
	log.Debug().Str("event", ev.String()).Msg("Player event")

	q.playMu.Lock()
	now := q.now()
	switch ev {
	case player.EventPlaying:
		if q.since != nil {
			q.elapsed += now.Sub(*q.since)
		}
		q.since = &now
		q.status = player.StatusPlay

	case player.EventPaused:
		if q.since != nil {
			q.elapsed += now.Sub(*q.since)
			q.since = nil
		}
		q.status = player.StatusPause

	case player.EventStopped, player.EventEndOfTrack:
		q.elapsed = 0
		q.since = nil
		q.status = player.StatusStop

	default:
		q.playMu.Unlock()
		log.Warn().Int("event", int(ev)).Msg("Unknown player event")
		return
	}
	q.playMu.Unlock()

	if ev == player.EventEndOfTrack {
		q.Next()
	}
	q.notify(idle.Player)
}
