package socketio

import (
	"sync"
	"time"

	"github.com/edumarques81/spotmpd/internal/domain/idle"
)

// BroadcastDebouncer batches bus changes into at most one state push and one
// queue push per quiet window.
type BroadcastDebouncer struct {
	window  time.Duration
	onState func()
	onQueue func()

	mu      sync.Mutex
	state   bool
	queue   bool
	timer   *time.Timer
	stopped bool
}

// NewBroadcastDebouncer creates a debouncer. onState runs after player, mixer
// or options changes, onQueue after playlist changes.
func NewBroadcastDebouncer(window time.Duration, onState, onQueue func()) *BroadcastDebouncer {
	return &BroadcastDebouncer{window: window, onState: onState, onQueue: onQueue}
}

// Trigger records changed subsystems and restarts the window.
func (d *BroadcastDebouncer) Trigger(changed ...idle.Subsystem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	relevant := false
	for _, s := range changed {
		switch s {
		case idle.Player, idle.Mixer, idle.Options:
			d.state = true
			relevant = true
		case idle.Playlist:
			// The position can move with the queue.
			d.state = true
			d.queue = true
			relevant = true
		}
	}
	if !relevant {
		return
	}

	if d.timer == nil {
		d.timer = time.AfterFunc(d.window, d.flush)
		return
	}
	d.timer.Reset(d.window)
}

func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	state, queue := d.state, d.queue
	d.state, d.queue = false, false
	d.mu.Unlock()

	if state && d.onState != nil {
		d.onState()
	}
	if queue && d.onQueue != nil {
		d.onQueue()
	}
}

// Stop drops pending changes and prevents further callbacks.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	d.state, d.queue = false, false
	if d.timer != nil {
		d.timer.Stop()
	}
}
