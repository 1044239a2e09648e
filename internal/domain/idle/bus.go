// Package idle fans out MPD subsystem change notifications to idle-waiting
// connections and other listeners.
package idle

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Subsystem names an MPD idle subsystem.
type Subsystem string

// Subsystems understood by MPD clients.
const (
	Database       Subsystem = "database"
	Update         Subsystem = "update"
	StoredPlaylist Subsystem = "stored_playlist"
	Playlist       Subsystem = "playlist"
	Player         Subsystem = "player"
	Mixer          Subsystem = "mixer"
	Output         Subsystem = "output"
	Options        Subsystem = "options"
)

var known = map[Subsystem]bool{
	Database:       true,
	Update:         true,
	StoredPlaylist: true,
	Playlist:       true,
	Player:         true,
	Mixer:          true,
	Output:         true,
	Options:        true,
}

// ParseSubsystem validates a subsystem name.
func ParseSubsystem(name string) (Subsystem, bool) {
	s := Subsystem(name)
	return s, known[s]
}

// Bus broadcasts subsystem changes to every subscription.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscription. Changes broadcast after this call
// are retained until taken.
func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{
		bus:     b,
		pending: make(map[Subsystem]bool),
		notify:  make(chan struct{}, 1),
	}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s
}

// Broadcast marks the subsystems as changed on every subscription.
func (b *Bus) Broadcast(subsystems ...Subsystem) {
	if len(subsystems) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	log.Debug().Interface("subsystems", subsystems).Int("subscribers", len(b.subs)).Msg("Idle broadcast")
	for s := range b.subs {
		s.mark(subsystems)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription accumulates changes for one listener. Each subsystem is
// reported at most once until taken, in the order it first changed.
type Subscription struct {
	bus    *Bus
	notify chan struct{}

	mu      sync.Mutex
	pending map[Subsystem]bool
	order   []Subsystem
}

// C is signalled whenever a new change is pending.
func (s *Subscription) C() <-chan struct{} {
	return s.notify
}

func (s *Subscription) mark(subsystems []Subsystem) {
	s.mu.Lock()
	added := false
	for _, sub := range subsystems {
		if !s.pending[sub] {
			s.pending[sub] = true
			s.order = append(s.order, sub)
			added = true
		}
	}
	s.mu.Unlock()

	if added {
		select {
		case s.notify <- struct{}{}:
		default:
		}
	}
}

// Take removes and returns the pending changes that match filter. An empty
// filter matches every subsystem. Unmatched changes stay pending.
func (s *Subscription) Take(filter ...Subsystem) []Subsystem {
	s.mu.Lock()
	defer s.mu.Unlock()

	var taken []Subsystem
	kept := s.order[:0]
	for _, sub := range s.order {
		if matches(sub, filter) {
			taken = append(taken, sub)
			delete(s.pending, sub)
		} else {
			kept = append(kept, sub)
		}
	}
	s.order = kept
	return taken
}

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

func matches(sub Subsystem, filter []Subsystem) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == sub {
			return true
		}
	}
	return false
}
