package player

import (
	"context"
	"sync"
)

// IntentSink receives playback intents. Send must not block on the renderer.
type IntentSink interface {
	Send(Intent)
}

// Pump is an unbounded FIFO between the queue and a renderer. Send never
// blocks; Run forwards intents to the renderer channel in order.
type Pump struct {
	mu      sync.Mutex
	pending []Intent
	signal  chan struct{}
	out     chan Intent
}

// NewPump creates a pump. The renderer reads from Intents().
func NewPump() *Pump {
	return &Pump{
		signal: make(chan struct{}, 1),
		out:    make(chan Intent),
	}
}

// Send enqueues an intent.
func (p *Pump) Send(i Intent) {
	p.mu.Lock()
	p.pending = append(p.pending, i)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Intents is the channel the renderer consumes. It is closed when Run returns.
func (p *Pump) Intents() <-chan Intent {
	return p.out
}

// Run forwards intents until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	defer close(p.out)

	for {
		p.mu.Lock()
		batch := p.pending
		p.pending = nil
		p.mu.Unlock()

		for _, i := range batch {
			select {
			case p.out <- i:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-p.signal:
		case <-ctx.Done():
			return
		}
	}
}
