package engine

import (
	"context"
	"sync"
	"time"
)

// Event names forwarded by the engine. Protocol events coming from the
// algorithms (leader.elected, consensus.achieved, view.changed) pass
// through unchanged.
const (
	EventInitialized       = "initialized"
	EventShutdown          = "shutdown"
	EventLeaderElected     = "leader.elected"
	EventConsensusAchieved = "consensus.achieved"
	EventViewChanged       = "view.changed"
	EventMessageBroadcast  = "message.broadcast"
)

// Event is an application-consumable notification of engine state changes.
type Event struct {
	Type   string
	At     time.Time
	Fields map[string]any
}

// Subscribe returns a buffered channel of events, closed when ctx is done.
// Delivery is best-effort: events are dropped rather than back-pressuring
// the protocol loops.
func (e *Engine) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 64)
	e.bus.add(ch)
	go func() {
		<-ctx.Done()
		e.bus.remove(ch)
		close(ch)
	}()
	return ch
}

type eventBus struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[chan Event]struct{})}
}

func (b *eventBus) add(ch chan Event) {
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
}

func (b *eventBus) remove(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *eventBus) publish(ev Event) {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// drop if receiver is slow
		}
	}
	b.mu.Unlock()
}
