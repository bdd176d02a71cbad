// Package notifier provides a simple broadcast mechanism for SSE updates.
package notifier

import (
	"sync"
	"time"

	"github.com/leapstack-labs/livetable/pkg/live"
)

// Event tells listeners that a model has a new snapshot.
type Event struct {
	Model string
	Kind  string // delivery kind that triggered the event
	Rows  int
	At    time.Time
}

// Notifier broadcasts model events to all subscribed listeners.
// Listeners that fall behind only see the latest event.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan Event]struct{}
	now       func() time.Time
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan Event]struct{}),
		now:       time.Now,
	}
}

// Subscribe returns a channel that receives events.
// The caller must call Unsubscribe when done to prevent goroutine leaks.
func (n *Notifier) Subscribe() chan Event {
	ch := make(chan Event, 1)
	n.mu.Lock()
	n.listeners[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan Event) {
	n.mu.Lock()
	delete(n.listeners, ch)
	n.mu.Unlock()
	close(ch)
}

// Broadcast sends ev to all listeners.
// Non-blocking: a full channel has its pending event replaced by ev.
func (n *Notifier) Broadcast(ev Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch := range n.listeners {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Watch attaches a sink to m that broadcasts an event after every replace
// delivered through doc. Replace is the last delivery of every update.
func Watch[K comparable](n *Notifier, m *live.Model[K], doc *live.Document) live.SinkHandle {
	return m.AttachSink(live.SinkFunc[K](func(d live.Delivery[K]) error {
		if d.Kind == live.KindReplace {
			n.Broadcast(Event{Model: d.Model, Kind: d.Kind.String(), Rows: d.Table.Len(), At: n.now()})
		}
		return nil
	}), doc)
}
