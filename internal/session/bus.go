package session

import "sync"

// Event reports a change to one session's state.
type Event struct {
	SessionID string
	Action    string // "created", "updated", "cleared", "deleted"
}

// Bus is a fan-out pub/sub for session change events.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]string
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]string)}
}

// Publish sends e to every subscriber of its session and to subscribers of
// all sessions. Slow subscribers miss events rather than block.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, id := range b.subs {
		if id != "" && id != e.SessionID {
			continue
		}
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a buffered channel of events for sessionID, or for
// every session when sessionID is empty.
func (b *Bus) Subscribe(sessionID string) chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[ch] = sessionID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	_, ok := b.subs[ch]
	delete(b.subs, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
