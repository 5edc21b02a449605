package services

import (
	"context"
	"sync"
	"time"
)

// RosterEventKind names the mutation that produced a roster event.
type RosterEventKind string

const (
	EventLoaded      RosterEventKind = "loaded"
	EventAdopted     RosterEventKind = "adopted"
	EventFed         RosterEventKind = "fed"
	EventEvolved     RosterEventKind = "evolved"
	EventMegaEvolved RosterEventKind = "mega_evolved"
	EventDecayed     RosterEventKind = "decayed"
	EventReleased    RosterEventKind = "released"
)

// RosterEvent carries the roster as it stood right after a mutation.
type RosterEvent struct {
	Kind     RosterEventKind  `json:"kind"`
	MemberID string           `json:"member_id,omitempty"`
	Roster   []MemberSnapshot `json:"roster"`
	At       time.Time        `json:"at"`
}

type Listener func(RosterEvent)

type listenerEntry struct {
	id uint64
	fn Listener
}

// RosterBus delivers roster events to listeners in registration order.
type RosterBus struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listenerEntry
	closed    bool
}

func NewRosterBus() *RosterBus {
	return &RosterBus{}
}

// Subscribe registers fn. The listener is removed when the returned func is
// called or when ctx is done, whichever comes first.
func (b *RosterBus) Subscribe(ctx context.Context, fn Listener) (unsubscribe func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listenerEntry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	remove := func() {
		once.Do(func() { b.remove(id) })
	}
	if ctx == nil {
		return remove
	}
	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}
}

func (b *RosterBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Publish calls every listener synchronously, outside the bus lock.
func (b *RosterBus) Publish(ev RosterEvent) {
	b.mu.Lock()
	listeners := make([]listenerEntry, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l.fn(ev)
	}
}

func (b *RosterBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Close drops every listener and rejects later subscriptions.
func (b *RosterBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.listeners = nil
}
