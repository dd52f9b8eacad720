package app

import (
	"sync"
	"time"
)

// ChangeEvent reports that one record-store key was rewritten.
type ChangeEvent struct {
	Key      string    `json:"key"`
	At       time.Time `json:"at"`
	External bool      `json:"external,omitempty"`
}

// Broadcaster fans change events out to subscribed listeners.
type Broadcaster struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]func(ChangeEvent)
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: map[int]func(ChangeEvent){}}
}

// Subscribe registers fn and returns a function that removes it.
// Listeners run synchronously on the publishing goroutine; they must not block
// or call back into the service that published the event.
func (b *Broadcaster) Subscribe(fn func(ChangeEvent)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to a snapshot of the current listeners.
func (b *Broadcaster) Publish(ev ChangeEvent) {
	b.mu.Lock()
	fns := make([]func(ChangeEvent), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Len returns the number of registered listeners.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
