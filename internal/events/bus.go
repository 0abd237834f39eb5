package events

import (
	"sync"
)

// Publisher accepts notifications
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }

// Discard drops every event
var Discard Publisher = PublisherFunc(func(Event) {})

// Handler receives events from a Bus
type Handler func(ev Event)

// Bus fans out events synchronously to its subscribers in subscription order.
// Handlers run on the publisher's goroutine and must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
	order  []int
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Len returns the number of subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
