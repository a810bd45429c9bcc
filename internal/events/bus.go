package events

import (
	"log"
	"sync"
)

type Handler func(Event)

// Bus fans a published event out to every subscriber. Publishing is
// best-effort relative to the write that produced the event: a panicking
// subscriber is logged and the remaining subscribers still run, and no
// error ever flows back to the producer.
type Bus struct {
	log *log.Logger

	mu       sync.RWMutex
	handlers []Handler
}

func NewBus(logger *log.Logger) *Bus {
	return &Bus{log: logger}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(h, e)
	}
}

func (b *Bus) dispatch(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Printf("event handler panic: %v", r)
		}
	}()

	h(e)
}
