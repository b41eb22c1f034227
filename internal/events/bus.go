package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives events for a subscribed type. Handlers run on the
// emitter's goroutine and must not block; long work belongs behind a
// buffered channel (see the SSE stream handler).
type Handler func(event *Event)

// Bus fans events out to per-type subscribers. Subscriptions and emissions
// are safe for concurrent use; events of the same type are delivered to each
// subscriber in emission order.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[EventType]map[uint64]Handler
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType]map[uint64]Handler),
		log:      log.With().Str("service", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type and returns an
// unsubscribe function. Calling it more than once is a no-op.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]Handler)
	}

	id := b.nextID
	b.nextID++
	b.handlers[eventType][id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[eventType], id)
		})
	}
}

// Emit constructs an event and delivers it to all subscribers of its type.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	b.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	})
}

// Publish delivers an already-built event to all subscribers of its type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	subs := make([]Handler, 0, len(b.handlers[event.Type]))
	for _, h := range b.handlers[event.Type] {
		subs = append(subs, h)
	}
	b.mu.RUnlock()

	for _, h := range subs {
		h(event)
	}
}

// SubscriberCount returns the number of handlers registered for a type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
