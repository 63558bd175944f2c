// Package events provides a lightweight pub/sub event bus for runtime observability.
//
// The bus carries side-channel events (metrics, logging, UI status text); it is
// not the session's control path. The interaction state machine consumes its
// inputs through its own ordered dispatcher, and mirrors what it sees here for
// observers.
package events

import (
	"sync"
	"time"
)

// Listener is a function that handles events.
type Listener func(*Event)

// Bus manages event distribution to listeners.
type Bus struct {
	mu              sync.RWMutex
	listeners       map[EventType][]Listener
	globalListeners []Listener
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[EventType][]Listener),
	}
}

// Subscribe registers a listener for a specific event type.
func (b *Bus) Subscribe(eventType EventType, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], listener)
}

// SubscribeAll registers a listener for all event types.
func (b *Bus) SubscribeAll(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalListeners = append(b.globalListeners, listener)
}

// Publish sends an event to all registered listeners asynchronously.
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	specificListeners, globalListeners := b.snapshot(event.Type)

	go func() {
		for _, listener := range specificListeners {
			safeInvoke(listener, event)
		}
		for _, listener := range globalListeners {
			safeInvoke(listener, event)
		}
	}()
}

// PublishSync sends an event to all registered listeners on the calling
// goroutine. Primarily for tests that need deterministic delivery.
func (b *Bus) PublishSync(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	specificListeners, globalListeners := b.snapshot(event.Type)

	for _, listener := range specificListeners {
		safeInvoke(listener, event)
	}
	for _, listener := range globalListeners {
		safeInvoke(listener, event)
	}
}

// Clear removes all listeners (primarily for tests).
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[EventType][]Listener)
	b.globalListeners = nil
}

func (b *Bus) snapshot(t EventType) (specific, global []Listener) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	specific = make([]Listener, len(b.listeners[t]))
	copy(specific, b.listeners[t])

	global = make([]Listener, len(b.globalListeners))
	copy(global, b.globalListeners)
	return specific, global
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
