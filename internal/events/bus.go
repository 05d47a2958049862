// Package events carries session lifecycle notifications from the engine to
// whatever front end is watching (CLI runner, TUI).
package events

import (
	"sync"
	"time"
)

// EventType represents the type of engine event.
type EventType string

const (
	EventSessionStarted   EventType = "session_started"
	EventSessionResumed   EventType = "session_resumed"
	EventTurnStart        EventType = "turn_start"
	EventTurnEnd          EventType = "turn_end"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolCallEnd      EventType = "tool_call_end"
	EventConflictFlagged  EventType = "conflict_flagged"
	EventPolicyViolation  EventType = "policy_violation"
	EventSessionCommitted EventType = "session_committed"
	EventSessionAbandoned EventType = "session_abandoned"
	EventDialogueError    EventType = "dialogue_error"
)

// Event represents an engine event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      map[string]interface{}
}

// Handler is a function that handles events.
type Handler func(Event)

// Bus manages event publication and subscription.
// It provides a decoupled way for engine components to communicate.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]Handler
	allHandlers []Handler
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (b *Bus) SubscribeAll(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
}

// Publish sends an event to all registered handlers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if handlers, ok := b.handlers[event.Type]; ok {
		for _, handler := range handlers {
			handler(event)
		}
	}

	for _, handler := range b.allHandlers {
		handler(event)
	}
}

// PublishSimple is a convenience method for publishing events without additional data.
func (b *Bus) PublishSimple(eventType EventType, sessionID string) {
	b.Publish(Event{
		Type:      eventType,
		SessionID: sessionID,
	})
}

// PublishWithData publishes an event with associated data.
func (b *Bus) PublishWithData(eventType EventType, sessionID string, data map[string]interface{}) {
	b.Publish(Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
	})
}
