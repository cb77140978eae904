package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	// EventBrowsingDataRemoved carries a RemovalDetails payload once per completed removal.
	EventBrowsingDataRemoved EventType = "browsing_data.removed"
	EventRemovalStarted      EventType = "browsing_data.removal_started"
	EventCategorySkipped     EventType = "browsing_data.category_skipped"

	// Profile store side effects.
	EventPersonalDataChanged EventType = "profile.personal_data_changed"
	EventSSLConfigChanged    EventType = "profile.ssl_config_changed"

	// Scheduled clear events.
	EventScheduledClearFired  EventType = "schedule.clear.fired"
	EventScheduledClearFailed EventType = "schedule.clear.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event with a JSON payload. A payload that fails to marshal is dropped.
func NewEvent(typ EventType, requestID string, at time.Time, payload any) Event {
	ev := Event{Type: typ, Timestamp: at, RequestID: requestID}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			ev.Payload = raw
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
