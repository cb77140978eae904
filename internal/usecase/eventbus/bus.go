// Package eventbus is the process-wide notification channel. Removal completions,
// profile side effects and scheduled clears are broadcast here for listeners outside
// the orchestrator.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"browsing-data/internal/domain"
	"browsing-data/internal/infra/logger"
	"browsing-data/internal/infra/metrics"
)

type subscription struct {
	id      uint64
	handler domain.EventHandler
}

// Option configures a Bus.
type Option func(*Bus)

// WithMetrics counts published events and handler panics on m.
func WithMetrics(m *metrics.Metrics) Option { return func(b *Bus) { b.metrics = m } }

// Bus delivers removal events to handlers subscribed by event type, by removal
// request, or to every event. Each delivery runs in its own goroutine.
type Bus struct {
	mu        sync.RWMutex
	byType    map[domain.EventType][]subscription
	byRequest map[string][]subscription
	all       []subscription

	nextID  atomic.Uint64
	closed  atomic.Bool
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ domain.EventBus = (*Bus)(nil)

// New creates an event bus.
func New(l *slog.Logger, opts ...Option) *Bus {
	if l == nil {
		l = slog.Default()
	}
	b := &Bus{
		byType:    make(map[domain.EventType][]subscription),
		byRequest: make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.Component(l, "eventbus")
	return b
}

// Publish delivers event to its type's subscribers, to the subscribers of its
// request ID and to every-event subscribers. A handler that panics is logged
// and counted; the others still run. Publishing after Close is a no-op.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.byType[event.Type])+len(b.all))
	targets = append(targets, b.byType[event.Type]...)
	if event.RequestID != "" {
		targets = append(targets, b.byRequest[event.RequestID]...)
	}
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	b.metrics.ObserveEventPublished(string(event.Type))
	for _, sub := range targets {
		b.deliver(ctx, event, sub.handler)
	}
}

func (b *Bus) deliver(ctx context.Context, event domain.Event, handler domain.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.metrics.ObserveHandlerPanic(string(event.Type))
				b.logger.Error("event handler panicked",
					"event", string(event.Type),
					"request_id", event.RequestID,
					"panic", r,
				)
			}
		}()
		handler(ctx, event)
	}()
}

// HasSubscribers reports whether a handler would receive an event of type
// eventType that carries no request ID.
func (b *Bus) HasSubscribers(eventType domain.EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byType[eventType]) > 0 || len(b.all) > 0
}

// Subscribe registers handler for one event type and returns its unsubscribe func.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return subscribeKeyed(b, b.byType, eventType, handler)
}

// SubscribeRequest registers handler for every event of one removal request:
// its start, skipped categories and completion. Unsubscribe once the request
// has completed.
func (b *Bus) SubscribeRequest(requestID string, handler domain.EventHandler) func() {
	return subscribeKeyed(b, b.byRequest, requestID, handler)
}

// SubscribeAll registers handler for every event and returns its unsubscribe func.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler}

	b.mu.Lock()
	b.all = append(b.all, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = without(b.all, sub.id)
	}
}

func subscribeKeyed[K comparable](b *Bus, subs map[K][]subscription, key K, handler domain.EventHandler) func() {
	sub := subscription{id: b.nextID.Add(1), handler: handler}

	b.mu.Lock()
	subs[key] = append(subs[key], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if rest := without(subs[key], sub.id); len(rest) > 0 {
			subs[key] = rest
		} else {
			delete(subs, key)
		}
	}
}

// without returns a copy of subs minus the subscription id.
func without(subs []subscription, id uint64) []subscription {
	out := make([]subscription, 0, len(subs))
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Close stops new publishes and waits for in-flight handlers. It is idempotent.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.wg.Wait()
}
