// Package events is the in-process publish/subscribe bus decoupling the
// booking flow from side-effecting subscribers (email, calendar sync,
// broker relay).
package events

import (
	"context"
	"sync"

	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Handler consumes an emitted event payload. Payload types are the event
// structs in internal/models, matched by event type tag.
type Handler func(ctx context.Context, payload interface{}) error

// Bus dispatches events to registered subscribers. Registration happens
// once at process start; Emit is safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   util.GetLogger(),
	}
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit delivers the payload to every subscriber of the event type.
// Fire-and-forget: a subscriber's error or panic is logged and must not
// prevent other subscribers from running or the emitter from returning.
func (b *Bus) Emit(ctx context.Context, eventType string, payload interface{}) {
	b.mu.RLock()
	handlers := b.handlers[eventType]
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(ctx, eventType, handler, payload)
	}
}

func (b *Bus) dispatch(ctx context.Context, eventType string, handler Handler, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Event subscriber panicked",
				zap.String("event_type", eventType),
				zap.Any("panic", r))
		}
	}()

	if err := handler(ctx, payload); err != nil {
		b.logger.Error("Event subscriber failed",
			zap.String("event_type", eventType),
			zap.Error(err))
		util.SubscriberFailures.WithLabelValues(eventType).Inc()
	}
}
