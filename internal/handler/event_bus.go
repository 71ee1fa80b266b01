// internal/handler/event_bus.go
package handler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"siggen-service/internal/model"
)

// EventBus fans session notifications out to subscribers. Delivery is
// best-effort: a full bus or a slow subscriber drops the event with a warning.
type EventBus struct {
	subscribers map[int]*subscription
	nextID      int
	events      chan model.Notification
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	ch    chan model.Notification
	types map[model.EventType]bool
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize int, logger *zap.Logger) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventBus{
		subscribers: make(map[int]*subscription),
		events:      make(chan model.Notification, bufferSize),
		logger:      logger.With(zap.String("component", "event-bus")),
	}
}

// Start distributes events until ctx is cancelled
func (eb *EventBus) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-eb.events:
			eb.distributeEvent(event)
		}
	}
}

// Notify publishes a session notification
func (eb *EventBus) Notify(n model.Notification) {
	eb.Publish(n)
}

// ObserveWrite publishes the bytes written to the simulated port
func (eb *EventBus) ObserveWrite(port string, data []byte) {
	command := strings.TrimRight(string(data), "\r\n")
	eb.logger.Info("Simulated port write",
		zap.String("port", port),
		zap.String("data", command),
	)
	eb.Publish(model.NewNotification(model.EventSimulatedWrite, port, command,
		fmt.Sprintf("Simulated write to %s: %s", port, command)))
}

// Publish publishes an event
func (eb *EventBus) Publish(event model.Notification) {
	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID.String()),
		)
	}
}

// Subscribe returns a channel receiving the given event types, or every
// event when none are given, and a function that cancels the subscription.
func (eb *EventBus) Subscribe(types ...model.EventType) (<-chan model.Notification, func()) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	sub := &subscription{ch: make(chan model.Notification, 100)}
	if len(types) > 0 {
		sub.types = make(map[model.EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	id := eb.nextID
	eb.nextID++
	eb.subscribers[id] = sub

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			eb.mutex.Lock()
			defer eb.mutex.Unlock()
			delete(eb.subscribers, id)
			close(sub.ch)
		})
	}
}

// distributeEvent distributes an event to subscribers
func (eb *EventBus) distributeEvent(event model.Notification) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, sub := range eb.subscribers {
		if sub.types != nil && !sub.types[event.Type] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			eb.logger.Debug("Subscriber is slow, skipping event",
				zap.String("event_type", string(event.Type)),
			)
		}
	}
}
