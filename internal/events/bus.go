// -----------------------------------------------------------------------
// System event bus - job lifecycle pub/sub with a bounded replay ring
// -----------------------------------------------------------------------

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/darkwatch/internal/models"
)

// ringCapacity bounds the replay buffer of recent system events
const ringCapacity = 1000

// Handler is a function that handles system events
type Handler func(ctx context.Context, event models.SystemEvent) error

// Bus implements pub/sub for job lifecycle events. Publishing is
// best-effort: handlers run in their own goroutines and failures are
// logged, never propagated to the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[models.SystemEventType][]Handler
	ring        []models.SystemEvent
	ringStart   int
	logger      arbor.ILogger
}

// NewBus creates a system event bus
func NewBus(logger arbor.ILogger) *Bus {
	return &Bus{
		subscribers: make(map[models.SystemEventType][]Handler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType models.SystemEventType, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], handler)

	b.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(b.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

// Publish records the event in the ring and dispatches it to subscribers
// asynchronously.
func (b *Bus) Publish(ctx context.Context, eventType models.SystemEventType, jobID string, payload map[string]interface{}) {
	event := models.SystemEvent{
		Type:      eventType,
		JobID:     jobID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	if len(b.ring) < ringCapacity {
		b.ring = append(b.ring, event)
	} else {
		b.ring[b.ringStart] = event
		b.ringStart = (b.ringStart + 1) % ringCapacity
	}
	handlers := append([]Handler(nil), b.subscribers[eventType]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				b.logger.Error().
					Err(err).
					Str("event_type", string(eventType)).
					Str("job_id", jobID).
					Msg("Event handler failed")
			}
		}(handler)
	}
}

// Recent returns up to limit recent events, oldest first
func (b *Bus) Recent(limit int) []models.SystemEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.ring)
	if limit <= 0 || limit > n {
		limit = n
	}

	result := make([]models.SystemEvent, 0, limit)
	for i := n - limit; i < n; i++ {
		result = append(result, b.ring[(b.ringStart+i)%n])
	}
	return result
}

// Close drops all subscriptions
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[models.SystemEventType][]Handler)
	return nil
}
