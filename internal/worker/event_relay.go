// Package worker runs the background loops of the service.
package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/helpdeskhq/support-desk/internal/events"
	"github.com/helpdeskhq/support-desk/internal/observability"
)

// Publisher delivers one serialized event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// EventRelay forwards ticket events to a Publisher from a single goroutine. Enqueue never
// blocks: when the buffer is full the event is dropped, logged and counted.
type EventRelay struct {
	publisher Publisher
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu     sync.RWMutex
	queue  chan events.Event
	closed bool
	done   chan struct{}
}

// NewEventRelay builds a relay with a buffer of size events.
func NewEventRelay(publisher Publisher, size int, logger *zap.Logger, metrics *observability.Metrics) *EventRelay {
	if size <= 0 {
		size = 256
	}
	return &EventRelay{
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		queue:     make(chan events.Event, size),
		done:      make(chan struct{}),
	}
}

// Enqueue hands an event to the relay. It reports false when the event was dropped.
func (r *EventRelay) Enqueue(event events.Event) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.queue <- event:
		return true
	default:
		r.metrics.RecordEventDropped()
		r.logger.Warn("event relay buffer full; dropping event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID))
		return false
	}
}

// Run drains the queue until Stop is called. Events still buffered at that point are
// published before Run returns.
func (r *EventRelay) Run(ctx context.Context) {
	defer close(r.done)
	for event := range r.queue {
		r.publish(ctx, event)
	}
}

// Stop closes the queue and waits for Run to flush it, or for ctx to expire.
func (r *EventRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *EventRelay) publish(ctx context.Context, event events.Event) {
	value, err := json.Marshal(event)
	if err != nil {
		r.logger.Error("encode event", zap.String("event_id", event.ID), zap.Error(err))
		return
	}
	start := time.Now()
	if err := r.publisher.Publish(ctx, []byte(event.TicketID), value); err != nil {
		r.logger.Error("publish event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return
	}
	r.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.Duration("took", time.Since(start)))
}
