package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/helpdeskhq/support-desk/internal/events"
	"github.com/helpdeskhq/support-desk/internal/observability"
)

type recordingPublisher struct {
	mu       sync.Mutex
	keys     []string
	payloads []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, key, value []byte) error {
	var event events.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, string(key))
	p.payloads = append(p.payloads, event)
	return nil
}

func TestRelayPublishesInOrderAndFlushesOnStop(t *testing.T) {
	pub := &recordingPublisher{}
	relay := NewEventRelay(pub, 8, zap.NewNop(), nil)
	go relay.Run(context.Background())

	for _, id := range []string{"e1", "e2", "e3"} {
		if !relay.Enqueue(events.Event{ID: id, Type: events.EventTicketCreated, TicketID: "t-1"}) {
			t.Fatalf("enqueue %s dropped", id)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := relay.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.payloads) != 3 {
		t.Fatalf("expected 3 published events, got %d", len(pub.payloads))
	}
	for i, want := range []string{"e1", "e2", "e3"} {
		if pub.payloads[i].ID != want || pub.keys[i] != "t-1" {
			t.Fatalf("event %d = %+v key %q", i, pub.payloads[i], pub.keys[i])
		}
	}
	if relay.Enqueue(events.Event{ID: "late"}) {
		t.Fatalf("enqueue after stop must be rejected")
	}
}

func TestRelayDropsWhenFull(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	relay := NewEventRelay(&recordingPublisher{}, 1, zap.NewNop(), metrics)

	if !relay.Enqueue(events.Event{ID: "first"}) {
		t.Fatalf("first event should fit in the buffer")
	}
	if relay.Enqueue(events.Event{ID: "second"}) {
		t.Fatalf("second event should be dropped without a running consumer")
	}
}
