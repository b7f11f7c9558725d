package server

import (
	"log/slog"
	"sync"

	"github.com/NicolasHaas/chatwire/pkg/protocol"
)

// Bus is the ordered queue of outbound broadcast events. Exactly one
// consumer (Run) dequeues events and pushes each to every session open at
// delivery time. Enqueue order is delivery order.
type Bus struct {
	registry *Registry
	metrics  *Metrics
	queue    chan *protocol.Reply
	done     chan struct{}
	once     sync.Once
}

// NewBus creates a broadcast bus over the given registry.
func NewBus(registry *Registry, metrics *Metrics, buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{
		registry: registry,
		metrics:  metrics,
		queue:    make(chan *protocol.Reply, buffer),
		done:     make(chan struct{}),
	}
}

// Publish enqueues an event for fan-out. Blocks while the queue is full to
// preserve enqueue order; returns immediately once the bus is closed.
func (b *Bus) Publish(event *protocol.Reply) {
	select {
	case <-b.done:
	case b.queue <- event:
	}
}

// Run consumes the queue until Close, then drains whatever is left.
// Call in its own goroutine; there must be exactly one consumer.
func (b *Bus) Run() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.done:
			for {
				select {
				case event := <-b.queue:
					b.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// Close stops the bus. Safe to call more than once.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}

// deliver encodes the event once and pushes it to every open session.
// A session that closed or stalled mid-delivery just misses the event;
// it never aborts delivery to the rest.
func (b *Bus) deliver(event *protocol.Reply) {
	frame, err := event.Encode()
	if err != nil {
		slog.Error("broadcast encode failed", "op", event.Op, "err", err)
		return
	}
	b.metrics.EventsBroadcast.Add(1)
	for _, sess := range b.registry.Snapshot() {
		if !sess.deliver(frame) {
			b.metrics.DroppedDeliveries.Add(1)
		}
	}
}
