// Package events carries domain events from the core to downstream consumers
// without ever blocking a money movement on consumption.
package events

import (
	"context"
	"log/slog"
	"sync"

	"bankcore/internal/domain"
)

type Publisher interface {
	Publish(event domain.Event)
}

// Handler consumes one event. Delivery is at-least-once: a handler may see an
// event again after a transient failure.
type Handler func(ctx context.Context, event domain.Event) error

type subscriber struct {
	name    string
	ch      chan domain.Event
	handler Handler
}

// Bus fans events out to subscribers over buffered channels. Publish never
// blocks: when a subscriber's buffer is full the event is dropped for that
// subscriber and counted.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscriber
	buffer      int
	droppedMu   sync.Mutex
	dropped     map[string]int
	wg          sync.WaitGroup
	shutdown    chan struct{}
	logger      *slog.Logger
}

func NewBus(buffer int, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &Bus{
		buffer:   buffer,
		dropped:  make(map[string]int),
		shutdown: make(chan struct{}),
		logger:   logger,
	}
}

// Subscribe registers a named consumer and starts its delivery worker.
func (b *Bus) Subscribe(name string, handler Handler) {
	sub := &subscriber{
		name:    name,
		ch:      make(chan domain.Event, b.buffer),
		handler: handler,
	}

	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go b.deliver(sub)
}

func (b *Bus) Publish(event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
		default:
			b.droppedMu.Lock()
			b.dropped[sub.name]++
			b.droppedMu.Unlock()
			b.logger.Warn("Event dropped: subscriber buffer full",
				slog.String("subscriber", sub.name),
				slog.String("event_type", string(event.Type)),
				slog.String("event_id", event.ID))
		}
	}
}

func (b *Bus) deliver(sub *subscriber) {
	defer b.wg.Done()

	for {
		select {
		case event := <-sub.ch:
			if err := sub.handler(context.Background(), event); err != nil {
				b.logger.Error("Event delivery failed",
					slog.String("subscriber", sub.name),
					slog.String("event_type", string(event.Type)),
					slog.String("event_id", event.ID),
					slog.String("error", err.Error()))
			}
		case <-b.shutdown:
			return
		}
	}
}

// Dropped returns how many events each subscriber has missed.
func (b *Bus) Dropped() map[string]int {
	b.droppedMu.Lock()
	defer b.droppedMu.Unlock()

	out := make(map[string]int, len(b.dropped))
	for name, count := range b.dropped {
		out[name] = count
	}
	return out
}

func (b *Bus) Shutdown(ctx context.Context) error {
	close(b.shutdown)

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NopPublisher discards events; used in tests that do not assert on them.
type NopPublisher struct{}

func (NopPublisher) Publish(domain.Event) {}
