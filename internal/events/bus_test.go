package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"bankcore/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(16, testLogger())
	defer bus.Shutdown(context.Background())

	var mu sync.Mutex
	received := make(map[string]int)
	done := make(chan struct{}, 2)

	for _, name := range []string{"first", "second"} {
		bus.Subscribe(name, func(ctx context.Context, event domain.Event) error {
			mu.Lock()
			received[event.ID]++
			mu.Unlock()
			done <- struct{}{}
			return nil
		})
	}

	event := domain.NewEvent(domain.EventTransactionCompleted, nil)
	bus.Publish(event)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if received[event.ID] != 2 {
		t.Errorf("deliveries = %d, want 2", received[event.ID])
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1, testLogger())
	defer bus.Shutdown(context.Background())

	block := make(chan struct{})
	bus.Subscribe("slow", func(ctx context.Context, event domain.Event) error {
		<-block
		return nil
	})

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(domain.NewEvent(domain.EventBalanceUpdated, nil))
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a saturated subscriber")
	}
	close(block)

	if bus.Dropped()["slow"] == 0 {
		t.Error("expected drops recorded for the saturated subscriber")
	}
}

func TestBusHandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(16, testLogger())
	defer bus.Shutdown(context.Background())

	delivered := make(chan string, 4)
	bus.Subscribe("flaky", func(ctx context.Context, event domain.Event) error {
		delivered <- event.ID
		return errors.New("downstream unavailable")
	})

	first := domain.NewEvent(domain.EventFraudAlert, nil)
	second := domain.NewEvent(domain.EventFraudAlert, nil)
	bus.Publish(first)
	bus.Publish(second)

	for _, want := range []string{first.ID, second.ID} {
		select {
		case got := <-delivered:
			if got != want {
				t.Errorf("delivered %s, want %s", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for delivery after handler error")
		}
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	failing := sinkFunc(func(ctx context.Context, event domain.Event) error {
		return errors.New("gateway down")
	})
	handler := BreakerHandler("test-sink", failing, testLogger())

	var sawOpen bool
	for i := 0; i < 20; i++ {
		err := handler(context.Background(), domain.NewEvent(domain.EventFraudAlert, nil))
		if errors.Is(err, gobreaker.ErrOpenState) {
			sawOpen = true
			break
		}
	}
	if !sawOpen {
		t.Error("breaker never opened under sustained failures")
	}
}

type sinkFunc func(ctx context.Context, event domain.Event) error

func (f sinkFunc) Deliver(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}
