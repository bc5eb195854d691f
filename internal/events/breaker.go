package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"bankcore/internal/domain"
)

// Sink delivers an event to an external consumer (notification gateway, audit
// log, webhook).
type Sink interface {
	Deliver(ctx context.Context, event domain.Event) error
}

// BreakerHandler wraps a sink with a circuit breaker so a failing downstream
// cannot pile up retries against the core. Events arriving while the breaker
// is open are dropped and logged.
func BreakerHandler(name string, sink Sink, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Event sink breaker state changed",
				slog.String("sink", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return func(ctx context.Context, event domain.Event) error {
		_, err := cb.Execute(func() (any, error) {
			return nil, sink.Deliver(ctx, event)
		})
		return err
	}
}
