package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type BeginOutcome int

const (
	FreshStart BeginOutcome = iota
	Duplicate
	InFlight
)

type BeginResult struct {
	Outcome       BeginOutcome
	TransactionID string
}

// IdempotencyGuard deduplicates retried mutating requests. A bloom filter in
// front of the repository answers "never seen" without a read; positives fall
// through to the record itself. The repository's unique-key constraint is the
// gate between concurrent first attempts.
type IdempotencyGuard struct {
	store  repository.Store
	ttl    time.Duration
	mu     sync.Mutex
	filter *bloom.BloomFilter
	logger *slog.Logger
}

func NewIdempotencyGuard(store repository.Store, ttl time.Duration, logger *slog.Logger) *IdempotencyGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = domain.IdempotencyTTL
	}
	return &IdempotencyGuard{
		store:  store,
		ttl:    ttl,
		filter: bloom.NewWithEstimates(100000, 0.01),
		logger: logger,
	}
}

func (g *IdempotencyGuard) mayExist(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filter.TestAndAddString(key)
}

// Begin claims the key for this request. FreshStart means the caller owns the
// execution; Duplicate returns the previously committed transaction; InFlight
// means another attempt holds the key right now. A matching key with a
// different request hash is ErrIdempotencyConflict.
func (g *IdempotencyGuard) Begin(ctx context.Context, key, requestHash string) (BeginResult, error) {
	if key == "" {
		return BeginResult{Outcome: FreshStart}, nil
	}

	if !g.mayExist(key) {
		if err := g.insert(ctx, key, requestHash); err == nil {
			return BeginResult{Outcome: FreshStart}, nil
		} else if !errors.Is(err, repository.ErrDuplicate) {
			return BeginResult{}, err
		}
		// Lost the race to a concurrent attempt; resolve against the record.
	}

	record, err := g.store.Idempotency().Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		if err := g.insert(ctx, key, requestHash); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return BeginResult{Outcome: InFlight}, fmt.Errorf("%w: idempotency key %s", ErrBusy, key)
			}
			return BeginResult{}, err
		}
		return BeginResult{Outcome: FreshStart}, nil
	}
	if err != nil {
		return BeginResult{}, fmt.Errorf("%w: idempotency get: %v", ErrStorage, err)
	}

	now := time.Now().UTC()
	if record.IsExpired(now) || record.Status == domain.IdempotencyFailed {
		if err := g.store.Idempotency().Delete(ctx, key); err != nil {
			return BeginResult{}, fmt.Errorf("%w: idempotency purge: %v", ErrStorage, err)
		}
		if err := g.insert(ctx, key, requestHash); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return BeginResult{Outcome: InFlight}, fmt.Errorf("%w: idempotency key %s", ErrBusy, key)
			}
			return BeginResult{}, err
		}
		return BeginResult{Outcome: FreshStart}, nil
	}

	if record.RequestHash != requestHash {
		return BeginResult{}, fmt.Errorf("%w: key %s", ErrIdempotencyConflict, key)
	}

	switch record.Status {
	case domain.IdempotencyCompleted:
		return BeginResult{Outcome: Duplicate, TransactionID: record.TransactionID}, nil
	default:
		return BeginResult{Outcome: InFlight}, fmt.Errorf("%w: idempotency key %s is in flight", ErrBusy, key)
	}
}

func (g *IdempotencyGuard) insert(ctx context.Context, key, requestHash string) error {
	record := domain.NewIdempotencyRecord(key, requestHash, g.ttl)
	if err := g.store.Idempotency().Insert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("%w: idempotency insert: %v", ErrStorage, err)
	}
	return nil
}

// Complete caches the committed transaction against the key.
func (g *IdempotencyGuard) Complete(ctx context.Context, key, transactionID string) error {
	if key == "" {
		return nil
	}
	record, err := g.store.Idempotency().Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: idempotency get: %v", ErrStorage, err)
	}
	record.Status = domain.IdempotencyCompleted
	record.TransactionID = transactionID
	if err := g.store.Idempotency().Update(ctx, record); err != nil {
		return fmt.Errorf("%w: idempotency update: %v", ErrStorage, err)
	}
	return nil
}

// Fail releases the key after a failed attempt. Transient failures delete the
// record so the client can retry with the same key; business failures are
// marked FAILED and treated as fresh on the next attempt.
func (g *IdempotencyGuard) Fail(ctx context.Context, key, transactionID string, transient bool) {
	if key == "" {
		return
	}
	if transient {
		if err := g.store.Idempotency().Delete(ctx, key); err != nil {
			g.logger.ErrorContext(ctx, "Idempotency release failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return
	}
	record, err := g.store.Idempotency().Get(ctx, key)
	if err != nil {
		g.logger.ErrorContext(ctx, "Idempotency record missing on failure",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	record.Status = domain.IdempotencyFailed
	record.TransactionID = transactionID
	if err := g.store.Idempotency().Update(ctx, record); err != nil {
		g.logger.ErrorContext(ctx, "Idempotency update failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

// PurgeExpired removes records past their TTL.
func (g *IdempotencyGuard) PurgeExpired(ctx context.Context) (int, error) {
	return g.store.Idempotency().PurgeExpired(ctx, time.Now().UTC())
}

// RunPurger purges expired records on the given interval until ctx ends.
func (g *IdempotencyGuard) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if purged, err := g.PurgeExpired(ctx); err != nil {
				g.logger.ErrorContext(ctx, "Idempotency purge failed", slog.String("error", err.Error()))
			} else if purged > 0 {
				g.logger.InfoContext(ctx, "Expired idempotency records purged", slog.Int("count", purged))
			}
		case <-ctx.Done():
			return
		}
	}
}
