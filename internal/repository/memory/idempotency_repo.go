package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type IdempotencyRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.IdempotencyRecord
}

func NewIdempotencyRepository() *IdempotencyRepository {
	return &IdempotencyRepository{
		records: make(map[string]*domain.IdempotencyRecord),
	}
}

func cloneRecord(r *domain.IdempotencyRecord) *domain.IdempotencyRecord {
	copied := *r
	return &copied
}

func (r *IdempotencyRepository) Insert(ctx context.Context, record *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.Key]; exists {
		return fmt.Errorf("%w: idempotency key %s", repository.ErrDuplicate, record.Key)
	}
	r.records[record.Key] = cloneRecord(record)

	return nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[key]
	if !exists {
		return nil, fmt.Errorf("%w: idempotency key %s", repository.ErrNotFound, key)
	}
	return cloneRecord(record), nil
}

func (r *IdempotencyRepository) Update(ctx context.Context, record *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.Key]; !exists {
		return fmt.Errorf("%w: idempotency key %s", repository.ErrNotFound, record.Key)
	}
	r.records[record.Key] = cloneRecord(record)

	return nil
}

func (r *IdempotencyRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, key)
	return nil
}

func (r *IdempotencyRepository) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for key, record := range r.records {
		if record.IsExpired(now) {
			delete(r.records, key)
			purged++
		}
	}
	return purged, nil
}
