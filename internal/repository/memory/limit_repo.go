package memory

import (
	"context"
	"fmt"
	"sync"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type limitKey struct {
	customerID string
	limitType  domain.LimitType
}

type LimitRepository struct {
	mu     sync.RWMutex
	limits map[limitKey]*domain.TransactionLimit
}

func NewLimitRepository() *LimitRepository {
	return &LimitRepository{
		limits: make(map[limitKey]*domain.TransactionLimit),
	}
}

func cloneLimit(l *domain.TransactionLimit) *domain.TransactionLimit {
	copied := *l
	return &copied
}

func (r *LimitRepository) Save(ctx context.Context, limit *domain.TransactionLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limitKey{limit.CustomerID, limit.LimitType}
	if _, exists := r.limits[key]; exists {
		return fmt.Errorf("%w: limit %s/%s", repository.ErrDuplicate, limit.CustomerID, limit.LimitType)
	}
	r.limits[key] = cloneLimit(limit)

	return nil
}

func (r *LimitRepository) Get(ctx context.Context, customerID string, limitType domain.LimitType) (*domain.TransactionLimit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit, exists := r.limits[limitKey{customerID, limitType}]
	if !exists {
		return nil, fmt.Errorf("%w: limit %s/%s", repository.ErrNotFound, customerID, limitType)
	}
	return cloneLimit(limit), nil
}

func (r *LimitRepository) Update(ctx context.Context, limit *domain.TransactionLimit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limitKey{limit.CustomerID, limit.LimitType}
	if _, exists := r.limits[key]; !exists {
		return fmt.Errorf("%w: limit %s/%s", repository.ErrNotFound, limit.CustomerID, limit.LimitType)
	}
	r.limits[key] = cloneLimit(limit)

	return nil
}

func (r *LimitRepository) snapshot() map[limitKey]*domain.TransactionLimit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[limitKey]*domain.TransactionLimit, len(r.limits))
	for key, limit := range r.limits {
		snap[key] = cloneLimit(limit)
	}
	return snap
}

func (r *LimitRepository) restore(snap map[limitKey]*domain.TransactionLimit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits = snap
}

type VelocityRepository struct {
	mu     sync.RWMutex
	checks map[limitKey]*domain.VelocityCheck
}

func NewVelocityRepository() *VelocityRepository {
	return &VelocityRepository{
		checks: make(map[limitKey]*domain.VelocityCheck),
	}
}

func (r *VelocityRepository) Save(ctx context.Context, check *domain.VelocityCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limitKey{check.CustomerID, check.CheckType}
	if _, exists := r.checks[key]; exists {
		return fmt.Errorf("%w: velocity check %s/%s", repository.ErrDuplicate, check.CustomerID, check.CheckType)
	}
	copied := *check
	r.checks[key] = &copied

	return nil
}

func (r *VelocityRepository) Get(ctx context.Context, customerID string, checkType domain.LimitType) (*domain.VelocityCheck, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	check, exists := r.checks[limitKey{customerID, checkType}]
	if !exists {
		return nil, fmt.Errorf("%w: velocity check %s/%s", repository.ErrNotFound, customerID, checkType)
	}
	copied := *check
	return &copied, nil
}

func (r *VelocityRepository) Update(ctx context.Context, check *domain.VelocityCheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := limitKey{check.CustomerID, check.CheckType}
	if _, exists := r.checks[key]; !exists {
		return fmt.Errorf("%w: velocity check %s/%s", repository.ErrNotFound, check.CustomerID, check.CheckType)
	}
	copied := *check
	r.checks[key] = &copied

	return nil
}
