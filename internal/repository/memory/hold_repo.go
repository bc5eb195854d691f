package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type HoldRepository struct {
	mu           sync.RWMutex
	holds        map[string]*domain.Hold
	accountIndex map[string][]string
}

func NewHoldRepository() *HoldRepository {
	return &HoldRepository{
		holds:        make(map[string]*domain.Hold),
		accountIndex: make(map[string][]string),
	}
}

func cloneHold(h *domain.Hold) *domain.Hold {
	copied := *h
	return &copied
}

func (r *HoldRepository) Save(ctx context.Context, hold *domain.Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.holds[hold.ID]; exists {
		return fmt.Errorf("%w: hold %s", repository.ErrDuplicate, hold.ID)
	}

	r.holds[hold.ID] = cloneHold(hold)
	r.accountIndex[hold.AccountID] = append(r.accountIndex[hold.AccountID], hold.ID)

	return nil
}

func (r *HoldRepository) GetByID(ctx context.Context, id string) (*domain.Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hold, exists := r.holds[id]
	if !exists {
		return nil, fmt.Errorf("%w: hold %s", repository.ErrNotFound, id)
	}
	return cloneHold(hold), nil
}

func (r *HoldRepository) GetActiveByAccountID(ctx context.Context, accountID string) ([]*domain.Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Hold
	for _, id := range r.accountIndex[accountID] {
		if hold := r.holds[id]; hold.Status == domain.HoldActive {
			result = append(result, cloneHold(hold))
		}
	}
	return result, nil
}

func (r *HoldRepository) Update(ctx context.Context, hold *domain.Hold) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.holds[hold.ID]; !exists {
		return fmt.Errorf("%w: hold %s", repository.ErrNotFound, hold.ID)
	}

	stored := cloneHold(hold)
	stored.UpdatedAt = time.Now().UTC()
	r.holds[hold.ID] = stored

	return nil
}

func (r *HoldRepository) GetExpired(ctx context.Context, now time.Time) ([]*domain.Hold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Hold
	for _, hold := range r.holds {
		if hold.IsExpired(now) {
			result = append(result, cloneHold(hold))
		}
	}
	return result, nil
}

func (r *HoldRepository) snapshot() map[string]*domain.Hold {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]*domain.Hold, len(r.holds))
	for id, hold := range r.holds {
		snap[id] = cloneHold(hold)
	}
	return snap
}

func (r *HoldRepository) restore(snap map[string]*domain.Hold) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.holds = snap
	r.accountIndex = make(map[string][]string)
	for id, hold := range snap {
		r.accountIndex[hold.AccountID] = append(r.accountIndex[hold.AccountID], id)
	}
}
