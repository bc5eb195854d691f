package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type AccountRepository struct {
	mu            sync.RWMutex
	accounts      map[string]*domain.Account
	numberIndex   map[string]string
	customerIndex map[string][]string
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts:      make(map[string]*domain.Account),
		numberIndex:   make(map[string]string),
		customerIndex: make(map[string][]string),
	}
}

func (r *AccountRepository) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return fmt.Errorf("%w: account %s", repository.ErrDuplicate, account.ID)
	}
	if _, exists := r.numberIndex[account.AccountNumber]; exists {
		return fmt.Errorf("%w: account number %s", repository.ErrDuplicate, account.AccountNumber)
	}

	r.accounts[account.ID] = account.Clone()
	r.numberIndex[account.AccountNumber] = account.ID
	r.customerIndex[account.CustomerID] = append(r.customerIndex[account.CustomerID], account.ID)

	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: account %s", repository.ErrNotFound, id)
	}
	return account.Clone(), nil
}

func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.numberIndex[number]
	if !exists {
		return nil, fmt.Errorf("%w: account number %s", repository.ErrNotFound, number)
	}
	return r.accounts[id].Clone(), nil
}

func (r *AccountRepository) GetByCustomerID(ctx context.Context, customerID string) ([]*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, exists := r.customerIndex[customerID]
	if !exists {
		return nil, fmt.Errorf("%w: customer %s", repository.ErrNotFound, customerID)
	}

	var result []*domain.Account
	for _, id := range ids {
		if account, ok := r.accounts[id]; ok {
			result = append(result, account.Clone())
		}
	}
	return result, nil
}

func (r *AccountRepository) Update(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.accounts[account.ID]
	if !exists {
		return fmt.Errorf("%w: account %s", repository.ErrNotFound, account.ID)
	}
	if current.Version != account.Version {
		return fmt.Errorf("%w: account %s version %d != %d",
			repository.ErrVersionConflict, account.ID, account.Version, current.Version)
	}

	stored := account.Clone()
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.accounts[account.ID] = stored
	account.Version = stored.Version

	return nil
}

func (r *AccountRepository) snapshot() map[string]*domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]*domain.Account, len(r.accounts))
	for id, account := range r.accounts {
		snap[id] = account.Clone()
	}
	return snap
}

func (r *AccountRepository) restore(snap map[string]*domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.accounts = snap
	r.numberIndex = make(map[string]string, len(snap))
	r.customerIndex = make(map[string][]string)
	for id, account := range snap {
		r.numberIndex[account.AccountNumber] = id
		r.customerIndex[account.CustomerID] = append(r.customerIndex[account.CustomerID], id)
	}
}
