package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

type TransactionRepository struct {
	mu             sync.RWMutex
	transactions   map[string]*domain.Transaction
	referenceIndex map[string]string
	accountIndex   map[string][]string
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		transactions:   make(map[string]*domain.Transaction),
		referenceIndex: make(map[string]string),
		accountIndex:   make(map[string][]string),
	}
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	copied := *tx
	if tx.Metadata != nil {
		copied.Metadata = make(map[string]string, len(tx.Metadata))
		for k, v := range tx.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
	}
	if _, exists := r.referenceIndex[tx.Reference]; exists {
		return fmt.Errorf("%w: reference %s", repository.ErrDuplicate, tx.Reference)
	}

	r.transactions[tx.ID] = cloneTransaction(tx)
	r.referenceIndex[tx.Reference] = tx.ID
	if tx.FromAccountID != "" {
		r.accountIndex[tx.FromAccountID] = append(r.accountIndex[tx.FromAccountID], tx.ID)
	}
	if tx.ToAccountID != "" && tx.ToAccountID != tx.FromAccountID {
		r.accountIndex[tx.ToAccountID] = append(r.accountIndex[tx.ToAccountID], tx.ID)
	}

	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.transactions[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return cloneTransaction(tx), nil
}

func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.referenceIndex[reference]
	if !exists {
		return nil, fmt.Errorf("%w: reference %s", repository.ErrNotFound, reference)
	}
	return cloneTransaction(r.transactions[id]), nil
}

func (r *TransactionRepository) GetByAccountID(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.accountIndex[accountID]
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return r.transactions[sorted[i]].CreatedAt.After(r.transactions[sorted[j]].CreatedAt)
	})

	start := offset
	end := offset + limit
	if end > len(sorted) {
		end = len(sorted)
	}
	if start >= len(sorted) {
		return []*domain.Transaction{}, nil
	}

	var result []*domain.Transaction
	for _, id := range sorted[start:end] {
		result = append(result, cloneTransaction(r.transactions[id]))
	}
	return result, nil
}

func (r *TransactionRepository) Update(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.ID]; !exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrNotFound, tx.ID)
	}

	stored := cloneTransaction(tx)
	stored.UpdatedAt = time.Now().UTC()
	r.transactions[tx.ID] = stored

	return nil
}

func (r *TransactionRepository) CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, tx := range r.transactions {
		if tx.Metadata["customer_id"] == customerID && !tx.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *TransactionRepository) snapshot() map[string]*domain.Transaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]*domain.Transaction, len(r.transactions))
	for id, tx := range r.transactions {
		snap[id] = cloneTransaction(tx)
	}
	return snap
}

func (r *TransactionRepository) restore(snap map[string]*domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.transactions = snap
	r.referenceIndex = make(map[string]string, len(snap))
	r.accountIndex = make(map[string][]string)
	for id, tx := range snap {
		r.referenceIndex[tx.Reference] = id
		if tx.FromAccountID != "" {
			r.accountIndex[tx.FromAccountID] = append(r.accountIndex[tx.FromAccountID], id)
		}
		if tx.ToAccountID != "" && tx.ToAccountID != tx.FromAccountID {
			r.accountIndex[tx.ToAccountID] = append(r.accountIndex[tx.ToAccountID], id)
		}
	}
}
