package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

// LedgerRepository is append-only: entries are never updated or deleted.
type LedgerRepository struct {
	mu      sync.RWMutex
	entries []*domain.LedgerEntry
	ids     map[string]struct{}
}

func NewLedgerRepository() *LedgerRepository {
	return &LedgerRepository{
		ids: make(map[string]struct{}),
	}
}

func (r *LedgerRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[entry.ID]; exists {
		return fmt.Errorf("%w: ledger entry %s", repository.ErrImmutable, entry.ID)
	}

	copied := *entry
	r.entries = append(r.entries, &copied)
	r.ids[entry.ID] = struct{}{}

	return nil
}

func (r *LedgerRepository) GetByAccountID(ctx context.Context, accountID string) ([]*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.LedgerEntry
	for _, entry := range r.entries {
		if entry.AccountID == accountID {
			copied := *entry
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *LedgerRepository) GetByTransactionID(ctx context.Context, transactionID string) ([]*domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.LedgerEntry
	for _, entry := range r.entries {
		if entry.TransactionID == transactionID {
			copied := *entry
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *LedgerRepository) SumByAccountID(ctx context.Context, accountID string, asOf time.Time) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := decimal.Zero
	for _, entry := range r.entries {
		if entry.AccountID == accountID && !entry.CreatedAt.After(asOf) {
			sum = sum.Add(entry.Signed())
		}
	}
	return sum, nil
}

func (r *LedgerRepository) snapshot() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// restore truncates entries appended after the snapshot. Since the ledger is
// append-only this is the entire undo.
func (r *LedgerRepository) restore(length int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries[length:] {
		delete(r.ids, entry.ID)
	}
	r.entries = r.entries[:length]
}
