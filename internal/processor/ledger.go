package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

// LedgerStore appends double-entry records. It assumes sufficiency and status
// have been validated upstream; it only records and derives balances.
type LedgerStore struct {
	logger *slog.Logger
}

func NewLedgerStore(logger *slog.Logger) *LedgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerStore{logger: logger}
}

// Append writes one immutable entry. The running balance is derived from the
// ledger sum of prior entries, not from the cached account balance, so cache
// drift can never propagate into the ledger.
func (l *LedgerStore) Append(ctx context.Context, store repository.Store, accountID, transactionID string, entryType domain.EntryType, amount decimal.Decimal, description string) (*domain.LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: ledger amount must be positive, got %s", ErrValidation, amount)
	}

	current, err := store.Ledger().SumByAccountID(ctx, accountID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: ledger sum for account %s: %v", ErrStorage, accountID, err)
	}

	balance := current.Add(amount)
	if entryType == domain.EntryDebit {
		balance = current.Sub(amount)
	}

	entry := domain.NewLedgerEntry(accountID, transactionID, entryType, amount, balance, description)
	if err := store.Ledger().Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("%w: append entry for account %s: %v", ErrStorage, accountID, err)
	}

	return entry, nil
}

// BalanceAsOf returns the signed ledger sum up to the given instant.
func (l *LedgerStore) BalanceAsOf(ctx context.Context, store repository.Store, accountID string, asOf time.Time) (decimal.Decimal, error) {
	sum, err := store.Ledger().SumByAccountID(ctx, accountID, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: ledger sum for account %s: %v", ErrStorage, accountID, err)
	}
	return sum, nil
}

// Reconcile verifies the cached balance of every given account against its
// ledger-derived balance.
func (l *LedgerStore) Reconcile(ctx context.Context, store repository.Store, accountIDs []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, accountID := range accountIDs {
		g.Go(func() error {
			account, err := store.Accounts().GetByID(ctx, accountID)
			if err != nil {
				return err
			}
			derived, err := store.Ledger().SumByAccountID(ctx, accountID, time.Now().UTC())
			if err != nil {
				return err
			}
			if !account.Balance.Equal(derived) {
				l.logger.ErrorContext(ctx, "Ledger reconciliation mismatch",
					slog.String("account_id", accountID),
					slog.String("cached", account.Balance.String()),
					slog.String("derived", derived.String()))
				return fmt.Errorf("account %s: cached balance %s != ledger balance %s",
					accountID, account.Balance, derived)
			}
			return nil
		})
	}
	return g.Wait()
}
