package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/repository"
)

// LimitEnforcer applies per-customer spend ceilings. Check validates without
// consuming; Consume decrements the remaining counters and must run inside
// the same unit of work as the ledger commit.
type LimitEnforcer struct {
	store repository.Store
}

func NewLimitEnforcer(store repository.Store) *LimitEnforcer {
	return &LimitEnforcer{store: store}
}

// resolve finds the most specific limit: the exact type first, then ALL.
// No configured limit means no ceiling.
func (e *LimitEnforcer) resolve(ctx context.Context, store repository.Store, customerID string, limitType domain.LimitType) (*domain.TransactionLimit, error) {
	limit, err := store.Limits().Get(ctx, customerID, limitType)
	if err == nil {
		return limit, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: limit lookup: %v", ErrStorage, err)
	}

	limit, err = store.Limits().Get(ctx, customerID, domain.LimitAll)
	if err == nil {
		return limit, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: limit lookup: %v", ErrStorage, err)
	}
	return nil, nil
}

func (e *LimitEnforcer) Check(ctx context.Context, customerID string, limitType domain.LimitType, amount decimal.Decimal) error {
	limit, err := e.resolve(ctx, e.store, customerID, limitType)
	if err != nil || limit == nil {
		return err
	}

	now := time.Now().UTC()
	limit.ResetIfRolledOver(now)

	if limit.PerTransactionLimit.IsPositive() && amount.GreaterThan(limit.PerTransactionLimit) {
		return fmt.Errorf("%w: amount %s exceeds per-transaction limit %s",
			ErrLimitExceeded, amount, limit.PerTransactionLimit)
	}
	if limit.DailyLimit.IsPositive() && amount.GreaterThan(limit.RemainingDaily) {
		return fmt.Errorf("%w: amount %s exceeds remaining daily limit %s",
			ErrLimitExceeded, amount, limit.RemainingDaily)
	}
	if limit.MonthlyLimit.IsPositive() && amount.GreaterThan(limit.RemainingMonthly) {
		return fmt.Errorf("%w: amount %s exceeds remaining monthly limit %s",
			ErrLimitExceeded, amount, limit.RemainingMonthly)
	}

	// Persist a rollover so the reset date does not drift.
	if err := e.store.Limits().Update(ctx, limit); err != nil {
		return fmt.Errorf("%w: limit update: %v", ErrStorage, err)
	}
	return nil
}

// Consume decrements the remaining counters. Runs against the store passed
// in, which is the transaction-scoped store of the committing unit.
func (e *LimitEnforcer) Consume(ctx context.Context, store repository.Store, customerID string, limitType domain.LimitType, amount decimal.Decimal) error {
	limit, err := e.resolve(ctx, store, customerID, limitType)
	if err != nil || limit == nil {
		return err
	}

	limit.ResetIfRolledOver(time.Now().UTC())
	if limit.DailyLimit.IsPositive() {
		limit.RemainingDaily = limit.RemainingDaily.Sub(amount)
	}
	if limit.MonthlyLimit.IsPositive() {
		limit.RemainingMonthly = limit.RemainingMonthly.Sub(amount)
	}

	if err := store.Limits().Update(ctx, limit); err != nil {
		return fmt.Errorf("%w: limit consume: %v", ErrStorage, err)
	}
	return nil
}
