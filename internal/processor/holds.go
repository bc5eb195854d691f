package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bankcore/internal/domain"
	"bankcore/internal/events"
	"bankcore/internal/repository"
)

// HoldManager reserves funds against available balance without touching the
// ledger. Each hold transitions out of ACTIVE exactly once.
type HoldManager struct {
	store     repository.Store
	publisher events.Publisher
	logger    *slog.Logger
}

func NewHoldManager(store repository.Store, publisher events.Publisher, logger *slog.Logger) *HoldManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &HoldManager{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// Place reserves amount on the account. The caller must hold the account lock.
func (m *HoldManager) Place(ctx context.Context, store repository.Store, accountID, transactionID string, amount decimal.Decimal, holdType domain.HoldType, ttl time.Duration) (*domain.Hold, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: hold amount must be positive, got %s", ErrValidation, amount)
	}

	account, err := store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: account %s: %v", ErrStorage, accountID, err)
	}
	if !account.IsActive() {
		return nil, fmt.Errorf("%w: account %s is %s", ErrAccountNotActive, accountID, account.Status)
	}
	if account.AvailableBalance.LessThan(amount) {
		return nil, fmt.Errorf("%w: account %s available %s < hold %s",
			ErrInsufficientFunds, accountID, account.AvailableBalance, amount)
	}

	hold := domain.NewHold(accountID, transactionID, amount, holdType, ttl)
	if err := store.Holds().Save(ctx, hold); err != nil {
		return nil, fmt.Errorf("%w: save hold: %v", ErrStorage, err)
	}

	account.AvailableBalance = account.AvailableBalance.Sub(amount)
	if err := store.Accounts().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("%w: update account %s: %v", ErrStorage, accountID, err)
	}

	m.publisher.Publish(domain.NewEvent(domain.EventHoldPlaced, domain.HoldPayload{
		HoldID:    hold.ID,
		AccountID: accountID,
		Amount:    amount,
		HoldType:  holdType,
		Status:    hold.Status,
	}))

	return hold, nil
}

// Release frees the reservation and restores available balance.
func (m *HoldManager) Release(ctx context.Context, store repository.Store, holdID string) error {
	return m.settle(ctx, store, holdID, domain.HoldReleased, domain.EventHoldReleased, true)
}

// Capture settles the reservation. The matching ledger debit is the caller's
// responsibility inside the same unit of work; available balance is not
// restored because the debit consumes it.
func (m *HoldManager) Capture(ctx context.Context, store repository.Store, holdID string) error {
	return m.settle(ctx, store, holdID, domain.HoldCaptured, domain.EventHoldCaptured, false)
}

func (m *HoldManager) settle(ctx context.Context, store repository.Store, holdID string, status domain.HoldStatus, eventType domain.EventType, restore bool) error {
	hold, err := store.Holds().GetByID(ctx, holdID)
	if err != nil {
		return fmt.Errorf("%w: hold %s: %v", ErrStorage, holdID, err)
	}
	if !hold.IsActive() {
		return fmt.Errorf("%w: hold %s is already %s", ErrValidation, holdID, hold.Status)
	}

	hold.Status = status
	if err := store.Holds().Update(ctx, hold); err != nil {
		return fmt.Errorf("%w: update hold %s: %v", ErrStorage, holdID, err)
	}

	if restore {
		account, err := store.Accounts().GetByID(ctx, hold.AccountID)
		if err != nil {
			return fmt.Errorf("%w: account %s: %v", ErrStorage, hold.AccountID, err)
		}
		account.AvailableBalance = account.AvailableBalance.Add(hold.Amount)
		if err := store.Accounts().Update(ctx, account); err != nil {
			return fmt.Errorf("%w: update account %s: %v", ErrStorage, hold.AccountID, err)
		}
	}

	m.publisher.Publish(domain.NewEvent(eventType, domain.HoldPayload{
		HoldID:    hold.ID,
		AccountID: hold.AccountID,
		Amount:    hold.Amount,
		HoldType:  hold.Type,
		Status:    status,
	}))

	return nil
}

// SweepExpired expires every active hold past its deadline and restores the
// reserved balance. Returns the number of holds expired.
func (m *HoldManager) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	expired, err := m.store.Holds().GetExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("%w: expired holds: %v", ErrStorage, err)
	}

	swept := 0
	for _, hold := range expired {
		err := m.store.InTx(ctx, func(s repository.Store) error {
			current, err := s.Holds().GetByID(ctx, hold.ID)
			if err != nil {
				return err
			}
			if !current.IsExpired(now) {
				return nil
			}
			current.Status = domain.HoldExpired
			if err := s.Holds().Update(ctx, current); err != nil {
				return err
			}
			account, err := s.Accounts().GetByID(ctx, current.AccountID)
			if err != nil {
				return err
			}
			account.AvailableBalance = account.AvailableBalance.Add(current.Amount)
			return s.Accounts().Update(ctx, account)
		})
		if err != nil {
			m.logger.ErrorContext(ctx, "Hold expiry failed",
				slog.String("hold_id", hold.ID),
				slog.String("error", err.Error()))
			continue
		}
		swept++
		m.publisher.Publish(domain.NewEvent(domain.EventHoldExpired, domain.HoldPayload{
			HoldID:    hold.ID,
			AccountID: hold.AccountID,
			Amount:    hold.Amount,
			HoldType:  hold.Type,
			Status:    domain.HoldExpired,
		}))
	}
	return swept, nil
}

// RunSweeper expires overdue holds on the given interval until ctx ends.
func (m *HoldManager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if swept, err := m.SweepExpired(ctx); err != nil {
				m.logger.ErrorContext(ctx, "Hold sweep failed", slog.String("error", err.Error()))
			} else if swept > 0 {
				m.logger.InfoContext(ctx, "Expired holds swept", slog.Int("count", swept))
			}
		case <-ctx.Done():
			return
		}
	}
}
